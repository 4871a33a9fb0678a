package clickhouse

import (
	"context"
	"fmt"

	"github.com/estately/priceuq/internal/pkg/database"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS predictions (
		run_id              UUID,
		batch_id            UUID,
		sample_index        UInt32,
		mu                  Float64,
		sigma_sq            Float64,
		epistemic_std       Float64,
		predicted_price     Float64,
		aleatoric_std_price Float64,
		epistemic_std_price Float64,
		total_std_price     Float64,
		interval_lower      Float64,
		interval_upper      Float64,
		actual_price        Nullable(Float64),
		within_interval     Nullable(Bool),
		flags               Array(LowCardinality(String)),
		created_at          DateTime64(3)
	) ENGINE = MergeTree
	ORDER BY (run_id, batch_id, sample_index)
	TTL toDateTime(created_at) + INTERVAL 180 DAY`,
	`CREATE TABLE IF NOT EXISTS attributions (
		run_id       UUID,
		job_id       UUID,
		query_index  UInt32,
		target       LowCardinality(String),
		feature      LowCardinality(String),
		value        Float64,
		baseline     Float64,
		output       Float64,
		created_at   DateTime64(3)
	) ENGINE = MergeTree
	ORDER BY (run_id, job_id, target, query_index, feature)
	TTL toDateTime(created_at) + INTERVAL 180 DAY`,
}

// Migrate creates the tables this package reads and writes. It is idempotent.
func Migrate(ctx context.Context, db *database.ClickHouseDB) error {
	for _, stmt := range schema {
		if err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply clickhouse schema: %w", err)
		}
	}
	return nil
}
