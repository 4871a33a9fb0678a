package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/estately/priceuq/internal/domain"
	"github.com/estately/priceuq/internal/pkg/database"
)

type attributionRow struct {
	RunID      uuid.UUID `ch:"run_id"`
	JobID      uuid.UUID `ch:"job_id"`
	QueryIndex uint32    `ch:"query_index"`
	Target     string    `ch:"target"`
	Feature    string    `ch:"feature"`
	Value      float64   `ch:"value"`
	Baseline   float64   `ch:"baseline"`
	Output     float64   `ch:"output"`
}

// AttributionRepository handles attribution contributions in ClickHouse
type AttributionRepository struct {
	db *database.ClickHouseDB
}

// NewAttributionRepository creates a new attribution repository
func NewAttributionRepository(db *database.ClickHouseDB) *AttributionRepository {
	return &AttributionRepository{db: db}
}

// InsertBatch stores flattened contributions
func (r *AttributionRepository) InsertBatch(ctx context.Context, rows []domain.AttributionRow) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO attributions (
			run_id, job_id, query_index, target, feature, value, baseline, output, created_at
		)
	`
	return r.db.SendBatch(ctx, query, len(rows), func(i int) []any {
		row := rows[i]
		return []any{
			row.RunID,
			row.JobID,
			uint32(row.QueryIndex),
			string(row.Target),
			row.Feature,
			row.Value,
			row.Baseline,
			row.Output,
			now,
		}
	})
}

// ListByJob reassembles the records of one explanation job, ordered by
// target then query.
func (r *AttributionRepository) ListByJob(ctx context.Context, runID, jobID uuid.UUID) ([]domain.AttributionRecord, error) {
	query := `
		SELECT run_id, job_id, query_index, target, feature, value, baseline, output
		FROM attributions
		WHERE run_id = ? AND job_id = ?
		ORDER BY target, query_index, feature
	`

	var rows []attributionRow
	if err := r.db.Select(ctx, &rows, query, runID, jobID); err != nil {
		return nil, fmt.Errorf("failed to list attributions: %w", err)
	}

	var out []domain.AttributionRecord
	for _, row := range rows {
		n := len(out)
		if n == 0 || out[n-1].QueryIndex != int(row.QueryIndex) || out[n-1].Target != domain.TargetKind(row.Target) {
			out = append(out, domain.AttributionRecord{
				QueryIndex:    int(row.QueryIndex),
				Target:        domain.TargetKind(row.Target),
				Baseline:      row.Baseline,
				Output:        row.Output,
				Contributions: map[string]float64{},
			})
			n++
		}
		out[n-1].Contributions[row.Feature] = row.Value
	}
	return out, nil
}
