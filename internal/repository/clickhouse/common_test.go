package clickhouse

import (
	"context"
	"os"
	"testing"

	"github.com/estately/priceuq/internal/config"
	"github.com/estately/priceuq/internal/pkg/database"
)

// getTestDB returns a migrated connection for integration tests
func getTestDB(t *testing.T) *database.ClickHouseDB {
	t.Helper()
	if os.Getenv("CLICKHOUSE_TEST_HOST") == "" {
		t.Skip("Skipping integration test: CLICKHOUSE_TEST_HOST not set")
	}

	cfg := config.ClickHouseConfig{
		Host:     os.Getenv("CLICKHOUSE_TEST_HOST"),
		Port:     9000,
		Database: os.Getenv("CLICKHOUSE_TEST_DB"),
		User:     os.Getenv("CLICKHOUSE_TEST_USER"),
		Password: os.Getenv("CLICKHOUSE_TEST_PASS"),
	}
	if cfg.Database == "" {
		cfg.Database = "default"
	}

	ctx := context.Background()
	db, err := database.NewClickHouse(ctx, cfg)
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to ClickHouse: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
