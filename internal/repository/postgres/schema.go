package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/estately/priceuq/internal/pkg/database"
)

//go:embed schema.sql
var schema string

// Migrate creates the tables this package reads and writes. It is idempotent.
func Migrate(ctx context.Context, db *database.PostgresDB) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply postgres schema: %w", err)
	}
	return nil
}
