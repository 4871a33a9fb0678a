package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/estately/priceuq/internal/domain"
	"github.com/estately/priceuq/internal/pkg/database"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
)

// NeighborhoodRepository handles neighborhood mappings in PostgreSQL
type NeighborhoodRepository struct {
	db *database.PostgresDB
}

// NewNeighborhoodRepository creates a new neighborhood repository
func NewNeighborhoodRepository(db *database.PostgresDB) *NeighborhoodRepository {
	return &NeighborhoodRepository{db: db}
}

// Upsert writes all profiles in one transaction, replacing existing names
func (r *NeighborhoodRepository) Upsert(ctx context.Context, profiles []domain.NeighborhoodProfile) error {
	if len(profiles) == 0 {
		return nil
	}

	query := `
		INSERT INTO neighborhoods (name, sub_region, affluence, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET sub_region = EXCLUDED.sub_region, affluence = EXCLUDED.affluence, updated_at = EXCLUDED.updated_at
	`

	return database.Transaction(ctx, r.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range profiles {
			batch.Queue(query, p.Name, string(p.SubRegion), p.Affluence, p.UpdatedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to upsert neighborhoods: %w", err)
		}
		return nil
	})
}

// GetByName retrieves one neighborhood profile
func (r *NeighborhoodRepository) GetByName(ctx context.Context, name string) (*domain.NeighborhoodProfile, error) {
	query := `SELECT name, sub_region, affluence, updated_at FROM neighborhoods WHERE name = $1`

	var p domain.NeighborhoodProfile
	var region string
	err := r.db.Pool.QueryRow(ctx, query, name).Scan(&p.Name, &region, &p.Affluence, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("neighborhood")
		}
		return nil, fmt.Errorf("failed to get neighborhood: %w", err)
	}
	p.SubRegion = domain.SubRegion(region)

	return &p, nil
}

// List retrieves all neighborhood profiles ordered by name
func (r *NeighborhoodRepository) List(ctx context.Context) ([]domain.NeighborhoodProfile, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT name, sub_region, affluence, updated_at FROM neighborhoods ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list neighborhoods: %w", err)
	}
	defer rows.Close()

	var out []domain.NeighborhoodProfile
	for rows.Next() {
		var p domain.NeighborhoodProfile
		var region string
		if err := rows.Scan(&p.Name, &region, &p.Affluence, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan neighborhood: %w", err)
		}
		p.SubRegion = domain.SubRegion(region)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate neighborhoods: %w", err)
	}

	return out, nil
}
