package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/estately/priceuq/internal/domain"
	"github.com/estately/priceuq/internal/pkg/database"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
)

const runColumns = `
	id, name, status, features, dataset_key, dataset_hash, snapshot_key,
	report_key, config, report, metrics, error, created_at, updated_at, completed_at
`

// RunRepository handles training run data operations in PostgreSQL
type RunRepository struct {
	db *database.PostgresDB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *database.PostgresDB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run
func (r *RunRepository) Create(ctx context.Context, run *domain.TrainingRun) error {
	query := `
		INSERT INTO training_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		run.ID,
		run.Name,
		string(run.Status),
		run.Features,
		run.DatasetKey,
		run.DatasetHash,
		run.SnapshotKey,
		run.ReportKey,
		run.Config,
		run.Report,
		run.Metrics,
		run.Error,
		run.CreatedAt,
		run.UpdatedAt,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetByID retrieves a run by ID
func (r *RunRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TrainingRun, error) {
	query := `SELECT ` + runColumns + ` FROM training_runs WHERE id = $1`

	run, err := scanRun(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("run")
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// List retrieves runs newest first
func (r *RunRepository) List(ctx context.Context, filter *domain.RunFilter) (*domain.RunList, error) {
	limit, offset := 50, 0
	var status *string
	if filter != nil {
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		offset = filter.Offset
		if filter.Status != nil {
			s := string(*filter.Status)
			status = &s
		}
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM training_runs WHERE ($1::text IS NULL OR status = $1)`
	if err := r.db.Pool.QueryRow(ctx, countQuery, status).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	query := `
		SELECT ` + runColumns + `
		FROM training_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs, err := collectRuns(rows)
	if err != nil {
		return nil, err
	}

	return &domain.RunList{
		Runs:       runs,
		TotalCount: total,
		HasMore:    int64(offset+len(runs)) < total,
	}, nil
}

// ListCompletedSince retrieves runs completed at or after since, oldest first
func (r *RunRepository) ListCompletedSince(ctx context.Context, since time.Time) ([]domain.TrainingRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM training_runs
		WHERE status = $1 AND completed_at >= $2
		ORDER BY completed_at ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, string(domain.RunStatusCompleted), since)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// UpdateStatus moves a non-terminal run to status, recording errMsg for failures
func (r *RunRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RunStatus, errMsg string) error {
	query := `
		UPDATE training_runs
		SET status = $2, error = $3, updated_at = NOW(),
		    completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN NOW() ELSE completed_at END
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, string(status), errMsg)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.Conflict("run is finished or does not exist")
	}

	return nil
}

// Complete stores the artifacts and metrics of a finished run
func (r *RunRepository) Complete(ctx context.Context, run *domain.TrainingRun) error {
	query := `
		UPDATE training_runs
		SET status = $2, snapshot_key = $3, report_key = $4, report = $5,
		    metrics = $6, updated_at = $7, completed_at = $8
		WHERE id = $1 AND status = 'running'
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		run.ID,
		string(domain.RunStatusCompleted),
		run.SnapshotKey,
		run.ReportKey,
		run.Report,
		run.Metrics,
		run.UpdatedAt,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.Conflict("run is not running")
	}

	return nil
}

func collectRuns(rows pgx.Rows) ([]domain.TrainingRun, error) {
	var runs []domain.TrainingRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*domain.TrainingRun, error) {
	var run domain.TrainingRun
	var status string
	err := row.Scan(
		&run.ID,
		&run.Name,
		&status,
		&run.Features,
		&run.DatasetKey,
		&run.DatasetHash,
		&run.SnapshotKey,
		&run.ReportKey,
		&run.Config,
		&run.Report,
		&run.Metrics,
		&run.Error,
		&run.CreatedAt,
		&run.UpdatedAt,
		&run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Status = domain.RunStatus(status)
	return &run, nil
}
