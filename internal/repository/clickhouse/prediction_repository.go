package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/estately/priceuq/internal/domain"
	"github.com/estately/priceuq/internal/pkg/database"
)

// PredictionRow is the stored form of one prediction record
type PredictionRow struct {
	RunID             uuid.UUID `ch:"run_id"`
	BatchID           uuid.UUID `ch:"batch_id"`
	SampleIndex       uint32    `ch:"sample_index"`
	Mu                float64   `ch:"mu"`
	SigmaSq           float64   `ch:"sigma_sq"`
	EpistemicStd      float64   `ch:"epistemic_std"`
	PredictedPrice    float64   `ch:"predicted_price"`
	AleatoricStdPrice float64   `ch:"aleatoric_std_price"`
	EpistemicStdPrice float64   `ch:"epistemic_std_price"`
	TotalStdPrice     float64   `ch:"total_std_price"`
	IntervalLower     float64   `ch:"interval_lower"`
	IntervalUpper     float64   `ch:"interval_upper"`
	ActualPrice       *float64  `ch:"actual_price"`
	WithinInterval    *bool     `ch:"within_interval"`
	Flags             []string  `ch:"flags"`
	CreatedAt         time.Time `ch:"created_at"`
}

// Record converts the row back to a domain record
func (r PredictionRow) Record() domain.PredictionRecord {
	return domain.PredictionRecord{
		Index:             int(r.SampleIndex),
		Mu:                r.Mu,
		SigmaSq:           r.SigmaSq,
		EpistemicStd:      r.EpistemicStd,
		PredictedPrice:    r.PredictedPrice,
		AleatoricStdPrice: r.AleatoricStdPrice,
		EpistemicStdPrice: r.EpistemicStdPrice,
		TotalStdPrice:     r.TotalStdPrice,
		IntervalLower:     r.IntervalLower,
		IntervalUpper:     r.IntervalUpper,
		ActualPrice:       r.ActualPrice,
		WithinInterval:    r.WithinInterval,
		Flags:             r.Flags,
	}
}

// PredictionStats aggregates the stored predictions of a run
type PredictionStats struct {
	Samples          uint64  `ch:"samples" json:"samples"`
	MeanTotalStd     float64 `ch:"mean_total_std" json:"meanTotalStd"`
	MeanAleatoricStd float64 `ch:"mean_aleatoric_std" json:"meanAleatoricStd"`
	MeanEpistemicStd float64 `ch:"mean_epistemic_std" json:"meanEpistemicStd"`
	Covered          uint64  `ch:"covered" json:"covered"`
	WithTruth        uint64  `ch:"with_truth" json:"withTruth"`
	Flagged          uint64  `ch:"flagged" json:"flagged"`
}

// PredictionRepository handles prediction records in ClickHouse
type PredictionRepository struct {
	db *database.ClickHouseDB
}

// NewPredictionRepository creates a new prediction repository
func NewPredictionRepository(db *database.ClickHouseDB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// InsertBatch stores all records of one prediction batch
func (r *PredictionRepository) InsertBatch(ctx context.Context, runID, batchID uuid.UUID, records []domain.PredictionRecord) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO predictions (
			run_id, batch_id, sample_index, mu, sigma_sq, epistemic_std,
			predicted_price, aleatoric_std_price, epistemic_std_price, total_std_price,
			interval_lower, interval_upper, actual_price, within_interval, flags, created_at
		)
	`
	return r.db.SendBatch(ctx, query, len(records), func(i int) []any {
		rec := records[i]
		flags := rec.Flags
		if flags == nil {
			flags = []string{}
		}
		return []any{
			runID,
			batchID,
			uint32(rec.Index),
			rec.Mu,
			rec.SigmaSq,
			rec.EpistemicStd,
			rec.PredictedPrice,
			rec.AleatoricStdPrice,
			rec.EpistemicStdPrice,
			rec.TotalStdPrice,
			rec.IntervalLower,
			rec.IntervalUpper,
			rec.ActualPrice,
			rec.WithinInterval,
			flags,
			now,
		}
	})
}

// ListByBatch retrieves the records of one batch in sample order
func (r *PredictionRepository) ListByBatch(ctx context.Context, runID, batchID uuid.UUID) ([]domain.PredictionRecord, error) {
	query := `
		SELECT
			run_id, batch_id, sample_index, mu, sigma_sq, epistemic_std,
			predicted_price, aleatoric_std_price, epistemic_std_price, total_std_price,
			interval_lower, interval_upper, actual_price, within_interval, flags, created_at
		FROM predictions
		WHERE run_id = ? AND batch_id = ?
		ORDER BY sample_index
	`

	var rows []PredictionRow
	if err := r.db.Select(ctx, &rows, query, runID, batchID); err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}

	out := make([]domain.PredictionRecord, len(rows))
	for i, row := range rows {
		out[i] = row.Record()
	}
	return out, nil
}

// Stats aggregates every stored prediction of a run
func (r *PredictionRepository) Stats(ctx context.Context, runID uuid.UUID) (*PredictionStats, error) {
	query := `
		SELECT
			count() AS samples,
			avg(total_std_price) AS mean_total_std,
			avg(aleatoric_std_price) AS mean_aleatoric_std,
			avg(epistemic_std_price) AS mean_epistemic_std,
			countIf(within_interval = true) AS covered,
			countIf(isNotNull(actual_price)) AS with_truth,
			countIf(length(flags) > 0) AS flagged
		FROM predictions
		WHERE run_id = ?
	`

	var stats []PredictionStats
	if err := r.db.Select(ctx, &stats, query, runID); err != nil {
		return nil, fmt.Errorf("failed to aggregate predictions: %w", err)
	}
	if len(stats) == 0 {
		return &PredictionStats{}, nil
	}
	return &stats[0], nil
}
