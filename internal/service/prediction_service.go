package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/config"
	"github.com/estately/priceuq/internal/domain"
	"github.com/estately/priceuq/internal/pkg/id"
	"github.com/estately/priceuq/internal/uncertainty"
)

// PredictInput is a batch to score against a completed run
type PredictInput struct {
	RunID   uuid.UUID
	Batch   domain.FrameData
	Seed    *uint64
	Persist bool
}

// PredictResult is a scored batch
type PredictResult struct {
	RunID   uuid.UUID                `json:"runId"`
	BatchID uuid.UUID                `json:"batchId"`
	Report  domain.UncertaintyReport `json:"report"`
	// MostUncertain lists record indices by decreasing total std.
	MostUncertain []int `json:"mostUncertain"`
}

// PredictionService scores batches with decomposed uncertainty
type PredictionService struct {
	logger      *zap.Logger
	models      *ModelCache
	predictions PredictionRecorder
	decomposer  *uncertainty.Decomposer
	cfg         config.UncertaintyConfig
	topK        int
}

// NewPredictionService creates a new prediction service
func NewPredictionService(
	logger *zap.Logger,
	models *ModelCache,
	predictions PredictionRecorder,
	cfg config.UncertaintyConfig,
	topK int,
) (*PredictionService, error) {
	dec, err := uncertainty.NewDecomposer(uncertainty.DecomposerConfig{
		PricePercentile:     cfg.PricePercentile,
		AleatoricPercentile: cfg.AleatoricPercentile,
	})
	if err != nil {
		return nil, err
	}
	return &PredictionService{
		logger:      logger,
		models:      models,
		predictions: predictions,
		decomposer:  dec,
		cfg:         cfg,
		topK:        topK,
	}, nil
}

// Predict scores input.Batch with the run's model. Batch targets, when
// given, are treated as log-scale truth for coverage.
func (s *PredictionService) Predict(ctx context.Context, input *PredictInput) (*PredictResult, error) {
	run, m, err := s.models.Load(ctx, input.RunID)
	if err != nil {
		return nil, err
	}
	frame, err := input.Batch.Frame()
	if err != nil {
		return nil, err
	}

	seed := run.Config.RandomSeed
	if input.Seed != nil {
		seed = *input.Seed
	}
	passes := run.Config.EpistemicPasses
	if passes < 2 {
		passes = s.cfg.EpistemicPasses
	}

	report, err := ScoreFrame(ctx, m, s.decomposer, frame, ScoreOptions{
		Passes:     passes,
		Workers:    s.cfg.Workers,
		Seed:       seed,
		PriceScale: run.Config.PriceScale,
	})
	if err != nil {
		return nil, err
	}

	result := &PredictResult{
		RunID:         run.ID,
		BatchID:       id.NewJobID(),
		Report:        report,
		MostUncertain: uncertainty.MostUncertain(report, s.topK),
	}

	if input.Persist && s.predictions != nil {
		if err := s.predictions.InsertBatch(ctx, run.ID, result.BatchID, report.Records); err != nil {
			return nil, fmt.Errorf("failed to record predictions: %w", err)
		}
	}

	s.logger.Debug("batch scored",
		zap.String("run_id", run.ID.String()),
		zap.String("batch_id", result.BatchID.String()),
		zap.Int("samples", len(report.Records)),
		zap.Int("outliers", len(report.Outliers.Indices)),
	)
	return result, nil
}
