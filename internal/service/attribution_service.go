package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/attribution"
	"github.com/estately/priceuq/internal/config"
	"github.com/estately/priceuq/internal/domain"
	"github.com/estately/priceuq/internal/model"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
	"github.com/estately/priceuq/internal/pkg/id"
	"github.com/estately/priceuq/internal/pkg/metrics"
	"github.com/estately/priceuq/internal/storage"
)

// AttributionRepository persists explanation records
type AttributionRepository interface {
	InsertBatch(ctx context.Context, rows []domain.AttributionRow) error
	ListByJob(ctx context.Context, runID, jobID uuid.UUID) ([]domain.AttributionRecord, error)
}

// ExplainInput asks for attributions of one target over a set of queries.
// Zero NSamples and BackgroundSize take the configured defaults.
type ExplainInput struct {
	RunID          uuid.UUID         `json:"runId"`
	Target         domain.TargetKind `json:"target"`
	Queries        domain.FrameData  `json:"queries"`
	NSamples       int               `json:"nSamples,omitempty"`
	BackgroundSize int               `json:"backgroundSize,omitempty"`
	Seed           *uint64           `json:"seed,omitempty"`
}

// ExplainJob is an explanation queued for the workers
type ExplainJob struct {
	JobID uuid.UUID    `json:"jobId"`
	Input ExplainInput `json:"input"`
}

// ExplainResult holds per-query attributions and their global ranking
type ExplainResult struct {
	RunID      uuid.UUID                  `json:"runId"`
	JobID      *uuid.UUID                 `json:"jobId,omitempty"`
	Target     domain.TargetKind          `json:"target"`
	Records    []domain.AttributionRecord `json:"records"`
	Importance []domain.FeatureImportance `json:"importance"`
}

// AttributionService explains model outputs in terms of input features
type AttributionService struct {
	logger       *zap.Logger
	models       *ModelCache
	store        storage.ArtifactStore
	attributions AttributionRepository
	queue        TaskQueue
	cfg          config.AttributionConfig
}

// NewAttributionService creates a new attribution service
func NewAttributionService(
	logger *zap.Logger,
	models *ModelCache,
	store storage.ArtifactStore,
	attributions AttributionRepository,
	queue TaskQueue,
	cfg config.AttributionConfig,
) *AttributionService {
	return &AttributionService{
		logger:       logger,
		models:       models,
		store:        store,
		attributions: attributions,
		queue:        queue,
		cfg:          cfg,
	}
}

func (s *AttributionService) check(input *ExplainInput) error {
	if !input.Target.IsValid() {
		return apperrors.Validation(fmt.Sprintf("unknown target %q", input.Target))
	}
	if n := len(input.Queries.Rows); n > s.cfg.MaxQueries {
		return apperrors.Validation(fmt.Sprintf("%d queries exceeds the limit of %d", n, s.cfg.MaxQueries))
	}
	if input.NSamples < 0 || input.BackgroundSize < 0 {
		return apperrors.Validation("sample counts must not be negative")
	}
	return nil
}

// Explain computes attributions synchronously
func (s *AttributionService) Explain(ctx context.Context, input *ExplainInput) (*ExplainResult, error) {
	if err := s.check(input); err != nil {
		return nil, err
	}
	queries, err := input.Queries.Frame()
	if err != nil {
		return nil, err
	}
	run, m, err := s.models.Load(ctx, input.RunID)
	if err != nil {
		return nil, err
	}

	seed := run.Config.RandomSeed
	if input.Seed != nil {
		seed = *input.Seed
	}
	nSamples := input.NSamples
	if nSamples == 0 {
		nSamples = s.cfg.NCoalitionSamples
	}
	bgSize := input.BackgroundSize
	if bgSize == 0 {
		bgSize = s.cfg.BackgroundSampleSize
	}

	dataset, err := LoadDataset(ctx, s.store, run.DatasetKey)
	if err != nil {
		return nil, err
	}
	rng := model.NewRand(seed)
	background, err := dataset.SampleRows(bgSize, rng)
	if err != nil {
		return nil, err
	}

	target, err := attribution.NewTarget(input.Target, m, attribution.TargetConfig{
		EpistemicPasses: s.cfg.EpistemicPasses,
		Salt:            seed,
		Workers:         s.cfg.Workers,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	records, err := attribution.NewEngine(s.cfg.Workers).Explain(ctx, target, background, queries, nSamples, rng)
	if err != nil {
		return nil, err
	}
	metrics.RecordAttribution(string(input.Target), queries.Len(), time.Since(start))

	return &ExplainResult{
		RunID:      run.ID,
		Target:     input.Target,
		Records:    records,
		Importance: attribution.GlobalImportance(records, queries.Schema),
	}, nil
}

// EnqueueExplain validates input and queues it for the workers
func (s *AttributionService) EnqueueExplain(ctx context.Context, input *ExplainInput) (*ExplainJob, error) {
	if err := s.check(input); err != nil {
		return nil, err
	}
	if _, err := input.Queries.Frame(); err != nil {
		return nil, err
	}
	job := &ExplainJob{JobID: id.NewJobID(), Input: *input}
	if err := s.queue.EnqueueExplain(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue explanation: %w", err)
	}
	return job, nil
}

// ExecuteExplain runs a queued explanation and persists its records
func (s *AttributionService) ExecuteExplain(ctx context.Context, job *ExplainJob) error {
	result, err := s.Explain(ctx, &job.Input)
	if err != nil {
		return err
	}
	schema := domain.FeatureSchema(job.Input.Queries.Features)
	rows := make([]domain.AttributionRow, 0, len(result.Records)*len(schema))
	for _, r := range result.Records {
		rows = append(rows, r.Rows(job.Input.RunID, job.JobID, schema)...)
	}
	if err := s.attributions.InsertBatch(ctx, rows); err != nil {
		return fmt.Errorf("failed to store attributions: %w", err)
	}
	s.logger.Info("explanation stored",
		zap.String("job_id", job.JobID.String()),
		zap.String("run_id", job.Input.RunID.String()),
		zap.String("target", string(job.Input.Target)),
		zap.Int("rows", len(rows)),
	)
	return nil
}

// GetJob returns the stored records of an explanation job
func (s *AttributionService) GetJob(ctx context.Context, runID, jobID uuid.UUID) (*ExplainResult, error) {
	records, err := s.attributions.ListByJob(ctx, runID, jobID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NotFound("explanation job")
	}
	run, err := s.models.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &ExplainResult{
		RunID:      runID,
		JobID:      &jobID,
		Target:     records[0].Target,
		Records:    records,
		Importance: attribution.GlobalImportance(records, domain.FeatureSchema(run.Features)),
	}, nil
}
