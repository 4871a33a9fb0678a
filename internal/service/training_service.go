package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/config"
	"github.com/estately/priceuq/internal/domain"
	"github.com/estately/priceuq/internal/model"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
	"github.com/estately/priceuq/internal/pkg/id"
	"github.com/estately/priceuq/internal/pkg/metrics"
	"github.com/estately/priceuq/internal/storage"
	"github.com/estately/priceuq/internal/uncertainty"
)

// RunRepository defines training run repository operations
type RunRepository interface {
	Create(ctx context.Context, run *domain.TrainingRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TrainingRun, error)
	List(ctx context.Context, filter *domain.RunFilter) (*domain.RunList, error)
	ListCompletedSince(ctx context.Context, since time.Time) ([]domain.TrainingRun, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RunStatus, errMsg string) error
	Complete(ctx context.Context, run *domain.TrainingRun) error
}

// PredictionRecorder persists scored prediction batches
type PredictionRecorder interface {
	InsertBatch(ctx context.Context, runID, batchID uuid.UUID, records []domain.PredictionRecord) error
}

// TrainingService creates runs and executes them on the workers
type TrainingService struct {
	logger      *zap.Logger
	runs        RunRepository
	store       storage.ArtifactStore
	predictions PredictionRecorder
	queue       TaskQueue
	progress    ProgressPublisher
	training    config.TrainingConfig
	uncertainty config.UncertaintyConfig
	now         func() time.Time
}

// NewTrainingService creates a new training service
func NewTrainingService(
	logger *zap.Logger,
	runs RunRepository,
	store storage.ArtifactStore,
	predictions PredictionRecorder,
	queue TaskQueue,
	progress ProgressPublisher,
	training config.TrainingConfig,
	uncertaintyCfg config.UncertaintyConfig,
) *TrainingService {
	return &TrainingService{
		logger:      logger,
		runs:        runs,
		store:       store,
		predictions: predictions,
		queue:       queue,
		progress:    progress,
		training:    training,
		uncertainty: uncertaintyCfg,
		now:         time.Now,
	}
}

// CreateRun stores the dataset, records a pending run and queues training
func (s *TrainingService) CreateRun(ctx context.Context, input *domain.CreateRunInput) (*domain.TrainingRun, error) {
	frame, err := input.Dataset.Frame()
	if err != nil {
		return nil, err
	}
	if !frame.HasTargets() {
		return nil, apperrors.Validation("dataset must include targets")
	}
	if frame.Len() < 4 {
		return nil, apperrors.Validation("dataset needs at least 4 rows")
	}

	rc := s.runConfig(input.Options)
	if err := modelConfig(rc, s.training.BatchNormMomentum).Validate(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(frame.Data())
	if err != nil {
		return nil, fmt.Errorf("failed to encode dataset: %w", err)
	}

	now := s.now().UTC()
	run := &domain.TrainingRun{
		ID:          id.NewRunID(),
		Name:        input.Name,
		Status:      domain.RunStatusPending,
		Features:    append([]string(nil), frame.Schema...),
		DatasetHash: id.DatasetFingerprint(data),
		Config:      rc,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	run.DatasetKey = storage.DatasetKey(run.ID)

	if err := s.store.Put(ctx, run.DatasetKey, data, storage.ContentTypeJSON); err != nil {
		return nil, fmt.Errorf("failed to store dataset: %w", err)
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	if err := s.queue.EnqueueTraining(ctx, run.ID); err != nil {
		if uerr := s.runs.UpdateStatus(ctx, run.ID, domain.RunStatusFailed, "failed to enqueue training"); uerr != nil {
			s.logger.Error("failed to mark run failed", zap.String("run_id", run.ID.String()), zap.Error(uerr))
		}
		return nil, fmt.Errorf("failed to enqueue training: %w", err)
	}

	s.logger.Info("training run created",
		zap.String("run_id", run.ID.String()),
		zap.Int("rows", frame.Len()),
		zap.Int("features", len(frame.Schema)),
	)
	return run, nil
}

// GetRun retrieves a run by ID
func (s *TrainingService) GetRun(ctx context.Context, runID uuid.UUID) (*domain.TrainingRun, error) {
	return s.runs.GetByID(ctx, runID)
}

// ListRuns retrieves runs with filtering
func (s *TrainingService) ListRuns(ctx context.Context, filter *domain.RunFilter) (*domain.RunList, error) {
	return s.runs.List(ctx, filter)
}

// ExecuteRun trains the run's model and publishes its artifacts. Runs that
// already finished are left untouched, so redelivered tasks are harmless.
func (s *TrainingService) ExecuteRun(ctx context.Context, runID uuid.UUID) error {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if run.Status.IsTerminal() {
		s.logger.Info("run already finished", zap.String("run_id", runID.String()), zap.String("status", string(run.Status)))
		return nil
	}

	if err := s.runs.UpdateStatus(ctx, runID, domain.RunStatusRunning, ""); err != nil {
		return fmt.Errorf("failed to mark run running: %w", err)
	}
	run.Status = domain.RunStatusRunning
	s.publish(ctx, domain.RunProgressEvent{RunID: runID, Type: domain.RunEventStatus, Status: domain.RunStatusRunning})

	start := time.Now()
	if err := s.train(ctx, run); err != nil {
		s.fail(ctx, run, err)
		metrics.RecordTrainingRun(string(domain.RunStatusFailed), time.Since(start), 0, 0)
		return err
	}

	completed := s.now().UTC()
	run.Status = domain.RunStatusCompleted
	run.CompletedAt = &completed
	run.UpdatedAt = completed
	if err := s.runs.Complete(ctx, run); err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	metrics.RecordTrainingRun(string(domain.RunStatusCompleted), time.Since(start), run.Report.EpochsRun, run.Report.BestValLoss)
	s.publish(ctx, domain.RunProgressEvent{RunID: runID, Type: domain.RunEventStatus, Status: domain.RunStatusCompleted})

	s.logger.Info("training run completed",
		zap.String("run_id", runID.String()),
		zap.Int("epochs", run.Report.EpochsRun),
		zap.Float64("best_val_loss", run.Report.BestValLoss),
		zap.Float64("r_squared", run.Metrics.RSquared),
		zap.Float64("coverage", run.Metrics.CoverageObserved),
	)
	return nil
}

func (s *TrainingService) train(ctx context.Context, run *domain.TrainingRun) error {
	frame, err := LoadDataset(ctx, s.store, run.DatasetKey)
	if err != nil {
		return err
	}

	rc := run.Config
	train, val, err := frame.Split(rc.ValidationFraction, model.NewRand(rc.RandomSeed))
	if err != nil {
		return err
	}

	m, err := model.New(frame.Schema, modelConfig(rc, s.training.BatchNormMomentum))
	if err != nil {
		return err
	}
	report, err := m.Fit(ctx, train, val, model.WithEpochCallback(func(e domain.EpochStats) {
		s.publish(ctx, domain.RunProgressEvent{
			RunID:  run.ID,
			Type:   domain.RunEventEpoch,
			Status: domain.RunStatusRunning,
			Epoch:  &e,
		})
	}))
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	dec, err := uncertainty.NewDecomposer(uncertainty.DecomposerConfig{
		PricePercentile:     s.uncertainty.PricePercentile,
		AleatoricPercentile: s.uncertainty.AleatoricPercentile,
	})
	if err != nil {
		return err
	}
	evaluation, err := ScoreFrame(ctx, m, dec, val, ScoreOptions{
		Passes:     rc.EpistemicPasses,
		Workers:    s.uncertainty.Workers,
		Seed:       rc.RandomSeed,
		PriceScale: rc.PriceScale,
	})
	if err != nil {
		return fmt.Errorf("validation scoring failed: %w", err)
	}

	snapshot, err := m.MarshalSnapshot()
	if err != nil {
		return err
	}
	run.SnapshotKey = storage.SnapshotKey(run.ID)
	if err := s.store.Put(ctx, run.SnapshotKey, snapshot, storage.ContentTypeJSON); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	reportData, err := json.Marshal(evaluation)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	run.ReportKey = storage.ReportKey(run.ID)
	if err := s.store.Put(ctx, run.ReportKey, reportData, storage.ContentTypeJSON); err != nil {
		return fmt.Errorf("failed to store report: %w", err)
	}

	if err := s.predictions.InsertBatch(ctx, run.ID, id.NewJobID(), evaluation.Records); err != nil {
		return fmt.Errorf("failed to record validation predictions: %w", err)
	}

	run.Report = &report
	run.Metrics = validationMetrics(evaluation, val.Targets)
	return nil
}

func (s *TrainingService) fail(ctx context.Context, run *domain.TrainingRun, cause error) {
	// The status update must land even when the task context was cancelled.
	ctx = context.WithoutCancel(ctx)
	if err := s.runs.UpdateStatus(ctx, run.ID, domain.RunStatusFailed, cause.Error()); err != nil {
		s.logger.Error("failed to mark run failed", zap.String("run_id", run.ID.String()), zap.Error(err))
	}
	s.publish(ctx, domain.RunProgressEvent{
		RunID:   run.ID,
		Type:    domain.RunEventStatus,
		Status:  domain.RunStatusFailed,
		Message: cause.Error(),
	})
	s.logger.Warn("training run failed", zap.String("run_id", run.ID.String()), zap.Error(cause))
}

func (s *TrainingService) publish(ctx context.Context, event domain.RunProgressEvent) {
	if s.progress == nil {
		return
	}
	event.Timestamp = s.now().UTC()
	if err := s.progress.PublishProgress(ctx, event); err != nil {
		s.logger.Warn("failed to publish run progress",
			zap.String("run_id", event.RunID.String()),
			zap.String("type", event.Type),
			zap.Error(err),
		)
	}
}

// runConfig applies per-run overrides to the configured defaults
func (s *TrainingService) runConfig(o *domain.RunOverrides) domain.RunConfig {
	rc := domain.RunConfig{
		LearningRate:          s.training.LearningRate,
		MaxEpochs:             s.training.MaxEpochs,
		EarlyStoppingPatience: s.training.EarlyStoppingPatience,
		DropoutRate:           s.training.DropoutRate,
		RandomSeed:            s.training.RandomSeed,
		HiddenLayers:          append([]int(nil), s.training.HiddenLayers...),
		BatchSize:             s.training.BatchSize,
		ValidationFraction:    s.training.ValidationFraction,
		EpistemicPasses:       s.uncertainty.EpistemicPasses,
		NLLEpsilon:            s.uncertainty.NLLEpsilon,
		PriceScale:            s.uncertainty.PriceScale,
	}
	if o == nil {
		return rc
	}
	if o.LearningRate != nil {
		rc.LearningRate = *o.LearningRate
	}
	if o.MaxEpochs != nil {
		rc.MaxEpochs = *o.MaxEpochs
	}
	if o.EarlyStoppingPatience != nil {
		rc.EarlyStoppingPatience = *o.EarlyStoppingPatience
	}
	if o.DropoutRate != nil {
		rc.DropoutRate = *o.DropoutRate
	}
	if o.RandomSeed != nil {
		rc.RandomSeed = *o.RandomSeed
	}
	if len(o.HiddenLayers) > 0 {
		rc.HiddenLayers = append([]int(nil), o.HiddenLayers...)
	}
	if o.PriceScale != nil {
		rc.PriceScale = *o.PriceScale
	}
	return rc
}

func modelConfig(rc domain.RunConfig, momentum float64) model.Config {
	cfg := model.DefaultConfig()
	cfg.HiddenLayers = rc.HiddenLayers
	cfg.LearningRate = rc.LearningRate
	cfg.MaxEpochs = rc.MaxEpochs
	cfg.EarlyStoppingPatience = rc.EarlyStoppingPatience
	cfg.DropoutRate = rc.DropoutRate
	cfg.RandomSeed = rc.RandomSeed
	cfg.BatchSize = rc.BatchSize
	cfg.NLLEpsilon = rc.NLLEpsilon
	if momentum > 0 {
		cfg.BatchNormMomentum = momentum
	}
	return cfg
}
