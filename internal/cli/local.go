package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/domain"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
	"github.com/estately/priceuq/internal/service"
	"github.com/estately/priceuq/internal/storage"
)

const runIndexKey = "runs/index.json"

func runKey(id uuid.UUID) string {
	return path.Join("runs", id.String()+".json")
}

func predictionKey(runID, batchID uuid.UUID) string {
	return path.Join("predictions", runID.String(), batchID.String()+".json")
}

// localRuns keeps the run registry as JSON documents in the artifact store
type localRuns struct {
	store storage.ArtifactStore
	now   func() time.Time
}

func (r *localRuns) Create(ctx context.Context, run *domain.TrainingRun) error {
	ids, err := r.index(ctx)
	if err != nil {
		return err
	}
	if err := r.put(ctx, run); err != nil {
		return err
	}
	data, err := json.Marshal(append(ids, run.ID))
	if err != nil {
		return fmt.Errorf("failed to encode run index: %w", err)
	}
	return r.store.Put(ctx, runIndexKey, data, storage.ContentTypeJSON)
}

func (r *localRuns) GetByID(ctx context.Context, id uuid.UUID) (*domain.TrainingRun, error) {
	data, err := r.store.Get(ctx, runKey(id))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("training run")
		}
		return nil, err
	}
	var run domain.TrainingRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &run, nil
}

func (r *localRuns) List(ctx context.Context, filter *domain.RunFilter) (*domain.RunList, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		filter = &domain.RunFilter{}
	}

	matched := make([]domain.TrainingRun, 0, len(all))
	for _, run := range all {
		if filter.Status == nil || run.Status == *filter.Status {
			matched = append(matched, run)
		}
	}

	total := len(matched)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	return &domain.RunList{
		Runs:       matched[start:end],
		TotalCount: int64(total),
		HasMore:    end < total,
	}, nil
}

func (r *localRuns) ListCompletedSince(ctx context.Context, since time.Time) ([]domain.TrainingRun, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.TrainingRun
	for _, run := range all {
		if run.Status == domain.RunStatusCompleted && run.CompletedAt != nil && !run.CompletedAt.Before(since) {
			out = append(out, run)
		}
	}
	return out, nil
}

func (r *localRuns) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RunStatus, errMsg string) error {
	run, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	run.Status = status
	run.Error = errMsg
	run.UpdatedAt = r.now().UTC()
	return r.put(ctx, run)
}

func (r *localRuns) Complete(ctx context.Context, run *domain.TrainingRun) error {
	return r.put(ctx, run)
}

func (r *localRuns) put(ctx context.Context, run *domain.TrainingRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	return r.store.Put(ctx, runKey(run.ID), data, storage.ContentTypeJSON)
}

func (r *localRuns) index(ctx context.Context) ([]uuid.UUID, error) {
	data, err := r.store.Get(ctx, runIndexKey)
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("failed to decode run index: %w", err)
	}
	return ids, nil
}

// all returns every indexed run, newest first
func (r *localRuns) all(ctx context.Context) ([]domain.TrainingRun, error) {
	ids, err := r.index(ctx)
	if err != nil {
		return nil, err
	}
	runs := make([]domain.TrainingRun, 0, len(ids))
	for _, id := range ids {
		run, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	slices.SortStableFunc(runs, func(a, b domain.TrainingRun) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return runs, nil
}

var errNeedsWorker = errors.New("queued jobs need the worker process")

// localQueue collects training runs for the command to execute in-process
type localQueue struct {
	training []uuid.UUID
}

func (q *localQueue) EnqueueTraining(_ context.Context, runID uuid.UUID) error {
	q.training = append(q.training, runID)
	return nil
}

func (q *localQueue) EnqueueExplain(context.Context, *service.ExplainJob) error {
	return errNeedsWorker
}

func (q *localQueue) EnqueueReportExport(context.Context, uuid.UUID) error {
	return errNeedsWorker
}

// localPredictions writes scored batches next to the run artifacts
type localPredictions struct {
	store storage.ArtifactStore
}

func (p *localPredictions) InsertBatch(ctx context.Context, runID, batchID uuid.UUID, records []domain.PredictionRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode predictions: %w", err)
	}
	return p.store.Put(ctx, predictionKey(runID, batchID), data, storage.ContentTypeJSON)
}

// logProgress reports training progress through the logger
type logProgress struct {
	logger *zap.Logger
}

func (p logProgress) PublishProgress(_ context.Context, event domain.RunProgressEvent) error {
	if event.Epoch != nil {
		p.logger.Debug("epoch",
			zap.Int("epoch", event.Epoch.Epoch),
			zap.Float64("train_loss", event.Epoch.TrainLoss),
			zap.Float64("val_loss", event.Epoch.ValLoss),
			zap.Bool("improved", event.Epoch.Improved),
		)
		return nil
	}
	p.logger.Info("run "+string(event.Status), zap.String("run_id", event.RunID.String()), zap.String("message", event.Message))
	return nil
}

// workspace wires the services over a local directory
type workspace struct {
	store       *storage.DirStore
	runs        *localRuns
	queue       *localQueue
	training    *service.TrainingService
	prediction  *service.PredictionService
	attribution *service.AttributionService
	reports     *service.ReportService
}

func openWorkspace(dir string) (*workspace, error) {
	store, err := storage.NewDirStore(dir)
	if err != nil {
		return nil, err
	}
	runs := &localRuns{store: store, now: time.Now}
	queue := &localQueue{}

	models, err := service.NewModelCache(runs, store, 1)
	if err != nil {
		return nil, err
	}
	prediction, err := service.NewPredictionService(log, models, &localPredictions{store: store}, cfg.Uncertainty, cfg.Report.TopUncertain)
	if err != nil {
		return nil, err
	}

	return &workspace{
		store: store,
		runs:  runs,
		queue: queue,
		training: service.NewTrainingService(
			log, runs, store, &localPredictions{store: store}, queue, logProgress{logger: log}, cfg.Training, cfg.Uncertainty,
		),
		prediction: prediction,
		// Explanations run synchronously here, so no attribution log is kept.
		attribution: service.NewAttributionService(log, models, store, nil, queue, cfg.Attribution),
		reports:     service.NewReportService(log, runs, store, queue, cfg.Report.Prefix),
	}, nil
}
