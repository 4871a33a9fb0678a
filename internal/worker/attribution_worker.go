package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/service"
)

// ExplainExecutor computes and stores a queued explanation
type ExplainExecutor interface {
	ExecuteExplain(ctx context.Context, job *service.ExplainJob) error
}

// AttributionWorker handles explanation tasks
type AttributionWorker struct {
	logger    *zap.Logger
	explainer ExplainExecutor
}

// NewAttributionWorker creates a new attribution worker
func NewAttributionWorker(logger *zap.Logger, explainer ExplainExecutor) *AttributionWorker {
	return &AttributionWorker{logger: logger, explainer: explainer}
}

// ProcessTask processes an explanation task
func (w *AttributionWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var job service.ExplainJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal explain payload: %v: %w", err, asynq.SkipRetry)
	}

	w.logger.Info("processing explanation",
		zap.String("job_id", job.JobID.String()),
		zap.String("run_id", job.Input.RunID.String()),
		zap.String("target", string(job.Input.Target)),
		zap.Int("queries", len(job.Input.Queries.Rows)),
	)

	if err := w.explainer.ExecuteExplain(ctx, &job); err != nil {
		return taskError(fmt.Errorf("explanation %s: %w", job.JobID, err))
	}
	return nil
}
