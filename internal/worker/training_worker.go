package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// RunExecutor trains a run
type RunExecutor interface {
	ExecuteRun(ctx context.Context, runID uuid.UUID) error
}

// TrainingWorker handles training tasks
type TrainingWorker struct {
	logger *zap.Logger
	runs   RunExecutor
}

// NewTrainingWorker creates a new training worker
func NewTrainingWorker(logger *zap.Logger, runs RunExecutor) *TrainingWorker {
	return &TrainingWorker{logger: logger, runs: runs}
}

// ProcessTask processes a training task
func (w *TrainingWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload TrainPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal train payload: %v: %w", err, asynq.SkipRetry)
	}

	w.logger.Info("processing training run", zap.String("run_id", payload.RunID.String()))

	if err := w.runs.ExecuteRun(ctx, payload.RunID); err != nil {
		return taskError(fmt.Errorf("run %s: %w", payload.RunID, err))
	}
	return nil
}
