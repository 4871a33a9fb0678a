package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/estately/priceuq/internal/config"
	"github.com/estately/priceuq/internal/service"
)

const (
	// TypeModelTrain trains a pending run
	TypeModelTrain = "model:train"
	// TypeAttributionExplain computes a queued explanation
	TypeAttributionExplain = "attribution:explain"
	// TypeReportExport publishes one run's report
	TypeReportExport = "report:export"
	// TypeReportNightly publishes every report completed in the last day
	TypeReportNightly = "report:nightly"
)

// TrainPayload is the payload for training tasks
type TrainPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

// NewTrainTask creates a training task. The task ID is the run ID so a run is
// queued at most once.
func NewTrainTask(payload *TrainPayload, timeout time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal train payload: %w", err)
	}
	return asynq.NewTask(TypeModelTrain, data,
		asynq.MaxRetry(2),
		asynq.Timeout(timeout),
		asynq.TaskID("train:"+payload.RunID.String()),
	), nil
}

// NewExplainTask creates an explanation task
func NewExplainTask(job *service.ExplainJob, timeout time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal explain payload: %w", err)
	}
	return asynq.NewTask(TypeAttributionExplain, data,
		asynq.MaxRetry(2),
		asynq.Timeout(timeout),
		asynq.TaskID("explain:"+job.JobID.String()),
	), nil
}

// ReportExportPayload is the payload for report export tasks
type ReportExportPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

// NewReportExportTask creates a report export task
func NewReportExportTask(payload *ReportExportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report export payload: %w", err)
	}
	return asynq.NewTask(TypeReportExport, data, asynq.MaxRetry(5), asynq.Timeout(5*time.Minute)), nil
}

// NightlyPayload is the payload for the scheduled export
type NightlyPayload struct {
	// Window is how far back completed runs are exported
	Window time.Duration `json:"window"`
}

// NewNightlyTask creates the scheduled export task
func NewNightlyTask(window time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(&NightlyPayload{Window: window})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal nightly payload: %w", err)
	}
	return asynq.NewTask(TypeReportNightly, data, asynq.MaxRetry(1), asynq.Timeout(30*time.Minute)), nil
}

// TaskEnqueuer is the subset of asynq.Client used to queue work
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue implements service.TaskQueue on asynq
type Queue struct {
	client TaskEnqueuer
	cfg    config.WorkerConfig
}

var _ service.TaskQueue = (*Queue)(nil)

// NewQueue creates a queue on client
func NewQueue(client TaskEnqueuer, cfg config.WorkerConfig) *Queue {
	return &Queue{client: client, cfg: cfg}
}

// EnqueueTraining queues a run on the critical queue
func (q *Queue) EnqueueTraining(ctx context.Context, runID uuid.UUID) error {
	task, err := NewTrainTask(&TrainPayload{RunID: runID}, q.cfg.TrainTimeout)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, task, asynq.Queue(q.cfg.QueueCritical))
	return err
}

// EnqueueExplain queues an explanation on the default queue
func (q *Queue) EnqueueExplain(ctx context.Context, job *service.ExplainJob) error {
	task, err := NewExplainTask(job, q.cfg.ExplainTimeout)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, task, asynq.Queue(q.cfg.QueueDefault))
	return err
}

// EnqueueReportExport queues a report export on the low queue
func (q *Queue) EnqueueReportExport(ctx context.Context, runID uuid.UUID) error {
	task, err := NewReportExportTask(&ReportExportPayload{RunID: runID})
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, task, asynq.Queue(q.cfg.QueueLow))
	return err
}
