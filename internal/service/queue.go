package service

import (
	"context"

	"github.com/google/uuid"
)

// TaskQueue hands long-running work to the background workers
type TaskQueue interface {
	EnqueueTraining(ctx context.Context, runID uuid.UUID) error
	EnqueueExplain(ctx context.Context, job *ExplainJob) error
	EnqueueReportExport(ctx context.Context, runID uuid.UUID) error
}
