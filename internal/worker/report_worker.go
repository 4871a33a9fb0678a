package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/service"
)

// ReportExporter publishes run reports
type ReportExporter interface {
	Export(ctx context.Context, runID uuid.UUID) (*service.ExportResult, error)
	ExportSince(ctx context.Context, window time.Duration) (int, error)
}

// ReportWorker handles report export tasks
type ReportWorker struct {
	logger   *zap.Logger
	exporter ReportExporter
}

// NewReportWorker creates a new report worker
func NewReportWorker(logger *zap.Logger, exporter ReportExporter) *ReportWorker {
	return &ReportWorker{logger: logger, exporter: exporter}
}

// ProcessTask exports one run's report
func (w *ReportWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ReportExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal report export payload: %v: %w", err, asynq.SkipRetry)
	}

	result, err := w.exporter.Export(ctx, payload.RunID)
	if err != nil {
		return taskError(fmt.Errorf("export %s: %w", payload.RunID, err))
	}
	w.logger.Info("report exported", zap.String("run_id", payload.RunID.String()), zap.String("key", result.Key))
	return nil
}

// ProcessNightlyTask exports every run completed within the payload window
func (w *ReportWorker) ProcessNightlyTask(ctx context.Context, t *asynq.Task) error {
	var payload NightlyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal nightly payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Window <= 0 {
		payload.Window = 24 * time.Hour
	}

	n, err := w.exporter.ExportSince(ctx, payload.Window)
	w.logger.Info("nightly report export finished",
		zap.Int("exported", n),
		zap.Duration("window", payload.Window),
		zap.Error(err),
	)
	return err
}
