package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/domain"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
	"github.com/estately/priceuq/internal/storage"
)

// DefaultReportPrefix is where exported reports are published
const DefaultReportPrefix = "uncertainty_reports"

// ExportResult locates an exported report
type ExportResult struct {
	RunID uuid.UUID `json:"runId"`
	Key   string    `json:"key"`
}

// ReportService publishes validation reports under dated keys
type ReportService struct {
	logger *zap.Logger
	runs   RunRepository
	store  storage.ArtifactStore
	queue  TaskQueue
	prefix string
	now    func() time.Time
}

// NewReportService creates a new report service
func NewReportService(logger *zap.Logger, runs RunRepository, store storage.ArtifactStore, queue TaskQueue, prefix string) *ReportService {
	if prefix == "" {
		prefix = DefaultReportPrefix
	}
	return &ReportService{logger: logger, runs: runs, store: store, queue: queue, prefix: prefix, now: time.Now}
}

// Export copies the run's report to prefix/YYYY-MM-DD/<run>.json
func (s *ReportService) Export(ctx context.Context, runID uuid.UUID) (*ExportResult, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunStatusCompleted || run.ReportKey == "" {
		return nil, apperrors.Conflict(fmt.Sprintf("run %s has no report yet", run.ID))
	}

	key := storage.ExportKey(s.prefix, s.now(), run.ID)
	if err := s.store.Copy(ctx, run.ReportKey, key); err != nil {
		return nil, fmt.Errorf("failed to export report: %w", err)
	}
	s.logger.Info("report exported", zap.String("run_id", run.ID.String()), zap.String("key", key))
	return &ExportResult{RunID: run.ID, Key: key}, nil
}

// EnqueueExport checks the run has a report and queues the export
func (s *ReportService) EnqueueExport(ctx context.Context, runID uuid.UUID) error {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != domain.RunStatusCompleted {
		return apperrors.Conflict(fmt.Sprintf("run %s has no report yet", run.ID))
	}
	return s.queue.EnqueueReportExport(ctx, runID)
}

// ExportSince exports every run completed within window. Failures on single
// runs do not stop the rest; they are joined into the returned error.
func (s *ReportService) ExportSince(ctx context.Context, window time.Duration) (int, error) {
	runs, err := s.runs.ListCompletedSince(ctx, s.now().Add(-window))
	if err != nil {
		return 0, err
	}
	exported := 0
	var errs []error
	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			return exported, err
		}
		if _, err := s.Export(ctx, run.ID); err != nil {
			errs = append(errs, fmt.Errorf("run %s: %w", run.ID, err))
			continue
		}
		exported++
	}
	return exported, errors.Join(errs...)
}
