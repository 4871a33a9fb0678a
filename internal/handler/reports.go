package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/service"
)

// ReportExporter copies run reports to the dated export prefix
type ReportExporter interface {
	Export(ctx context.Context, runID uuid.UUID) (*service.ExportResult, error)
	EnqueueExport(ctx context.Context, runID uuid.UUID) error
}

// ReportsHandler handles report export
type ReportsHandler struct {
	reports ReportExporter
	logger  *zap.Logger
}

// NewReportsHandler creates a new reports handler
func NewReportsHandler(reports ReportExporter, logger *zap.Logger) *ReportsHandler {
	return &ReportsHandler{reports: reports, logger: logger}
}

// Export handles POST /v1/runs/:id/report/export
func (h *ReportsHandler) Export(c *fiber.Ctx) error {
	runID, err := parseUUIDParam(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	if c.QueryBool("async") {
		if err := h.reports.EnqueueExport(c.UserContext(), runID); err != nil {
			return respondError(c, h.logger, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"runId": runID, "status": "queued"})
	}

	result, err := h.reports.Export(c.UserContext(), runID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(result)
}
