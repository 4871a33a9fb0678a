package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/domain"
	"github.com/estately/priceuq/internal/dto"
	"github.com/estately/priceuq/internal/middleware"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
	"github.com/estately/priceuq/internal/validator"
)

// RunService is the part of the training service the API exposes
type RunService interface {
	CreateRun(ctx context.Context, input *domain.CreateRunInput) (*domain.TrainingRun, error)
	GetRun(ctx context.Context, runID uuid.UUID) (*domain.TrainingRun, error)
	ListRuns(ctx context.Context, filter *domain.RunFilter) (*domain.RunList, error)
}

// RunsHandler handles training run endpoints
type RunsHandler struct {
	runs   RunService
	logger *zap.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(runs RunService, logger *zap.Logger) *RunsHandler {
	return &RunsHandler{runs: runs, logger: logger}
}

// CreateRun handles POST /v1/runs
func (h *RunsHandler) CreateRun(c *fiber.Ctx) error {
	var req dto.CreateRunRequest
	if err := dto.ParseAndValidate(c, &req); err != nil {
		return respondError(c, h.logger, err)
	}

	run, err := h.runs.CreateRun(c.UserContext(), req.ToInput())
	if err != nil {
		return respondError(c, h.logger, err)
	}

	operator, _ := middleware.GetOperator(c)
	h.logger.Info("training run created",
		zap.String("run_id", run.ID.String()),
		zap.String("operator", operator),
		zap.Int("rows", len(req.Dataset.Rows)),
	)
	return c.Status(fiber.StatusAccepted).JSON(run)
}

// ListRuns handles GET /v1/runs
func (h *RunsHandler) ListRuns(c *fiber.Ctx) error {
	var q dto.ListRunsQuery
	if err := c.QueryParser(&q); err != nil {
		return respondError(c, h.logger, apperrors.Validation("invalid query"))
	}
	if err := validator.Validate(&q); err != nil {
		return respondError(c, h.logger, apperrors.Validation(err.Error()))
	}

	page := ParsePagination(c, 100)
	filter := &domain.RunFilter{Limit: page.Limit, Offset: page.Offset}
	if q.Status != "" {
		status := domain.RunStatus(q.Status)
		filter.Status = &status
	}

	list, err := h.runs.ListRuns(c.UserContext(), filter)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(list)
}

// GetRun handles GET /v1/runs/:id
func (h *RunsHandler) GetRun(c *fiber.Ctx) error {
	runID, err := parseUUIDParam(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	run, err := h.runs.GetRun(c.UserContext(), runID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(run)
}
