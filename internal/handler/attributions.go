package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/dto"
	"github.com/estately/priceuq/internal/service"
)

// Explainer produces feature attributions, inline or through the queue
type Explainer interface {
	Explain(ctx context.Context, input *service.ExplainInput) (*service.ExplainResult, error)
	EnqueueExplain(ctx context.Context, input *service.ExplainInput) (*service.ExplainJob, error)
	GetJob(ctx context.Context, runID, jobID uuid.UUID) (*service.ExplainResult, error)
}

// AttributionsHandler handles explanation endpoints
type AttributionsHandler struct {
	explainer Explainer
	logger    *zap.Logger
}

// NewAttributionsHandler creates a new attributions handler
func NewAttributionsHandler(explainer Explainer, logger *zap.Logger) *AttributionsHandler {
	return &AttributionsHandler{explainer: explainer, logger: logger}
}

// Explain handles POST /v1/runs/:id/explain. With ?async=true the job is
// queued and 202 returns its id.
func (h *AttributionsHandler) Explain(c *fiber.Ctx) error {
	runID, err := parseUUIDParam(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	var req dto.ExplainRequest
	if err := dto.ParseAndValidate(c, &req); err != nil {
		return respondError(c, h.logger, err)
	}

	input := &service.ExplainInput{
		RunID:          runID,
		Target:         req.Target,
		Queries:        req.Queries,
		NSamples:       req.NSamples,
		BackgroundSize: req.BackgroundSize,
		Seed:           req.Seed,
	}

	if c.QueryBool("async") {
		job, err := h.explainer.EnqueueExplain(c.UserContext(), input)
		if err != nil {
			return respondError(c, h.logger, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"jobId": job.JobID,
			"runId": runID,
		})
	}

	result, err := h.explainer.Explain(c.UserContext(), input)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(result)
}

// GetJob handles GET /v1/runs/:id/explain/:jobId
func (h *AttributionsHandler) GetJob(c *fiber.Ctx) error {
	runID, err := parseUUIDParam(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}
	jobID, err := parseUUIDParam(c, "jobId")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	result, err := h.explainer.GetJob(c.UserContext(), runID, jobID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(result)
}
