package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/dto"
	"github.com/estately/priceuq/internal/service"
)

// Predictor scores batches against a completed run
type Predictor interface {
	Predict(ctx context.Context, input *service.PredictInput) (*service.PredictResult, error)
}

// PredictionsHandler handles uncertainty scoring
type PredictionsHandler struct {
	predictor Predictor
	logger    *zap.Logger
}

// NewPredictionsHandler creates a new predictions handler
func NewPredictionsHandler(predictor Predictor, logger *zap.Logger) *PredictionsHandler {
	return &PredictionsHandler{predictor: predictor, logger: logger}
}

// Predict handles POST /v1/runs/:id/predict
func (h *PredictionsHandler) Predict(c *fiber.Ctx) error {
	runID, err := parseUUIDParam(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	var req dto.PredictRequest
	if err := dto.ParseAndValidate(c, &req); err != nil {
		return respondError(c, h.logger, err)
	}

	result, err := h.predictor.Predict(c.UserContext(), &service.PredictInput{
		RunID:   runID,
		Batch:   req.Batch,
		Seed:    req.Seed,
		Persist: req.Persist,
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(result)
}
