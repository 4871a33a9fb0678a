package handler

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/domain"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
	"github.com/estately/priceuq/internal/service"
)

// NeighborhoodDirectory imports and resolves neighborhood profiles
type NeighborhoodDirectory interface {
	Import(ctx context.Context, raw string) (*service.ImportResult, error)
	Lookup(ctx context.Context, name string) (*domain.NeighborhoodProfile, error)
	List(ctx context.Context) ([]domain.NeighborhoodProfile, error)
}

// NeighborhoodsHandler handles the neighborhood mapping
type NeighborhoodsHandler struct {
	directory NeighborhoodDirectory
	logger    *zap.Logger
}

// NewNeighborhoodsHandler creates a new neighborhoods handler
func NewNeighborhoodsHandler(directory NeighborhoodDirectory, logger *zap.Logger) *NeighborhoodsHandler {
	return &NeighborhoodsHandler{directory: directory, logger: logger}
}

// Import handles POST /v1/neighborhoods. The body is the mapping document
// as produced by the enrichment step, optionally wrapped in a code fence.
func (h *NeighborhoodsHandler) Import(c *fiber.Ctx) error {
	raw := strings.TrimSpace(string(c.Body()))
	if raw == "" {
		return respondError(c, h.logger, apperrors.Validation("mapping document is required"))
	}

	result, err := h.directory.Import(c.UserContext(), raw)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// Lookup handles GET /v1/neighborhoods. Without ?name= it lists all
// profiles.
func (h *NeighborhoodsHandler) Lookup(c *fiber.Ctx) error {
	name := c.Query("name")
	if name == "" {
		profiles, err := h.directory.List(c.UserContext())
		if err != nil {
			return respondError(c, h.logger, err)
		}
		return c.JSON(fiber.Map{"profiles": profiles})
	}

	profile, err := h.directory.Lookup(c.UserContext(), name)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return c.JSON(profile)
}
