package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/middleware"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
)

// Pagination represents pagination parameters for list operations.
type Pagination struct {
	Limit  int
	Offset int
}

// DefaultPagination provides default pagination values.
var DefaultPagination = Pagination{Limit: 50, Offset: 0}

// ParsePagination extracts limit and offset query parameters with validation.
// maxLimit specifies the maximum allowed limit (0 for no maximum).
func ParsePagination(c *fiber.Ctx, maxLimit int) Pagination {
	p := Pagination{
		Limit:  parseQueryInt(c, "limit", DefaultPagination.Limit),
		Offset: parseQueryInt(c, "offset", DefaultPagination.Offset),
	}

	if p.Limit <= 0 {
		p.Limit = DefaultPagination.Limit
	}
	if maxLimit > 0 && p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	return p
}

// parseQueryInt parses an integer query parameter with a default value.
func parseQueryInt(c *fiber.Ctx, key string, defaultValue int) int {
	val := c.Query(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// parseUUIDParam reads a UUID route parameter.
func parseUUIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid " + name)
	}
	return id, nil
}

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code,omitempty"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
}

// respondError writes err as JSON. AppErrors keep their status and code;
// anything else is logged and answered with a generic 500.
func respondError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	if appErr := apperrors.GetAppError(err); appErr != nil && appErr.StatusCode != 0 {
		if appErr.StatusCode >= 500 {
			logger.Error("request failed", zap.Error(err), zap.String("path", c.Path()))
			middleware.CaptureError(c, err)
		}
		return c.Status(appErr.StatusCode).JSON(ErrorResponse{
			Error:     statusName(appErr.StatusCode),
			Code:      appErr.Code,
			Message:   appErr.Message,
			Details:   appErr.Details,
			RequestID: middleware.GetRequestID(c),
		})
	}

	logger.Error("request failed", zap.Error(err), zap.String("path", c.Path()))
	middleware.CaptureError(c, err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error:     statusName(fiber.StatusInternalServerError),
		Code:      apperrors.CodeInternal,
		Message:   "An unexpected error occurred",
		RequestID: middleware.GetRequestID(c),
	})
}

func statusName(statusCode int) string {
	switch statusCode {
	case fiber.StatusBadRequest:
		return "Bad Request"
	case fiber.StatusUnauthorized:
		return "Unauthorized"
	case fiber.StatusForbidden:
		return "Forbidden"
	case fiber.StatusNotFound:
		return "Not Found"
	case fiber.StatusConflict:
		return "Conflict"
	case fiber.StatusUnprocessableEntity:
		return "Unprocessable Entity"
	case fiber.StatusTooManyRequests:
		return "Too Many Requests"
	case fiber.StatusInternalServerError:
		return "Internal Server Error"
	}
	return "Error"
}

// ErrorHandler is the app-wide fallback for errors returned by handlers and
// middleware.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if fe, ok := err.(*fiber.Error); ok {
			return c.Status(fe.Code).JSON(ErrorResponse{
				Error:     statusName(fe.Code),
				Message:   fe.Message,
				RequestID: middleware.GetRequestID(c),
			})
		}
		return respondError(c, logger, err)
	}
}
