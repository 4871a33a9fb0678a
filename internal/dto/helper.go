package dto

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/estately/priceuq/internal/pkg/errors"
	"github.com/estately/priceuq/internal/validator"
)

// ParseAndValidate parses the request body into v and validates it. The
// returned error is a validation AppError whose details name each failing
// field.
func ParseAndValidate(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		return apperrors.Validation("invalid request body: " + err.Error())
	}

	if err := validator.Validate(v); err != nil {
		appErr := apperrors.Validation("request validation failed").WithError(err)
		if fields, ok := err.(validator.ValidationErrors); ok {
			for _, f := range fields {
				appErr = appErr.WithDetail(f.Field, f.Message)
			}
		}
		return appErr
	}

	return nil
}
