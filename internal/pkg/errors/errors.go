package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	CodeInternal           = "INTERNAL_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeValidation         = "VALIDATION_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeConflict           = "CONFLICT"
	CodeBadRequest         = "BAD_REQUEST"
	CodeSchemaMismatch     = "SCHEMA_MISMATCH"
	CodeNotFitted          = "NOT_FITTED"
	CodeInvalidConfig      = "INVALID_CONFIG"
	CodeNumericInstability = "NUMERIC_INSTABILITY"
)

// Sentinels for errors.Is. Matching is by code, so any AppError carrying the
// same code compares equal regardless of message or details.
var (
	ErrSchemaMismatch     = &AppError{Code: CodeSchemaMismatch}
	ErrNotFitted          = &AppError{Code: CodeNotFitted}
	ErrInvalidConfig      = &AppError{Code: CodeInvalidConfig}
	ErrNumericInstability = &AppError{Code: CodeNumericInstability}
)

// AppError represents an application error with context
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	StatusCode int               `json:"-"`
	Err        error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithError wraps an underlying error
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// New creates a new AppError
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Internal creates an internal server error
func Internal(message string) *AppError {
	return New(CodeInternal, message, http.StatusInternalServerError)
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// Validation creates a validation error
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return New(CodeConflict, message, http.StatusConflict)
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return New(CodeBadRequest, message, http.StatusBadRequest)
}

// SchemaMismatch reports a batch whose features disagree with the fitted schema.
func SchemaMismatch(format string, args ...any) *AppError {
	return New(CodeSchemaMismatch, fmt.Sprintf(format, args...), http.StatusUnprocessableEntity)
}

// NotFitted reports inference on a model that has not completed an epoch.
func NotFitted(message string) *AppError {
	if message == "" {
		message = "model has not been fitted"
	}
	return New(CodeNotFitted, message, http.StatusConflict)
}

// InvalidConfig reports a configuration value rejected at construction.
func InvalidConfig(format string, args ...any) *AppError {
	return New(CodeInvalidConfig, fmt.Sprintf(format, args...), http.StatusBadRequest)
}

// NumericInstability reports NaN or Inf in a loss, parameter or prediction.
func NumericInstability(format string, args ...any) *AppError {
	return New(CodeNumericInstability, fmt.Sprintf(format, args...), http.StatusInternalServerError)
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsAppError checks if the error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error if present
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// GetStatusCode returns the HTTP status code for an error
func GetStatusCode(err error) int {
	if appErr := GetAppError(err); appErr != nil && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

func hasCode(err error, code string) bool {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool { return hasCode(err, CodeValidation) }

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool { return hasCode(err, CodeConflict) }

// IsSchemaMismatch checks if the error is a schema mismatch
func IsSchemaMismatch(err error) bool { return hasCode(err, CodeSchemaMismatch) }

// IsNotFitted checks if the error is a not-fitted error
func IsNotFitted(err error) bool { return hasCode(err, CodeNotFitted) }

// IsInvalidConfig checks if the error is an invalid configuration error
func IsInvalidConfig(err error) bool { return hasCode(err, CodeInvalidConfig) }

// IsNumericInstability checks if the error is a numeric instability error
func IsNumericInstability(err error) bool { return hasCode(err, CodeNumericInstability) }
