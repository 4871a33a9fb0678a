// Package errors provides application error types for priceuq.
//
// This package defines:
//   - AppError type with error classification
//   - Error constructors for the engine taxonomy and HTTP-facing errors
//   - Error type checking helpers
//   - HTTP status code mapping
//
// # Engine Errors
//
//   - SchemaMismatch: batch features disagree with the fitted schema (422)
//   - NotFitted: inference before a completed training epoch (409)
//   - InvalidConfig: configuration rejected at construction (400)
//   - NumericInstability: NaN or Inf in loss, parameters or predictions (500)
//
// # Usage
//
//	return apperrors.SchemaMismatch("feature %d is %q, want %q", i, got, want)
//
// Check error types with the helpers or with the sentinels:
//
//	if errors.Is(err, apperrors.ErrNotFitted) {
//	    // train first
//	}
package errors
