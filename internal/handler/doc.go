// Package handler contains the HTTP handlers of the priceuq API.
//
// Handlers parse and validate requests, call a service through a narrow
// interface and map AppError codes to status codes:
//
//   - VALIDATION_ERROR, INVALID_CONFIG: 400
//   - NOT_FOUND: 404
//   - NOT_FITTED, CONFLICT: 409
//   - SCHEMA_MISMATCH: 422
//   - NUMERIC_INSTABILITY and unknown errors: 500
//
// Write routes (runs, predict, explain, export, neighborhood import) sit
// behind the operator token middleware; reads are public.
package handler
