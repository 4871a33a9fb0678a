// Package domain contains the core entities and types for priceuq.
//
// This package defines:
//   - Feature frames and schemas, the numeric input of every model
//   - Training runs, their configuration and progress events
//   - Prediction records and uncertainty reports
//   - Attribution records and their views
//   - Neighborhood profiles and the mapping document parser
//
// Domain types are persistence-agnostic; repositories, the artifact store
// and the HTTP layer all exchange these types.
//
// # Naming Conventions
//
// Types ending in "Input" are used for create operations.
// Types ending in "Filter" are used for query operations.
// Types ending in "Data" are transport forms of validated values.
package domain
