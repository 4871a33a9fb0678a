// Package repository contains data access implementations for priceuq.
//
// Repository interfaces are defined by their consumers in the service
// package. This package holds the concrete implementations:
//   - postgres: the run registry and neighborhood mappings
//   - clickhouse: append-only prediction and attribution logs
//
// All repository implementations are safe for concurrent use.
// Connection pools are managed at the database layer.
package repository
