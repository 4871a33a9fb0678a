package main

import (
	chrepo "github.com/estately/priceuq/internal/repository/clickhouse"
	pgrepo "github.com/estately/priceuq/internal/repository/postgres"
)

// Repositories holds all repository instances
type Repositories struct {
	// PostgreSQL repositories (run registry)
	Runs          *pgrepo.RunRepository
	Neighborhoods *pgrepo.NeighborhoodRepository

	// ClickHouse repositories (per-sample logs)
	Predictions  *chrepo.PredictionRepository
	Attributions *chrepo.AttributionRepository
}

// initRepositories initializes all repositories
func initRepositories(dbs *Databases) *Repositories {
	return &Repositories{
		Runs:          pgrepo.NewRunRepository(dbs.Postgres),
		Neighborhoods: pgrepo.NewNeighborhoodRepository(dbs.Postgres),
		Predictions:   chrepo.NewPredictionRepository(dbs.ClickHouse),
		Attributions:  chrepo.NewAttributionRepository(dbs.ClickHouse),
	}
}
