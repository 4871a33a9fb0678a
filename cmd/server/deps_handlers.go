package main

import (
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/handler"
)

// Handlers holds all handler instances
type Handlers struct {
	Health        *handler.HealthHandler
	Docs          *handler.DocsHandler
	Runs          *handler.RunsHandler
	Events        *handler.EventsHandler
	Predictions   *handler.PredictionsHandler
	Attributions  *handler.AttributionsHandler
	Reports       *handler.ReportsHandler
	Neighborhoods *handler.NeighborhoodsHandler
}

// initHandlers initializes all handlers
func initHandlers(logger *zap.Logger, version string, dbs *Databases, svc *Services) *Handlers {
	return &Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres":   dbs.Postgres,
			"clickhouse": dbs.ClickHouse,
			"redis":      dbs.Redis,
			"minio":      dbs.Store,
		}, version),
		Docs:          handler.NewDocsHandler(),
		Runs:          handler.NewRunsHandler(svc.Training, logger),
		Events:        handler.NewEventsHandler(svc.Training, svc.Realtime, logger),
		Predictions:   handler.NewPredictionsHandler(svc.Prediction, logger),
		Attributions:  handler.NewAttributionsHandler(svc.Attribution, logger),
		Reports:       handler.NewReportsHandler(svc.Report, logger),
		Neighborhoods: handler.NewNeighborhoodsHandler(svc.Neighborhood, logger),
	}
}
