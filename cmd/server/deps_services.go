package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/config"
	"github.com/estately/priceuq/internal/pkg/database"
	"github.com/estately/priceuq/internal/service"
	"github.com/estately/priceuq/internal/worker"
)

const (
	modelCacheSize   = 32
	neighborhoodTTL  = 24 * time.Hour
	neighborhoodKeys = "priceuq:neighborhood:"
)

// Services holds all service instances
type Services struct {
	Realtime     *service.RealtimeService
	Training     *service.TrainingService
	Prediction   *service.PredictionService
	Attribution  *service.AttributionService
	Neighborhood *service.NeighborhoodService
	Report       *service.ReportService
}

// initServices initializes all services
func initServices(cfg *config.Config, logger *zap.Logger, dbs *Databases, repos *Repositories) (*Services, error) {
	queue := worker.NewQueue(dbs.AsynqClient, cfg.Worker)
	models, err := service.NewModelCache(repos.Runs, dbs.Store, modelCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create model cache: %w", err)
	}

	prediction, err := service.NewPredictionService(logger, models, repos.Predictions, cfg.Uncertainty, cfg.Report.TopUncertain)
	if err != nil {
		return nil, fmt.Errorf("failed to create prediction service: %w", err)
	}

	// Runs execute in the worker; both processes publish on the same bus.
	bus := service.NewBusPublisher(dbs.Redis)

	return &Services{
		Realtime: service.NewRealtimeService(logger),
		Training: service.NewTrainingService(
			logger, repos.Runs, dbs.Store, repos.Predictions, queue, bus, cfg.Training, cfg.Uncertainty,
		),
		Prediction:  prediction,
		Attribution: service.NewAttributionService(logger, models, dbs.Store, repos.Attributions, queue, cfg.Attribution),
		Neighborhood: service.NewNeighborhoodService(
			logger, repos.Neighborhoods, database.NewCache(dbs.Redis.Client, neighborhoodKeys, neighborhoodTTL),
		),
		Report: service.NewReportService(logger, repos.Runs, dbs.Store, queue, cfg.Report.Prefix),
	}, nil
}
