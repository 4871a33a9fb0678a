package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/config"
	"github.com/estately/priceuq/internal/middleware"
	"github.com/estately/priceuq/internal/pkg/database"
	"github.com/estately/priceuq/internal/pkg/logger"
	chrepo "github.com/estately/priceuq/internal/repository/clickhouse"
	pgrepo "github.com/estately/priceuq/internal/repository/postgres"
	"github.com/estately/priceuq/internal/service"
	"github.com/estately/priceuq/internal/storage"
	"github.com/estately/priceuq/internal/worker"
)

const modelCacheSize = 8

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := middleware.InitSentry(cfg.Sentry, cfg.Server.Env, "priceuq-worker@"+cfg.Server.Version); err != nil {
		log.Error("failed to initialize Sentry", zap.Error(err))
	} else if cfg.Sentry.Enabled() {
		defer middleware.FlushSentry(5 * time.Second)
	}

	log.Info("starting worker service")

	// Initialize dependencies
	deps, cleanup, err := initWorkerDependencies(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize dependencies", zap.Error(err))
	}
	defer cleanup()

	// Create worker server
	workerServer, err := worker.NewServer(log, cfg, deps)
	if err != nil {
		log.Fatal("failed to create worker server", zap.Error(err))
	}

	// Start worker in a goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- workerServer.Start()
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("shutting down worker...")
		workerServer.Stop()
	case err := <-errCh:
		if err != nil {
			log.Error("worker server error", zap.Error(err))
		}
	}

	log.Info("worker stopped")
}

// initWorkerDependencies initializes dependencies for the worker
func initWorkerDependencies(cfg *config.Config, logger *zap.Logger) (*worker.WorkerDependencies, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgDB, err := database.NewPostgres(ctx, cfg.Postgres, false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	chDB, err := database.NewClickHouse(ctx, cfg.ClickHouse)
	if err != nil {
		pgDB.Close()
		return nil, nil, fmt.Errorf("failed to initialize ClickHouse: %w", err)
	}

	redisDB, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		pgDB.Close()
		_ = chDB.Close()
		return nil, nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	cleanup := func() {
		pgDB.Close()
		_ = chDB.Close()
		_ = redisDB.Close()
	}

	minioClient, err := storage.NewMinIOClient(ctx, cfg.MinIO)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to initialize MinIO: %w", err)
	}
	store := storage.NewMinIOStore(minioClient, cfg.MinIO.Bucket)

	// Initialize repositories
	runRepo := pgrepo.NewRunRepository(pgDB)
	predictionRepo := chrepo.NewPredictionRepository(chDB)
	attributionRepo := chrepo.NewAttributionRepository(chDB)

	// Tasks enqueued from within a task (follow-up exports) share the queue
	client := asynq.NewClient(worker.RedisOpt(cfg.Redis))
	queue := worker.NewQueue(client, cfg.Worker)

	models, err := service.NewModelCache(runRepo, store, modelCacheSize)
	if err != nil {
		_ = client.Close()
		cleanup()
		return nil, nil, fmt.Errorf("failed to create model cache: %w", err)
	}

	training := service.NewTrainingService(
		logger, runRepo, store, predictionRepo, queue,
		service.NewBusPublisher(redisDB), cfg.Training, cfg.Uncertainty,
	)
	attribution := service.NewAttributionService(logger, models, store, attributionRepo, queue, cfg.Attribution)
	reports := service.NewReportService(logger, runRepo, store, queue, cfg.Report.Prefix)

	deps := &worker.WorkerDependencies{
		Runs:      training,
		Explainer: attribution,
		Reports:   reports,
	}

	return deps, func() {
		_ = client.Close()
		cleanup()
	}, nil
}
