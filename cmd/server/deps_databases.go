package main

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/config"
	"github.com/estately/priceuq/internal/pkg/database"
	"github.com/estately/priceuq/internal/storage"
	"github.com/estately/priceuq/internal/worker"
)

// Databases holds all database connections
type Databases struct {
	Postgres    *database.PostgresDB
	ClickHouse  *database.ClickHouseDB
	Redis       *database.RedisDB
	Store       *storage.MinIOStore
	AsynqClient *asynq.Client
}

// initDatabases initializes all database connections
func initDatabases(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Databases, error) {
	dbs := &Databases{}

	pgDB, err := database.NewPostgres(ctx, cfg.Postgres, cfg.IsDevelopment())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	dbs.Postgres = pgDB

	chDB, err := database.NewClickHouse(ctx, cfg.ClickHouse)
	if err != nil {
		dbs.Close()
		return nil, fmt.Errorf("failed to initialize ClickHouse: %w", err)
	}
	dbs.ClickHouse = chDB

	redisDB, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		dbs.Close()
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}
	dbs.Redis = redisDB

	minioClient, err := storage.NewMinIOClient(ctx, cfg.MinIO)
	if err != nil {
		dbs.Close()
		return nil, fmt.Errorf("failed to initialize MinIO: %w", err)
	}
	dbs.Store = storage.NewMinIOStore(minioClient, cfg.MinIO.Bucket)
	logger.Info("artifact store ready", zap.String("bucket", cfg.MinIO.Bucket))

	dbs.AsynqClient = asynq.NewClient(worker.RedisOpt(cfg.Redis))

	return dbs, nil
}

// Close closes all database connections
func (d *Databases) Close() {
	if d.Postgres != nil {
		d.Postgres.Close()
	}
	if d.ClickHouse != nil {
		_ = d.ClickHouse.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.AsynqClient != nil {
		_ = d.AsynqClient.Close()
	}
}
