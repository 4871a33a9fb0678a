package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/config"
	"github.com/estately/priceuq/internal/middleware"
)

// Dependencies holds everything the HTTP server needs
type Dependencies struct {
	Databases    *Databases
	Repositories *Repositories
	Services     *Services
	Handlers     *Handlers

	Auth      *middleware.AuthMiddleware
	RateLimit *middleware.RateLimitMiddleware
}

// initDependencies connects every backing store and wires the layers above
func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger, version string) (*Dependencies, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	dbs, err := initDatabases(connectCtx, cfg, logger)
	if err != nil {
		return nil, err
	}

	repos := initRepositories(dbs)
	svc, err := initServices(cfg, logger, dbs, repos)
	if err != nil {
		dbs.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Dependencies{
		Databases:    dbs,
		Repositories: repos,
		Services:     svc,
		Handlers:     initHandlers(logger, version, dbs, svc),
		Auth:         middleware.NewAuthMiddleware(cfg.JWT),
		RateLimit: middleware.NewRateLimitMiddleware(
			dbs.Redis.Client,
			middleware.DefaultRateLimitConfig("inference", cfg.Server.RateLimitPerMinute),
		),
	}, nil
}

// Close releases all connections
func (d *Dependencies) Close() {
	d.Databases.Close()
}
