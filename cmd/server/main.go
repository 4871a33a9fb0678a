package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/config"
	"github.com/estately/priceuq/internal/handler"
	"github.com/estately/priceuq/internal/middleware"
	"github.com/estately/priceuq/internal/pkg/logger"
	"github.com/estately/priceuq/internal/service"
)

const appVersion = "0.1.0"

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

	version := cfg.Server.Version
	if version == "" {
		version = appVersion
	}

	if err := middleware.InitSentry(cfg.Sentry, cfg.Server.Env, "priceuq@"+version); err != nil {
		log.Error("failed to initialize Sentry", zap.Error(err))
	} else if cfg.Sentry.Enabled() {
		log.Info("Sentry initialized", zap.String("environment", cfg.Server.Env))
		defer middleware.FlushSentry(5 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initDependencies(ctx, cfg, log, version)
	if err != nil {
		log.Fatal("failed to initialize dependencies", zap.Error(err))
	}
	defer deps.Close()

	// Progress events published by workers reach SSE subscribers here
	pubsub := deps.Databases.Redis.PSubscribe(ctx, service.RunChannelPattern)
	defer pubsub.Close()
	go deps.Services.Realtime.Relay(ctx, pubsub.Channel())

	app := fiber.New(fiber.Config{
		AppName:               "priceuq",
		BodyLimit:             cfg.Server.BodyLimitMB * 1024 * 1024,
		ReadTimeout:           60 * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: cfg.IsProduction(),
		ErrorHandler:          handler.ErrorHandler(log),
	})

	app.Use(middleware.RequestID())
	app.Use(middleware.NewLoggerMiddleware(middleware.LoggerConfig{
		Logger: log,
		Skip:   middleware.HealthSkipper,
	}).Handler())
	app.Use(middleware.SentryMiddleware(cfg.Sentry.Enabled()))
	app.Use(middleware.Recover(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + middleware.RequestIDHeader,
	}))
	app.Use(middleware.NewMetricsMiddleware(middleware.DefaultMetricsConfig()).Handler())

	registerRoutes(app, deps)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Info("starting server", zap.String("addr", addr), zap.String("version", version))
		if err := app.Listen(addr); err != nil {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}

	log.Info("server stopped")
}
