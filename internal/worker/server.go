package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/config"
)

// Server is the worker server
type Server struct {
	logger    *zap.Logger
	config    *config.Config
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
}

// WorkerDependencies holds dependencies for workers
type WorkerDependencies struct {
	Runs      RunExecutor
	Explainer ExplainExecutor
	Reports   ReportExporter
}

// RedisOpt returns the asynq connection options for cfg
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewServer creates a new worker server
func NewServer(
	logger *zap.Logger,
	cfg *config.Config,
	deps *WorkerDependencies,
) (*Server, error) {
	redisOpt := RedisOpt(cfg.Redis)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				cfg.Worker.QueueCritical: 6,
				cfg.Worker.QueueDefault:  3,
				cfg.Worker.QueueLow:      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task processing failed",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
				captureFailure(task, err)
			}),
			Logger: &asynqLogger{logger: logger},
		},
	)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   &asynqLogger{logger: logger},
	})

	return &Server{
		logger:    logger,
		config:    cfg,
		server:    server,
		mux:       NewMux(logger, deps),
		scheduler: scheduler,
	}, nil
}

// NewMux registers every task handler
func NewMux(logger *zap.Logger, deps *WorkerDependencies) *asynq.ServeMux {
	training := NewTrainingWorker(logger, deps.Runs)
	explain := NewAttributionWorker(logger, deps.Explainer)
	reports := NewReportWorker(logger, deps.Reports)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeModelTrain, training.ProcessTask)
	mux.HandleFunc(TypeAttributionExplain, explain.ProcessTask)
	mux.HandleFunc(TypeReportExport, reports.ProcessTask)
	mux.HandleFunc(TypeReportNightly, reports.ProcessNightlyTask)
	return mux
}

// Start runs the scheduler and blocks serving tasks
func (s *Server) Start() error {
	if err := s.registerScheduledTasks(); err != nil {
		return fmt.Errorf("failed to register scheduled tasks: %w", err)
	}

	go func() {
		if err := s.scheduler.Run(); err != nil {
			s.logger.Error("scheduler stopped", zap.Error(err))
		}
	}()

	s.logger.Info("starting worker server",
		zap.Int("concurrency", s.config.Worker.Concurrency),
	)

	return s.server.Run(s.mux)
}

// Stop stops the worker server
func (s *Server) Stop() {
	s.server.Shutdown()
	s.scheduler.Shutdown()
}

func (s *Server) registerScheduledTasks() error {
	task, err := NewNightlyTask(24 * time.Hour)
	if err != nil {
		return err
	}
	_, err = s.scheduler.Register(s.config.Worker.ReportExportCron, task, asynq.Queue(s.config.Worker.QueueLow))
	if err != nil {
		return fmt.Errorf("failed to register nightly report export: %w", err)
	}
	return nil
}

// asynqLogger adapts zap.Logger to asynq.Logger
type asynqLogger struct {
	logger *zap.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Fatal(fmt.Sprint(args...))
}
