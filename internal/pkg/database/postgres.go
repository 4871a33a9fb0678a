package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/config"
	"github.com/estately/priceuq/internal/pkg/logger"
	"github.com/estately/priceuq/internal/pkg/metrics"
)

// PostgresDB wraps a PostgreSQL connection pool
type PostgresDB struct {
	Pool   *pgxpool.Pool
	tracer *queryTracer
}

// NewPostgres creates a new PostgreSQL connection pool
func NewPostgres(ctx context.Context, cfg config.PostgresConfig, debug bool) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	tracer := newQueryTracer(debug, metrics.NewQueryObserver("postgres", cfg.SlowQueryThreshold()))
	poolConfig.ConnConfig.Tracer = tracer

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.Int32("max_conns", cfg.MaxConns),
	)

	return &PostgresDB{Pool: pool, tracer: tracer}, nil
}

// Close closes the connection pool
func (db *PostgresDB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping checks the pool can reach the server
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// QueryMetrics returns query counters collected since the pool was opened
func (db *PostgresDB) QueryMetrics() QueryMetrics {
	if db.tracer == nil {
		return QueryMetrics{}
	}
	return db.tracer.GetMetrics()
}

// QueryMetrics summarises traced queries
type QueryMetrics struct {
	TotalQueries    int64
	SlowQueries     int64
	FailedQueries   int64
	TotalDurationMs int64
}

// queryTracer implements pgx.QueryTracer, feeding logs and Prometheus
type queryTracer struct {
	enableDebug bool
	observer    *metrics.QueryObserver

	mu      sync.Mutex
	metrics *QueryMetrics
}

type queryStartKey struct{}
type querySQLKey struct{}
type queryArgsKey struct{}

func newQueryTracer(enableDebug bool, observer *metrics.QueryObserver) *queryTracer {
	return &queryTracer{enableDebug: enableDebug, observer: observer, metrics: &QueryMetrics{}}
}

// GetMetrics returns a copy of the collected metrics
func (t *queryTracer) GetMetrics() QueryMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.metrics
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	ctx = context.WithValue(ctx, queryStartKey{}, time.Now())
	ctx = context.WithValue(ctx, querySQLKey{}, data.SQL)
	ctx = context.WithValue(ctx, queryArgsKey{}, len(data.Args))
	return ctx
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	duration := time.Since(start)
	sql, _ := ctx.Value(querySQLKey{}).(string)
	slow := t.observer.Observe(sql, duration, data.Err)

	t.mu.Lock()
	t.metrics.TotalQueries++
	t.metrics.TotalDurationMs += duration.Milliseconds()
	if data.Err != nil {
		t.metrics.FailedQueries++
	}
	if slow {
		t.metrics.SlowQueries++
	}
	t.mu.Unlock()

	switch {
	case slow:
		logger.Warn("slow query detected",
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.String("sql", truncateSQL(sql, 200)),
		)
	case t.enableDebug:
		args, _ := ctx.Value(queryArgsKey{}).(int)
		logger.Log.Debug("query",
			zap.Duration("duration", duration),
			zap.Int("args", args),
			zap.String("sql", truncateSQL(sql, 200)),
			zap.Error(data.Err),
		)
	}
}

func truncateSQL(sql string, maxLen int) string {
	if len(sql) <= maxLen {
		return sql
	}
	return sql[:maxLen] + "..."
}

// Transaction executes a function within a transaction
func Transaction(ctx context.Context, db *PostgresDB, fn func(tx pgx.Tx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.Error("failed to rollback transaction",
				zap.Error(rbErr),
			)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
