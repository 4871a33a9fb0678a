package database

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/config"
	"github.com/estately/priceuq/internal/pkg/logger"
	"github.com/estately/priceuq/internal/pkg/metrics"
)

// ClickHouseDB wraps a ClickHouse connection
type ClickHouseDB struct {
	Conn     driver.Conn
	observer *metrics.QueryObserver
}

// NewClickHouse creates a new ClickHouse connection
func NewClickHouse(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:          10 * time.Second,
		MaxOpenConns:         25,
		MaxIdleConns:         5,
		ConnMaxLifetime:      time.Hour,
		ConnOpenStrategy:     clickhouse.ConnOpenInOrder,
		BlockBufferSize:      10,
		MaxCompressionBuffer: 10 * 1024 * 1024, // 10MB
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	logger.Info("connected to ClickHouse",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)

	return &ClickHouseDB{
		Conn:     conn,
		observer: metrics.NewQueryObserver("clickhouse", cfg.SlowQueryThreshold()),
	}, nil
}

// Close closes the connection
func (db *ClickHouseDB) Close() error {
	if db.Conn != nil {
		return db.Conn.Close()
	}
	return nil
}

// Ping checks the server is reachable
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.Conn.Ping(ctx)
}

// PrepareBatch prepares a batch insert
func (db *ClickHouseDB) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	return db.Conn.PrepareBatch(ctx, query)
}

// Exec executes a query
func (db *ClickHouseDB) Exec(ctx context.Context, query string, args ...any) error {
	start := time.Now()
	err := db.Conn.Exec(ctx, query, args...)
	db.record(query, start, err)
	return err
}

// Select executes a select query and scans results into dest
func (db *ClickHouseDB) Select(ctx context.Context, dest any, query string, args ...any) error {
	start := time.Now()
	err := db.Conn.Select(ctx, dest, query, args...)
	db.record(query, start, err)
	return err
}

// SendBatch prepares a batch for query, appends every row produced by rows
// and sends it. An empty rows set is a no-op.
func (db *ClickHouseDB) SendBatch(ctx context.Context, query string, n int, row func(i int) []any) error {
	if n == 0 {
		return nil
	}
	start := time.Now()
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		db.record(query, start, err)
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := batch.Append(row(i)...); err != nil {
			_ = batch.Abort()
			db.record(query, start, err)
			return fmt.Errorf("failed to append row %d to batch: %w", i, err)
		}
	}
	err = batch.Send()
	db.record(query, start, err)
	if err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	db.observer.RowsWritten(query, n)
	return nil
}

func (db *ClickHouseDB) record(query string, start time.Time, err error) {
	duration := time.Since(start)
	if db.observer.Observe(query, duration, err) {
		op, table := metrics.ParseQuery(query)
		logger.Warn("slow clickhouse query",
			zap.String("operation", op),
			zap.String("table", table),
			zap.Int64("duration_ms", duration.Milliseconds()),
		)
	}
}
