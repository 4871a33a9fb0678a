package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estately/priceuq/internal/pkg/metrics"
)

type fakeBatch struct {
	driver.Batch
	rows      [][]any
	failAt    int
	sent      bool
	aborted   bool
	sendDelay time.Duration
}

func (b *fakeBatch) Append(v ...any) error {
	if b.failAt >= 0 && len(b.rows) == b.failAt {
		return errors.New("column count mismatch")
	}
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) Send() error {
	time.Sleep(b.sendDelay)
	b.sent = true
	return nil
}

func (b *fakeBatch) Abort() error {
	b.aborted = true
	return nil
}

type fakeConn struct {
	driver.Conn
	batch *fakeBatch
	query string
}

func (c *fakeConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	c.query = query
	return c.batch, nil
}

func TestClickHouseDBClose(t *testing.T) {
	db := &ClickHouseDB{}
	assert.NoError(t, db.Close())
}

func TestSendBatch(t *testing.T) {
	const query = "INSERT INTO predictions (run_id, mu)"
	row := func(i int) []any { return []any{"run-1", float64(i)} }

	t.Run("empty is a no-op", func(t *testing.T) {
		db := &ClickHouseDB{}
		called := false
		err := db.SendBatch(context.Background(), query, 0, func(int) []any {
			called = true
			return nil
		})
		assert.NoError(t, err)
		assert.False(t, called)
	})

	t.Run("appends every row and sends", func(t *testing.T) {
		conn := &fakeConn{batch: &fakeBatch{failAt: -1, sendDelay: 2 * time.Millisecond}}
		db := &ClickHouseDB{Conn: conn, observer: metrics.NewQueryObserver("clickhouse_test", time.Millisecond)}

		require.NoError(t, db.SendBatch(context.Background(), query, 3, row))
		assert.Equal(t, query, conn.query)
		assert.Len(t, conn.batch.rows, 3)
		assert.Equal(t, []any{"run-1", 2.0}, conn.batch.rows[2])
		assert.True(t, conn.batch.sent)
	})

	t.Run("append failure aborts", func(t *testing.T) {
		conn := &fakeConn{batch: &fakeBatch{failAt: 1}}
		db := &ClickHouseDB{Conn: conn, observer: metrics.NewQueryObserver("clickhouse_test", time.Second)}

		err := db.SendBatch(context.Background(), query, 3, row)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "row 1")
		assert.True(t, conn.batch.aborted)
		assert.False(t, conn.batch.sent)
	})
}
