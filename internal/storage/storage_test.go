package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/estately/priceuq/internal/pkg/errors"
)

func TestKeys(t *testing.T) {
	runID := uuid.MustParse("6f1c1c53-46a4-4d6f-9a5b-0b8a7d7e2c11")
	day := time.Date(2026, 10, 18, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))

	assert.Equal(t, "datasets/6f1c1c53-46a4-4d6f-9a5b-0b8a7d7e2c11.json", DatasetKey(runID))
	assert.Equal(t, "models/6f1c1c53-46a4-4d6f-9a5b-0b8a7d7e2c11/snapshot.json", SnapshotKey(runID))
	assert.Equal(t, "uncertainty_reports/2026-10-19/6f1c1c53-46a4-4d6f-9a5b-0b8a7d7e2c11.json",
		ExportKey("uncertainty_reports", day, runID))
}

func TestDirStore(t *testing.T) {
	store, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Get(ctx, "models/missing.json")
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, store.Put(ctx, "reports/a/report.json", []byte(`{"ok":true}`), ContentTypeJSON))
	require.NoError(t, store.Copy(ctx, "reports/a/report.json", "uncertainty_reports/2026-10-18/a.json"))

	data, err := store.Get(ctx, "uncertainty_reports/2026-10-18/a.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))

	err = store.Copy(ctx, "reports/none.json", "x.json")
	assert.True(t, apperrors.IsNotFound(err))
}
