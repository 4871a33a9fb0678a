package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estately/priceuq/internal/domain"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
	"github.com/estately/priceuq/internal/testutil"
)

func newPendingRun() *domain.TrainingRun {
	run := testutil.NewTestRun()
	run.Status = domain.RunStatusPending
	run.CompletedAt = nil
	run.SnapshotKey = ""
	run.CreatedAt = run.CreatedAt.Truncate(time.Microsecond)
	run.UpdatedAt = run.CreatedAt
	return run
}

func TestRunRepository_Lifecycle(t *testing.T) {
	db := getTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	run := newPendingRun()
	require.NoError(t, repo.Create(ctx, run))
	t.Cleanup(func() { _, _ = db.Pool.Exec(ctx, "DELETE FROM training_runs WHERE id = $1", run.ID) })

	got, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Name, got.Name)
	assert.Equal(t, domain.RunStatusPending, got.Status)
	assert.Equal(t, run.Features, got.Features)
	assert.Equal(t, run.Config, got.Config)
	assert.Nil(t, got.Report)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, repo.UpdateStatus(ctx, run.ID, domain.RunStatusRunning, ""))

	now := time.Now().UTC().Truncate(time.Microsecond)
	run.SnapshotKey = "models/" + run.ID.String() + "/snapshot.json"
	run.ReportKey = "reports/" + run.ID.String() + ".json"
	run.Report = &domain.TrainingReport{EpochsRun: 20, BestEpoch: 5, StoppedEarly: true}
	run.Metrics = &domain.RunMetrics{RSquared: 0.93, CoverageTarget: 0.95, CoverageObserved: 0.94}
	run.UpdatedAt = now
	run.CompletedAt = &now
	require.NoError(t, repo.Complete(ctx, run))

	got, err = repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, got.Status)
	require.NotNil(t, got.Report)
	assert.Equal(t, 5, got.Report.BestEpoch)
	require.NotNil(t, got.Metrics)
	assert.InDelta(t, 0.93, got.Metrics.RSquared, 1e-12)

	err = repo.UpdateStatus(ctx, run.ID, domain.RunStatusFailed, "late failure")
	assert.True(t, apperrors.IsConflict(err))

	since, err := repo.ListCompletedSince(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	found := false
	for _, r := range since {
		found = found || r.ID == run.ID
	}
	assert.True(t, found)
}

func TestRunRepository_NotFound(t *testing.T) {
	db := getTestDB(t)
	repo := NewRunRepository(db)

	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRunRepository_ListFilter(t *testing.T) {
	db := getTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	pending := newPendingRun()
	failed := newPendingRun()
	failed.Status = domain.RunStatusFailed
	failed.Error = "numeric instability"
	for _, r := range []*domain.TrainingRun{pending, failed} {
		require.NoError(t, repo.Create(ctx, r))
		id := r.ID
		t.Cleanup(func() { _, _ = db.Pool.Exec(ctx, "DELETE FROM training_runs WHERE id = $1", id) })
	}

	status := domain.RunStatusFailed
	list, err := repo.List(ctx, &domain.RunFilter{Status: &status, Limit: 500})
	require.NoError(t, err)
	for _, r := range list.Runs {
		assert.Equal(t, domain.RunStatusFailed, r.Status)
	}
	assert.GreaterOrEqual(t, list.TotalCount, int64(1))

	page, err := repo.List(ctx, &domain.RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, page.Runs, 1)
	assert.True(t, page.HasMore)
}
