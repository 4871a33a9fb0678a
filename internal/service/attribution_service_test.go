package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/domain"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
)

func newAttributionFixture(t *testing.T) (*AttributionService, *MockAttributionRepository, *MockTaskQueue, *domain.TrainingRun, domain.FeatureFrame) {
	t.Helper()
	store := newDirStore(t)
	run, frame := fittedRun(t, store)
	runs := new(MockRunRepository)
	runs.On("GetByID", mock.Anything, run.ID).Return(run, nil)
	cache, err := NewModelCache(runs, store, 2)
	require.NoError(t, err)

	repo := new(MockAttributionRepository)
	queue := new(MockTaskQueue)
	svc := NewAttributionService(zap.NewNop(), cache, store, repo, queue, testAttributionConfig())
	return svc, repo, queue, run, frame
}

func queriesOf(t *testing.T, frame domain.FeatureFrame, idx ...int) domain.FrameData {
	t.Helper()
	q, err := frame.Subset(idx)
	require.NoError(t, err)
	return q.Data()
}

func TestAttributionService_Explain(t *testing.T) {
	ctx := context.Background()

	for _, kind := range []domain.TargetKind{domain.TargetMean, domain.TargetAleatoricStd, domain.TargetEpistemicStd} {
		t.Run(string(kind)+" satisfies local accuracy", func(t *testing.T) {
			svc, _, _, run, frame := newAttributionFixture(t)
			result, err := svc.Explain(ctx, &ExplainInput{
				RunID:   run.ID,
				Target:  kind,
				Queries: queriesOf(t, frame, 0, 1),
			})
			require.NoError(t, err)
			require.Len(t, result.Records, 2)
			for _, r := range result.Records {
				assert.Equal(t, kind, r.Target)
				assert.Len(t, r.Contributions, 3)
				assert.InDelta(t, r.Output, r.Total(), 1e-9)
				assert.Equal(t, 20, r.Samples)
			}
			assert.Len(t, result.Importance, 3)
			assert.Equal(t, 1, result.Importance[0].Rank)
		})
	}

	t.Run("rejects too many queries", func(t *testing.T) {
		svc, _, _, run, frame := newAttributionFixture(t)
		_, err := svc.Explain(ctx, &ExplainInput{
			RunID:   run.ID,
			Target:  domain.TargetMean,
			Queries: queriesOf(t, frame, 0, 1, 2, 3, 4, 5),
		})
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("rejects unknown target", func(t *testing.T) {
		svc, _, _, run, frame := newAttributionFixture(t)
		_, err := svc.Explain(ctx, &ExplainInput{RunID: run.ID, Target: "median", Queries: queriesOf(t, frame, 0)})
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestAttributionService_Jobs(t *testing.T) {
	ctx := context.Background()

	t.Run("enqueue hands the job to the queue", func(t *testing.T) {
		svc, _, queue, run, frame := newAttributionFixture(t)
		queue.On("EnqueueExplain", ctx, mock.AnythingOfType("*service.ExplainJob")).Return(nil)

		job, err := svc.EnqueueExplain(ctx, &ExplainInput{RunID: run.ID, Target: domain.TargetMean, Queries: queriesOf(t, frame, 2)})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, job.JobID)
		queue.AssertNumberOfCalls(t, "EnqueueExplain", 1)
	})

	t.Run("execute stores one row per feature and query", func(t *testing.T) {
		svc, repo, _, run, frame := newAttributionFixture(t)
		repo.On("InsertBatch", ctx, mock.Anything).Return(nil)

		job := &ExplainJob{JobID: uuid.New(), Input: ExplainInput{
			RunID:   run.ID,
			Target:  domain.TargetAleatoricStd,
			Queries: queriesOf(t, frame, 0, 1, 2),
		}}
		require.NoError(t, svc.ExecuteExplain(ctx, job))

		rows := repo.Calls[0].Arguments.Get(1).([]domain.AttributionRow)
		assert.Len(t, rows, 9)
		assert.Equal(t, job.JobID, rows[0].JobID)
	})

	t.Run("get job with no rows is not found", func(t *testing.T) {
		svc, repo, _, run, _ := newAttributionFixture(t)
		jobID := uuid.New()
		repo.On("ListByJob", ctx, run.ID, jobID).Return([]domain.AttributionRecord{}, nil)

		_, err := svc.GetJob(ctx, run.ID, jobID)
		assert.True(t, apperrors.IsNotFound(err))
	})
}
