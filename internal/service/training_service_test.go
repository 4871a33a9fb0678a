package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/estately/priceuq/internal/domain"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
	"github.com/estately/priceuq/internal/storage"
	"github.com/estately/priceuq/internal/testutil"
)

type trainingFixture struct {
	svc       *TrainingService
	runs      *MockRunRepository
	store     *storage.DirStore
	recorder  *MockPredictionRecorder
	queue     *MockTaskQueue
	publisher *recordingPublisher
}

func newTrainingFixture(t *testing.T) *trainingFixture {
	f := &trainingFixture{
		runs:      new(MockRunRepository),
		store:     newDirStore(t),
		recorder:  new(MockPredictionRecorder),
		queue:     new(MockTaskQueue),
		publisher: &recordingPublisher{},
	}
	f.svc = NewTrainingService(zap.NewNop(), f.runs, f.store, f.recorder, f.queue, f.publisher,
		testTrainingConfig(), testUncertaintyConfig())
	return f
}

func linearInput(n int) *domain.CreateRunInput {
	frame, _ := testutil.LinearFrame(n, 0.01, 5)
	return &domain.CreateRunInput{Name: "linear", Dataset: frame.Data()}
}

func TestTrainingService_CreateRun(t *testing.T) {
	ctx := context.Background()

	t.Run("stores dataset and queues training", func(t *testing.T) {
		f := newTrainingFixture(t)
		f.runs.On("Create", ctx, mock.AnythingOfType("*domain.TrainingRun")).Return(nil)
		f.queue.On("EnqueueTraining", ctx, mock.AnythingOfType("uuid.UUID")).Return(nil)

		seed := uint64(99)
		input := linearInput(40)
		input.Options = &domain.RunOverrides{RandomSeed: &seed}

		run, err := f.svc.CreateRun(ctx, input)
		require.NoError(t, err)
		assert.Equal(t, domain.RunStatusPending, run.Status)
		assert.Equal(t, []string(testutil.LinearSchema), run.Features)
		assert.Equal(t, storage.DatasetKey(run.ID), run.DatasetKey)
		assert.Len(t, run.DatasetHash, 64)
		assert.Equal(t, uint64(99), run.Config.RandomSeed)
		assert.Equal(t, 6, run.Config.EpistemicPasses)

		frame, err := LoadDataset(ctx, f.store, run.DatasetKey)
		require.NoError(t, err)
		assert.Equal(t, 40, frame.Len())
		f.queue.AssertCalled(t, "EnqueueTraining", ctx, run.ID)
	})

	t.Run("rejects datasets without targets", func(t *testing.T) {
		f := newTrainingFixture(t)
		input := linearInput(10)
		input.Dataset.Targets = nil

		_, err := f.svc.CreateRun(ctx, input)
		assert.True(t, apperrors.IsValidation(err))
		f.runs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("rejects invalid hyperparameters", func(t *testing.T) {
		f := newTrainingFixture(t)
		input := linearInput(10)
		input.Options = &domain.RunOverrides{HiddenLayers: []int{8}}

		_, err := f.svc.CreateRun(ctx, input)
		assert.True(t, apperrors.IsInvalidConfig(err))
	})

	t.Run("marks run failed when queueing fails", func(t *testing.T) {
		f := newTrainingFixture(t)
		f.runs.On("Create", ctx, mock.Anything).Return(nil)
		f.queue.On("EnqueueTraining", ctx, mock.Anything).Return(errors.New("redis down"))
		f.runs.On("UpdateStatus", ctx, mock.Anything, domain.RunStatusFailed, mock.Anything).Return(nil)

		_, err := f.svc.CreateRun(ctx, linearInput(10))
		assert.Error(t, err)
		f.runs.AssertCalled(t, "UpdateStatus", ctx, mock.Anything, domain.RunStatusFailed, mock.Anything)
	})
}

func TestTrainingService_ExecuteRun(t *testing.T) {
	ctx := context.Background()

	t.Run("trains and publishes artifacts", func(t *testing.T) {
		f := newTrainingFixture(t)
		f.runs.On("Create", ctx, mock.Anything).Return(nil)
		f.queue.On("EnqueueTraining", ctx, mock.Anything).Return(nil)
		run, err := f.svc.CreateRun(ctx, linearInput(80))
		require.NoError(t, err)

		f.runs.On("GetByID", ctx, run.ID).Return(run, nil)
		f.runs.On("UpdateStatus", ctx, run.ID, domain.RunStatusRunning, "").Return(nil)
		f.recorder.On("InsertBatch", ctx, run.ID, mock.AnythingOfType("uuid.UUID"), mock.Anything).Return(nil)
		var completed *domain.TrainingRun
		f.runs.On("Complete", ctx, mock.Anything).Run(func(args mock.Arguments) {
			completed = args.Get(1).(*domain.TrainingRun)
		}).Return(nil)

		require.NoError(t, f.svc.ExecuteRun(ctx, run.ID))

		require.NotNil(t, completed)
		assert.Equal(t, domain.RunStatusCompleted, completed.Status)
		require.NotNil(t, completed.Report)
		assert.Positive(t, completed.Report.EpochsRun)
		require.NotNil(t, completed.Metrics)
		assert.Equal(t, 0.95, completed.Metrics.CoverageTarget)
		assert.Positive(t, completed.Metrics.MeanEpistemicStd)

		_, err = f.store.Get(ctx, storage.SnapshotKey(run.ID))
		assert.NoError(t, err)
		_, err = f.store.Get(ctx, storage.ReportKey(run.ID))
		assert.NoError(t, err)

		recorded := f.recorder.Calls[0].Arguments.Get(3).([]domain.PredictionRecord)
		assert.Len(t, recorded, 20)

		types := f.publisher.types()
		assert.Equal(t, "run.status:running", types[0])
		assert.Contains(t, types, "run.epoch:running")
		assert.Equal(t, "run.status:completed", types[len(types)-1])
	})

	t.Run("skips finished runs", func(t *testing.T) {
		f := newTrainingFixture(t)
		run := testutil.NewTestRun()
		f.runs.On("GetByID", ctx, run.ID).Return(run, nil)

		require.NoError(t, f.svc.ExecuteRun(ctx, run.ID))
		f.runs.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("marks run failed when the dataset is missing", func(t *testing.T) {
		f := newTrainingFixture(t)
		run := testutil.NewTestRun()
		run.Status = domain.RunStatusPending
		f.runs.On("GetByID", ctx, run.ID).Return(run, nil)
		f.runs.On("UpdateStatus", ctx, run.ID, domain.RunStatusRunning, "").Return(nil)
		f.runs.On("UpdateStatus", mock.Anything, run.ID, domain.RunStatusFailed, mock.AnythingOfType("string")).Return(nil)

		err := f.svc.ExecuteRun(ctx, run.ID)
		assert.True(t, apperrors.IsNotFound(err))
		f.runs.AssertCalled(t, "UpdateStatus", mock.Anything, run.ID, domain.RunStatusFailed, mock.AnythingOfType("string"))
		f.runs.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
		assert.Equal(t, "run.status:failed", f.publisher.types()[1])
	})

	t.Run("unknown run", func(t *testing.T) {
		f := newTrainingFixture(t)
		missing := uuid.New()
		f.runs.On("GetByID", ctx, missing).Return(nil, apperrors.NotFound("training run"))

		err := f.svc.ExecuteRun(ctx, missing)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestRunConfigOverrides(t *testing.T) {
	f := newTrainingFixture(t)
	lr := 0.05
	scale := 1000.0
	rc := f.svc.runConfig(&domain.RunOverrides{LearningRate: &lr, PriceScale: &scale, HiddenLayers: []int{4, 4, 4}})

	assert.Equal(t, 0.05, rc.LearningRate)
	assert.Equal(t, 1000.0, rc.PriceScale)
	assert.Equal(t, []int{4, 4, 4}, rc.HiddenLayers)
	assert.Equal(t, 8, rc.MaxEpochs)

	mc := modelConfig(rc, 0.2)
	assert.NoError(t, mc.Validate())
	assert.Equal(t, 0.2, mc.BatchNormMomentum)
}
