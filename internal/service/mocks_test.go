package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/estately/priceuq/internal/config"
	"github.com/estately/priceuq/internal/domain"
	"github.com/estately/priceuq/internal/model"
	"github.com/estately/priceuq/internal/storage"
	"github.com/estately/priceuq/internal/testutil"
)

// MockRunRepository is a mock implementation of RunRepository
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Create(ctx context.Context, run *domain.TrainingRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TrainingRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TrainingRun), args.Error(1)
}

func (m *MockRunRepository) List(ctx context.Context, filter *domain.RunFilter) (*domain.RunList, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RunList), args.Error(1)
}

func (m *MockRunRepository) ListCompletedSince(ctx context.Context, since time.Time) ([]domain.TrainingRun, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TrainingRun), args.Error(1)
}

func (m *MockRunRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RunStatus, errMsg string) error {
	args := m.Called(ctx, id, status, errMsg)
	return args.Error(0)
}

func (m *MockRunRepository) Complete(ctx context.Context, run *domain.TrainingRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

// MockPredictionRecorder is a mock implementation of PredictionRecorder
type MockPredictionRecorder struct {
	mock.Mock
}

func (m *MockPredictionRecorder) InsertBatch(ctx context.Context, runID, batchID uuid.UUID, records []domain.PredictionRecord) error {
	args := m.Called(ctx, runID, batchID, records)
	return args.Error(0)
}

// MockTaskQueue is a mock implementation of TaskQueue
type MockTaskQueue struct {
	mock.Mock
}

func (m *MockTaskQueue) EnqueueTraining(ctx context.Context, runID uuid.UUID) error {
	args := m.Called(ctx, runID)
	return args.Error(0)
}

func (m *MockTaskQueue) EnqueueExplain(ctx context.Context, job *ExplainJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockTaskQueue) EnqueueReportExport(ctx context.Context, runID uuid.UUID) error {
	args := m.Called(ctx, runID)
	return args.Error(0)
}

// MockAttributionRepository is a mock implementation of AttributionRepository
type MockAttributionRepository struct {
	mock.Mock
}

func (m *MockAttributionRepository) InsertBatch(ctx context.Context, rows []domain.AttributionRow) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

func (m *MockAttributionRepository) ListByJob(ctx context.Context, runID, jobID uuid.UUID) ([]domain.AttributionRecord, error) {
	args := m.Called(ctx, runID, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AttributionRecord), args.Error(1)
}

// MockNeighborhoodRepository is a mock implementation of NeighborhoodRepository
type MockNeighborhoodRepository struct {
	mock.Mock
}

func (m *MockNeighborhoodRepository) Upsert(ctx context.Context, profiles []domain.NeighborhoodProfile) error {
	args := m.Called(ctx, profiles)
	return args.Error(0)
}

func (m *MockNeighborhoodRepository) GetByName(ctx context.Context, name string) (*domain.NeighborhoodProfile, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.NeighborhoodProfile), args.Error(1)
}

func (m *MockNeighborhoodRepository) List(ctx context.Context) ([]domain.NeighborhoodProfile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.NeighborhoodProfile), args.Error(1)
}

// memCache is an in-memory ProfileCache
type memCache struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemCache() *memCache {
	return &memCache{values: map[string]string{}}
}

func (c *memCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *memCache) SetMany(ctx context.Context, values map[string]string) error {
	for k, v := range values {
		_ = c.Set(ctx, k, v)
	}
	return nil
}

// recordingPublisher collects progress events
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.RunProgressEvent
}

func (p *recordingPublisher) PublishProgress(_ context.Context, event domain.RunProgressEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type + ":" + string(e.Status)
	}
	return out
}

// countingStore counts Get calls on an ArtifactStore
type countingStore struct {
	storage.ArtifactStore
	mu   sync.Mutex
	gets map[string]int
}

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	if s.gets == nil {
		s.gets = map[string]int{}
	}
	s.gets[key]++
	s.mu.Unlock()
	return s.ArtifactStore.Get(ctx, key)
}

func newDirStore(t *testing.T) *storage.DirStore {
	t.Helper()
	store, err := storage.NewDirStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func testTrainingConfig() config.TrainingConfig {
	return testutil.TestConfig().Training
}

func testUncertaintyConfig() config.UncertaintyConfig {
	return testutil.TestConfig().Uncertainty
}

func testAttributionConfig() config.AttributionConfig {
	return testutil.TestConfig().Attribution
}

// fittedRun trains a small model, stores its dataset and snapshot in store
// and returns the completed run describing them.
func fittedRun(t *testing.T, store storage.ArtifactStore) (*domain.TrainingRun, domain.FeatureFrame) {
	t.Helper()
	ctx := context.Background()
	frame, _ := testutil.LinearFrame(120, 0.01, 3)
	train, val, err := frame.Split(0.25, model.NewRand(1))
	require.NoError(t, err)

	cfg := modelConfig(domain.RunConfig{
		LearningRate:          0.01,
		MaxEpochs:             6,
		EarlyStoppingPatience: 3,
		DropoutRate:           0.1,
		RandomSeed:            11,
		HiddenLayers:          []int{8, 8},
		BatchSize:             16,
		NLLEpsilon:            1e-6,
	}, 0.1)
	m, err := model.New(frame.Schema, cfg)
	require.NoError(t, err)
	_, err = m.Fit(ctx, train, val)
	require.NoError(t, err)

	run := testutil.NewTestRun()
	run.Config.EpistemicPasses = 5
	run.Config.RandomSeed = 11

	snapshot, err := m.MarshalSnapshot()
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, run.SnapshotKey, snapshot, storage.ContentTypeJSON))

	dataset, err := json.Marshal(frame.Data())
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, run.DatasetKey, dataset, storage.ContentTypeJSON))

	return run, frame
}
