package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/stat"

	"github.com/estately/priceuq/internal/domain"
	"github.com/estately/priceuq/internal/model"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
	"github.com/estately/priceuq/internal/pkg/metrics"
	"github.com/estately/priceuq/internal/storage"
	"github.com/estately/priceuq/internal/uncertainty"
)

// RunReader loads training runs
type RunReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TrainingRun, error)
}

// ScoreOptions controls one uncertainty evaluation
type ScoreOptions struct {
	Passes     int
	Workers    int
	Seed       uint64
	PriceScale float64
}

// ScoreFrame runs a deterministic prediction, the MC dropout estimate and the
// decomposition of frame. Targets on frame, when present, are used as truth.
func ScoreFrame(
	ctx context.Context,
	m *model.DualHeadRegressor,
	dec *uncertainty.Decomposer,
	frame domain.FeatureFrame,
	opts ScoreOptions,
) (domain.UncertaintyReport, error) {
	start := time.Now()
	pred, err := m.Predict(frame, false, nil)
	if err != nil {
		return domain.UncertaintyReport{}, err
	}
	metrics.RecordInferenceStage("predict", time.Since(start))

	est, err := uncertainty.NewEpistemicEstimator(m, opts.Passes, uncertainty.WithWorkers(opts.Workers))
	if err != nil {
		return domain.UncertaintyReport{}, err
	}
	start = time.Now()
	epistemic, err := est.Estimate(ctx, frame, model.NewRand(opts.Seed))
	if err != nil {
		return domain.UncertaintyReport{}, fmt.Errorf("failed to estimate epistemic uncertainty: %w", err)
	}
	metrics.RecordInferenceStage("epistemic", time.Since(start))

	start = time.Now()
	report, err := dec.Decompose(uncertainty.DecomposeInput{
		Mu:           pred.Mu,
		SigmaSq:      pred.SigmaSq,
		EpistemicStd: epistemic,
		Truth:        frame.Targets,
	}, opts.PriceScale)
	if err != nil {
		return domain.UncertaintyReport{}, err
	}
	metrics.RecordInferenceStage("decompose", time.Since(start))

	var observed *float64
	if report.Coverage != nil {
		observed = &report.Coverage.Observed
	}
	metrics.RecordInferenceBatch(len(report.Records), len(report.Outliers.Indices), observed)

	return report, nil
}

// validationMetrics summarises a report scored against known targets
func validationMetrics(report domain.UncertaintyReport, targets []float64) *domain.RunMetrics {
	n := len(report.Records)
	mu := make([]float64, n)
	var sqErr, sumSigma, sumEpi float64
	for i, r := range report.Records {
		mu[i] = r.Mu
		d := targets[i] - r.Mu
		sqErr += d * d
		sumSigma += r.SigmaSq
		sumEpi += r.EpistemicStd
	}
	out := &domain.RunMetrics{
		RSquared:         stat.RSquaredFrom(mu, targets, nil),
		RMSE:             math.Sqrt(sqErr / float64(n)),
		MeanSigmaSq:      sumSigma / float64(n),
		MeanEpistemicStd: sumEpi / float64(n),
		OutlierCount:     len(report.Outliers.Indices),
	}
	if report.Coverage != nil {
		out.CoverageTarget = report.Coverage.Target
		out.CoverageObserved = report.Coverage.Observed
	}
	return out
}

// ModelCache loads fitted models from the artifact store, keeping the most
// recently used ones in memory.
type ModelCache struct {
	runs   RunReader
	store  storage.ArtifactStore
	models *lru.Cache[uuid.UUID, *model.DualHeadRegressor]
}

// NewModelCache creates a cache holding up to size models
func NewModelCache(runs RunReader, store storage.ArtifactStore, size int) (*ModelCache, error) {
	models, err := lru.New[uuid.UUID, *model.DualHeadRegressor](max(size, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to create model cache: %w", err)
	}
	return &ModelCache{runs: runs, store: store, models: models}, nil
}

// Load returns the completed run and its fitted model
func (c *ModelCache) Load(ctx context.Context, runID uuid.UUID) (*domain.TrainingRun, *model.DualHeadRegressor, error) {
	run, err := c.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	if run.Status != domain.RunStatusCompleted || run.SnapshotKey == "" {
		return nil, nil, apperrors.NotFitted(fmt.Sprintf("run %s is %s", run.ID, run.Status))
	}

	if m, ok := c.models.Get(runID); ok {
		return run, m, nil
	}

	data, err := c.store.Get(ctx, run.SnapshotKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load model snapshot: %w", err)
	}
	m, err := model.UnmarshalSnapshot(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to restore model: %w", err)
	}
	c.models.Add(runID, m)
	return run, m, nil
}

// Len returns the number of cached models
func (c *ModelCache) Len() int {
	return c.models.Len()
}

// LoadDataset reads a stored frame
func LoadDataset(ctx context.Context, store storage.ArtifactStore, key string) (domain.FeatureFrame, error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		return domain.FeatureFrame{}, fmt.Errorf("failed to load dataset: %w", err)
	}
	var fd domain.FrameData
	if err := json.Unmarshal(data, &fd); err != nil {
		return domain.FeatureFrame{}, fmt.Errorf("failed to decode dataset: %w", err)
	}
	return fd.Frame()
}
