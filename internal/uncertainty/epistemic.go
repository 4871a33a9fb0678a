package uncertainty

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/estately/priceuq/internal/domain"
	"github.com/estately/priceuq/internal/model"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
)

// DefaultPasses is the number of stochastic passes used for reporting.
const DefaultPasses = 50

// defaultMaxRows bounds the size of one replicated forward batch.
const defaultMaxRows = 8192

// Predictor is the inference capability the estimator depends on.
type Predictor interface {
	Predict(batch domain.FeatureFrame, stochastic bool, rng *rand.Rand) (model.Prediction, error)
}

// EpistemicEstimator measures model uncertainty as the spread of the mean
// head over repeated stochastic passes.
type EpistemicEstimator struct {
	predictor Predictor
	passes    int
	workers   int
	maxRows   int
}

// EstimatorOption configures an EpistemicEstimator
type EstimatorOption func(*EpistemicEstimator)

// WithWorkers sets how many replicated chunks run concurrently
func WithWorkers(n int) EstimatorOption {
	return func(e *EpistemicEstimator) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithMaxRows caps the rows of one replicated forward batch
func WithMaxRows(n int) EstimatorOption {
	return func(e *EpistemicEstimator) {
		if n > 0 {
			e.maxRows = n
		}
	}
}

// NewEpistemicEstimator returns an estimator running passes stochastic passes.
// Fewer than two passes is InvalidConfig since the spread of one draw is
// undefined.
func NewEpistemicEstimator(p Predictor, passes int, opts ...EstimatorOption) (*EpistemicEstimator, error) {
	if p == nil {
		return nil, apperrors.InvalidConfig("epistemic estimator needs a predictor")
	}
	if passes < 2 {
		return nil, apperrors.InvalidConfig("epistemic passes must be at least 2, got %d", passes)
	}
	e := &EpistemicEstimator{predictor: p, passes: passes, workers: 1, maxRows: defaultMaxRows}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Passes returns the configured number of stochastic passes
func (e *EpistemicEstimator) Passes() int {
	return e.passes
}

// WithPasses returns a copy of the estimator running a different number of
// passes, used to cap cost inside attribution.
func (e *EpistemicEstimator) WithPasses(passes int) (*EpistemicEstimator, error) {
	if passes < 2 {
		return nil, apperrors.InvalidConfig("epistemic passes must be at least 2, got %d", passes)
	}
	c := *e
	c.passes = passes
	return &c, nil
}

// Estimate returns the sample standard deviation of mu across passes for each
// row of batch, on the log-price scale. Passes are tiled into replicated
// batches; each chunk draws its dropout masks from a generator seeded from
// rng, so the result is reproducible for a given rng state.
func (e *EpistemicEstimator) Estimate(ctx context.Context, batch domain.FeatureFrame, rng *rand.Rand) ([]float64, error) {
	if rng == nil {
		return nil, apperrors.InvalidConfig("epistemic estimate requires a random source")
	}
	n := batch.Len()
	if n == 0 {
		return nil, apperrors.InvalidConfig("empty batch")
	}
	_, d := batch.X.Dims()

	perChunk := max(1, min(e.passes, e.maxRows/n))
	type chunk struct {
		first, count int
		seed         uint64
	}
	var chunks []chunk
	for first := 0; first < e.passes; first += perChunk {
		chunks = append(chunks, chunk{first: first, count: min(perChunk, e.passes-first), seed: rng.Uint64()})
	}

	draws := make([][]float64, e.passes)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, c := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tiled := mat.NewDense(c.count*n, d, nil)
			for p := 0; p < c.count; p++ {
				tiled.Slice(p*n, (p+1)*n, 0, d).(*mat.Dense).Copy(batch.X)
			}
			pred, err := e.predictor.Predict(domain.FrameFromMatrix(batch.Schema, tiled, nil), true, model.NewRand(c.seed))
			if err != nil {
				return fmt.Errorf("stochastic passes %d-%d: %w", c.first, c.first+c.count-1, err)
			}
			if len(pred.Mu) != c.count*n {
				return apperrors.Internal(fmt.Sprintf("predictor returned %d means for %d rows", len(pred.Mu), c.count*n))
			}
			for p := 0; p < c.count; p++ {
				draws[c.first+p] = pred.Mu[p*n : (p+1)*n]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]float64, n)
	col := make([]float64, e.passes)
	for i := 0; i < n; i++ {
		for p := 0; p < e.passes; p++ {
			col[p] = draws[p][i]
		}
		sd := stat.StdDev(col, nil)
		if math.IsNaN(sd) || math.IsInf(sd, 0) {
			return nil, apperrors.NumericInstability("non-finite epistemic std for sample %d", i).
				WithDetail("sample", fmt.Sprint(i))
		}
		out[i] = sd
	}
	return out, nil
}
