package attribution

import (
	"context"
	"fmt"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/estately/priceuq/internal/domain"
	"github.com/estately/priceuq/internal/model"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
)

// Engine estimates Shapley values of a Target by permutation sampling.
//
// For each sampled permutation a background row is drawn and features are
// switched to the query's values one at a time in permutation order; the
// change in the target at each switch is one marginal-contribution sample for
// that feature. Each permutation therefore costs d+1 target evaluations for d
// features, and all of a query's evaluations go to the target in one batch.
type Engine struct {
	workers int
}

// NewEngine returns an engine explaining up to workers queries concurrently
func NewEngine(workers int) *Engine {
	return &Engine{workers: max(1, workers)}
}

// Explain returns one record per row of queries, in order. baseline is the
// mean of target over background; the estimator's leftover error against
// target(query) is spread over features in proportion to their sampling
// variance, so baseline plus the contributions equals the query output.
//
// Per-query generators are drawn from rng before any work starts, so results
// do not depend on scheduling. If ctx is cancelled nothing is returned.
func (e *Engine) Explain(ctx context.Context, target Target, background, queries domain.FeatureFrame, nSamples int, rng *rand.Rand) ([]domain.AttributionRecord, error) {
	if target == nil {
		return nil, apperrors.InvalidConfig("attribution needs a target")
	}
	if nSamples < 1 {
		return nil, apperrors.InvalidConfig("coalition samples must be at least 1, got %d", nSamples)
	}
	if background.Len() == 0 {
		return nil, apperrors.InvalidConfig("background set is empty")
	}
	if queries.Len() == 0 {
		return nil, apperrors.InvalidConfig("no queries to explain")
	}
	if rng == nil {
		return nil, apperrors.InvalidConfig("attribution requires a random source")
	}
	if err := queries.Schema.Check(background.Schema); err != nil {
		return nil, err
	}

	bgOut, err := target.Evaluate(ctx, background)
	if err != nil {
		return nil, fmt.Errorf("evaluating background: %w", err)
	}
	baseline := stat.Mean(bgOut, nil)

	qOut, err := target.Evaluate(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("evaluating queries: %w", err)
	}

	seeds := make([]uint64, queries.Len())
	for i := range seeds {
		seeds[i] = rng.Uint64()
	}

	records := make([]domain.AttributionRecord, queries.Len())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for q := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			phi, err := e.explainOne(gctx, target, background, queries.X.RawRowView(q), queries.Schema, qOut[q]-baseline, nSamples, model.NewRand(seeds[q]))
			if err != nil {
				return fmt.Errorf("query %d: %w", q, err)
			}
			contrib := make(map[string]float64, len(phi))
			for j, name := range queries.Schema {
				contrib[name] = phi[j]
			}
			records[q] = domain.AttributionRecord{
				QueryIndex:    q,
				Target:        target.Kind(),
				Baseline:      baseline,
				Output:        qOut[q],
				Contributions: contrib,
				Samples:       nSamples,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// explainOne returns the contributions for one query row whose output sits
// gap above the baseline.
func (e *Engine) explainOne(ctx context.Context, target Target, background domain.FeatureFrame, x []float64, schema domain.FeatureSchema, gap float64, nSamples int, rng *rand.Rand) ([]float64, error) {
	d := len(x)
	nb := background.Len()

	hybrids := mat.NewDense(nSamples*(d+1), d, nil)
	perms := make([][]int, nSamples)
	for m := 0; m < nSamples; m++ {
		perm := rng.Perm(d)
		perms[m] = perm
		cur := append([]float64(nil), background.X.RawRowView(rng.IntN(nb))...)
		base := m * (d + 1)
		hybrids.SetRow(base, cur)
		for k, j := range perm {
			cur[j] = x[j]
			hybrids.SetRow(base+k+1, cur)
		}
	}

	out, err := target.Evaluate(ctx, domain.FrameFromMatrix(schema, hybrids, nil))
	if err != nil {
		return nil, err
	}
	if len(out) != nSamples*(d+1) {
		return nil, apperrors.Internal(fmt.Sprintf("target returned %d values for %d rows", len(out), nSamples*(d+1)))
	}

	samples := make([][]float64, d)
	for j := range samples {
		samples[j] = make([]float64, nSamples)
	}
	for m, perm := range perms {
		base := m * (d + 1)
		for k, j := range perm {
			samples[j][m] = out[base+k+1] - out[base+k]
		}
	}

	phi := make([]float64, d)
	variance := make([]float64, d)
	for j := range phi {
		phi[j] = stat.Mean(samples[j], nil)
		if nSamples > 1 {
			variance[j] = stat.Variance(samples[j], nil) / float64(nSamples)
		}
	}
	redistribute(phi, variance, gap-floats.Sum(phi))
	return phi, nil
}

// redistribute adds residual to phi in proportion to each feature's estimator
// variance, or evenly when every estimate is exact.
func redistribute(phi, variance []float64, residual float64) {
	total := floats.Sum(variance)
	for j := range phi {
		if total > 0 {
			phi[j] += residual * variance[j] / total
		} else {
			phi[j] += residual / float64(len(phi))
		}
	}
}
