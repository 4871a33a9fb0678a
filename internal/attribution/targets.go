package attribution

import (
	"context"
	"encoding/binary"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/estately/priceuq/internal/domain"
	"github.com/estately/priceuq/internal/model"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
	"github.com/estately/priceuq/internal/pkg/id"
	"github.com/estately/priceuq/internal/uncertainty"
)

// Target is a scalar function of a feature row that can be explained. All
// targets return log-scale values, one per row of batch.
type Target interface {
	Kind() domain.TargetKind
	Evaluate(ctx context.Context, batch domain.FeatureFrame) ([]float64, error)
}

// MeanTarget is the deterministic mean head
type MeanTarget struct {
	Predictor uncertainty.Predictor
}

// Kind implements Target
func (MeanTarget) Kind() domain.TargetKind { return domain.TargetMean }

// Evaluate implements Target
func (t MeanTarget) Evaluate(ctx context.Context, batch domain.FeatureFrame) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := t.Predictor.Predict(batch, false, nil)
	if err != nil {
		return nil, err
	}
	return p.Mu, nil
}

// AleatoricStdTarget is the square root of the deterministic variance head
type AleatoricStdTarget struct {
	Predictor uncertainty.Predictor
}

// Kind implements Target
func (AleatoricStdTarget) Kind() domain.TargetKind { return domain.TargetAleatoricStd }

// Evaluate implements Target
func (t AleatoricStdTarget) Evaluate(ctx context.Context, batch domain.FeatureFrame) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := t.Predictor.Predict(batch, false, nil)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(p.SigmaSq))
	for i, s := range p.SigmaSq {
		out[i] = math.Sqrt(s)
	}
	return out, nil
}

// EpistemicStdTarget is the dropout spread of the mean head. Each distinct row
// is estimated with a generator seeded from its own values and Salt, so the
// result for a row does not depend on the rest of the batch.
type EpistemicStdTarget struct {
	Estimator *uncertainty.EpistemicEstimator
	Salt      uint64
	Workers   int
}

// Kind implements Target
func (EpistemicStdTarget) Kind() domain.TargetKind { return domain.TargetEpistemicStd }

// Evaluate implements Target
func (t EpistemicStdTarget) Evaluate(ctx context.Context, batch domain.FeatureFrame) ([]float64, error) {
	if t.Estimator == nil {
		return nil, apperrors.InvalidConfig("epistemic target needs an estimator")
	}
	n := batch.Len()
	if n == 0 {
		return nil, apperrors.InvalidConfig("empty batch")
	}

	// hybrid batches repeat rows heavily; estimate each distinct row once
	first := make(map[string]int, n)
	owner := make([]int, n)
	var unique []int
	for i := 0; i < n; i++ {
		key := rowKey(batch.X.RawRowView(i))
		if j, ok := first[key]; ok {
			owner[i] = j
			continue
		}
		first[key] = i
		owner[i] = i
		unique = append(unique, i)
	}

	values := make([]float64, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, t.Workers))
	for _, i := range unique {
		g.Go(func() error {
			row, err := batch.Subset([]int{i})
			if err != nil {
				return err
			}
			rng := model.NewRand(id.RowSeed(t.Salt, row.X.RawRowView(0)))
			std, err := t.Estimator.Estimate(gctx, row, rng)
			if err != nil {
				return err
			}
			values[i] = std[0]
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i := range values {
		values[i] = values[owner[i]]
	}
	return values, nil
}

func rowKey(row []float64) string {
	buf := make([]byte, 0, 8*len(row))
	for _, v := range row {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return string(buf)
}

// TargetConfig carries what NewTarget needs beyond the model
type TargetConfig struct {
	EpistemicPasses int
	Salt            uint64
	Workers         int
}

// NewTarget builds the target of the given kind over predictor. The epistemic
// target runs its own pass count, independent of the one used for reporting.
func NewTarget(kind domain.TargetKind, predictor uncertainty.Predictor, cfg TargetConfig) (Target, error) {
	if predictor == nil {
		return nil, apperrors.InvalidConfig("attribution target needs a predictor")
	}
	switch kind {
	case domain.TargetMean:
		return MeanTarget{Predictor: predictor}, nil
	case domain.TargetAleatoricStd:
		return AleatoricStdTarget{Predictor: predictor}, nil
	case domain.TargetEpistemicStd:
		est, err := uncertainty.NewEpistemicEstimator(predictor, cfg.EpistemicPasses)
		if err != nil {
			return nil, err
		}
		return EpistemicStdTarget{Estimator: est, Salt: cfg.Salt, Workers: cfg.Workers}, nil
	default:
		return nil, apperrors.InvalidConfig("unknown attribution target %q", kind)
	}
}
