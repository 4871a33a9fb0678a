package attribution

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/estately/priceuq/internal/domain"
	"github.com/estately/priceuq/internal/model"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
	"github.com/estately/priceuq/internal/testutil"
)

// funcTarget evaluates f on every row and optionally runs hook before each call.
type funcTarget struct {
	f     func(row []float64) float64
	calls atomic.Int64
	hook  func(call int64)
}

func (t *funcTarget) Kind() domain.TargetKind { return domain.TargetMean }

func (t *funcTarget) Evaluate(ctx context.Context, batch domain.FeatureFrame) ([]float64, error) {
	call := t.calls.Add(1)
	if t.hook != nil {
		t.hook(call)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, batch.Len())
	for i := range out {
		out[i] = t.f(batch.X.RawRowView(i))
	}
	return out, nil
}

func linear(w []float64) func([]float64) float64 {
	return func(row []float64) float64 {
		var s float64
		for j, v := range row {
			s += w[j] * v
		}
		return s
	}
}

func frame(t *testing.T, rows ...[]float64) domain.FeatureFrame {
	t.Helper()
	f, err := domain.NewFeatureFrame(testutil.LinearSchema, rows, nil)
	require.NoError(t, err)
	return f
}

func assertLocalAccuracy(t *testing.T, records []domain.AttributionRecord) {
	t.Helper()
	for _, r := range records {
		assert.InDelta(t, r.Output, r.Total(), 1e-9, "query %d", r.QueryIndex)
	}
}

func TestExplainLinear(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := testutil.LinearCoefficients
	background, _ := testutil.LinearFrame(200, 0, 11)
	queries, _ := testutil.LinearFrame(5, 0, 12)

	bgMean := make([]float64, len(w))
	for i := 0; i < background.Len(); i++ {
		for j := range w {
			bgMean[j] += background.X.At(i, j) / float64(background.Len())
		}
	}

	target := &funcTarget{f: linear(w)}
	records, err := NewEngine(4).Explain(context.Background(), target, background, queries, 400, model.NewRand(1))
	require.NoError(t, err)
	require.Len(t, records, queries.Len())
	assertLocalAccuracy(t, records)

	for q, r := range records {
		assert.Equal(t, q, r.QueryIndex)
		assert.Equal(t, 400, r.Samples)
		assert.Equal(t, domain.TargetMean, r.Target)
		for j, name := range testutil.LinearSchema {
			want := w[j] * (queries.X.At(q, j) - bgMean[j])
			assert.InDelta(t, want, r.Contributions[name], 0.15, "query %d feature %s", q, name)
		}
	}
}

func TestExplainExactWithSingleBackgroundRow(t *testing.T) {
	w := []float64{2, -1, 0.5}
	background := frame(t, []float64{1, 1, 1})
	queries := frame(t, []float64{3, 0, -1}, []float64{1, 1, 1})

	records, err := NewEngine(1).Explain(context.Background(), &funcTarget{f: linear(w)}, background, queries, 3, model.NewRand(2))
	require.NoError(t, err)

	assert.InDelta(t, 1.5, records[0].Baseline, 1e-12)
	assert.InDelta(t, 4.0, records[0].Contributions["sqft_z"], 1e-12)
	assert.InDelta(t, 1.0, records[0].Contributions["age_z"], 1e-12)
	assert.InDelta(t, -1.0, records[0].Contributions["affluence_z"], 1e-12)
	for _, v := range records[1].Contributions {
		assert.InDelta(t, 0, v, 1e-12)
	}
	assertLocalAccuracy(t, records)
}

func TestExplainInteraction(t *testing.T) {
	product := func(row []float64) float64 { return row[0] * row[1] }
	background := frame(t, []float64{0, 0, 0})
	queries := frame(t, []float64{2, 3, 1})

	records, err := NewEngine(1).Explain(context.Background(), &funcTarget{f: product}, background, queries, 2000, model.NewRand(3))
	require.NoError(t, err)

	c := records[0].Contributions
	assert.InDelta(t, 3, c["sqft_z"], 0.3)
	assert.InDelta(t, 3, c["age_z"], 0.3)
	assert.InDelta(t, 0, c["affluence_z"], 1e-12)
	assertLocalAccuracy(t, records)
}

func TestExplainDeterministic(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := func(row []float64) float64 { return row[0]*row[1] + row[2] }
	background, _ := testutil.LinearFrame(30, 0, 5)
	queries, _ := testutil.LinearFrame(8, 0, 6)

	a, err := NewEngine(1).Explain(context.Background(), &funcTarget{f: f}, background, queries, 50, model.NewRand(9))
	require.NoError(t, err)
	b, err := NewEngine(8).Explain(context.Background(), &funcTarget{f: f}, background, queries, 50, model.NewRand(9))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestExplainCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	background, _ := testutil.LinearFrame(10, 0, 1)
	queries, _ := testutil.LinearFrame(20, 0, 2)

	t.Run("before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		records, err := NewEngine(2).Explain(ctx, &funcTarget{f: linear([]float64{1, 1, 1})}, background, queries, 10, model.NewRand(1))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, records)
	})

	t.Run("mid explanation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		target := &funcTarget{f: linear([]float64{1, 1, 1})}
		// calls 1 and 2 evaluate background and queries
		target.hook = func(call int64) {
			if call == 5 {
				cancel()
			}
		}
		records, err := NewEngine(2).Explain(ctx, target, background, queries, 10, model.NewRand(1))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, records)
		assert.Less(t, target.calls.Load(), int64(22))
	})
}

func TestExplainInvalid(t *testing.T) {
	engine := NewEngine(1)
	target := &funcTarget{f: linear([]float64{1, 1, 1})}
	bg := frame(t, []float64{0, 0, 0})
	q := frame(t, []float64{1, 1, 1})
	ctx := context.Background()

	_, err := engine.Explain(ctx, nil, bg, q, 10, model.NewRand(1))
	assert.True(t, apperrors.IsInvalidConfig(err))

	_, err = engine.Explain(ctx, target, bg, q, 0, model.NewRand(1))
	assert.True(t, apperrors.IsInvalidConfig(err))

	_, err = engine.Explain(ctx, target, domain.FeatureFrame{Schema: testutil.LinearSchema}, q, 10, model.NewRand(1))
	assert.True(t, apperrors.IsInvalidConfig(err))

	_, err = engine.Explain(ctx, target, bg, domain.FeatureFrame{Schema: testutil.LinearSchema}, 10, model.NewRand(1))
	assert.True(t, apperrors.IsInvalidConfig(err))

	_, err = engine.Explain(ctx, target, bg, q, 10, nil)
	assert.True(t, apperrors.IsInvalidConfig(err))

	other, err := domain.NewFeatureFrame(domain.FeatureSchema{"age_z", "sqft_z", "affluence_z"}, [][]float64{{1, 1, 1}}, nil)
	require.NoError(t, err)
	_, err = engine.Explain(ctx, target, bg, other, 10, model.NewRand(1))
	assert.True(t, apperrors.IsSchemaMismatch(err))

	assert.Zero(t, target.calls.Load())
}
