package attribution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estately/priceuq/internal/domain"
	"github.com/estately/priceuq/internal/model"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
	"github.com/estately/priceuq/internal/testutil"
)

func fittedRegressor(t *testing.T) (*model.DualHeadRegressor, domain.FeatureFrame) {
	t.Helper()
	data, _ := testutil.LinearFrame(200, 0.04, 21)
	train, val, err := data.Split(0.25, model.NewRand(21))
	require.NoError(t, err)

	cfg := model.DefaultConfig()
	cfg.HiddenLayers = []int{16, 8}
	cfg.MaxEpochs = 5
	m, err := model.New(testutil.LinearSchema, cfg)
	require.NoError(t, err)
	_, err = m.Fit(context.Background(), train, val)
	require.NoError(t, err)
	return m, val
}

func TestNewTarget(t *testing.T) {
	m, _ := fittedRegressor(t)

	for _, kind := range []domain.TargetKind{domain.TargetMean, domain.TargetEpistemicStd, domain.TargetAleatoricStd} {
		target, err := NewTarget(kind, m, TargetConfig{EpistemicPasses: 5})
		require.NoError(t, err)
		assert.Equal(t, kind, target.Kind())
	}

	_, err := NewTarget("median", m, TargetConfig{EpistemicPasses: 5})
	assert.True(t, apperrors.IsInvalidConfig(err))

	_, err = NewTarget(domain.TargetEpistemicStd, m, TargetConfig{EpistemicPasses: 1})
	assert.True(t, apperrors.IsInvalidConfig(err))

	_, err = NewTarget(domain.TargetMean, nil, TargetConfig{})
	assert.True(t, apperrors.IsInvalidConfig(err))
}

func TestTargetsEvaluate(t *testing.T) {
	m, val := fittedRegressor(t)
	ctx := context.Background()

	pred, err := m.Predict(val, false, nil)
	require.NoError(t, err)

	mean, err := MeanTarget{Predictor: m}.Evaluate(ctx, val)
	require.NoError(t, err)
	assert.Equal(t, pred.Mu, mean)

	aleatoric, err := AleatoricStdTarget{Predictor: m}.Evaluate(ctx, val)
	require.NoError(t, err)
	for i, s := range aleatoric {
		assert.Greater(t, s, 0.0)
		assert.InEpsilon(t, pred.SigmaSq[i], s*s, 1e-9)
	}
}

func TestEpistemicTargetIsPerRow(t *testing.T) {
	m, val := fittedRegressor(t)
	ctx := context.Background()

	target, err := NewTarget(domain.TargetEpistemicStd, m, TargetConfig{EpistemicPasses: 10, Salt: 3, Workers: 2})
	require.NoError(t, err)

	all, err := target.Evaluate(ctx, val)
	require.NoError(t, err)
	require.Len(t, all, val.Len())

	one, err := val.Subset([]int{4})
	require.NoError(t, err)
	alone, err := target.Evaluate(ctx, one)
	require.NoError(t, err)
	assert.Equal(t, all[4], alone[0])

	dup, err := val.Subset([]int{4, 0, 4})
	require.NoError(t, err)
	repeated, err := target.Evaluate(ctx, dup)
	require.NoError(t, err)
	assert.Equal(t, []float64{all[4], all[0], all[4]}, repeated)

	for _, s := range all {
		assert.Greater(t, s, 0.0)
	}
}

func TestExplainModelTargets(t *testing.T) {
	m, val := fittedRegressor(t)
	background, err := val.SampleRows(8, model.NewRand(1))
	require.NoError(t, err)
	queries, err := val.Subset([]int{0, 1})
	require.NoError(t, err)

	engine := NewEngine(2)
	for _, kind := range []domain.TargetKind{domain.TargetMean, domain.TargetEpistemicStd, domain.TargetAleatoricStd} {
		t.Run(string(kind), func(t *testing.T) {
			target, err := NewTarget(kind, m, TargetConfig{EpistemicPasses: 5, Workers: 2})
			require.NoError(t, err)

			records, err := engine.Explain(context.Background(), target, background, queries, 10, model.NewRand(4))
			require.NoError(t, err)
			require.Len(t, records, 2)
			assertLocalAccuracy(t, records)
			for _, r := range records {
				assert.Equal(t, kind, r.Target)
				assert.Len(t, r.Contributions, len(testutil.LinearSchema))
			}
		})
	}
}
