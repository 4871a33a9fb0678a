package uncertainty

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estately/priceuq/internal/domain"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
)

func newTestDecomposer(t *testing.T) *Decomposer {
	t.Helper()
	d, err := NewDecomposer(DefaultDecomposerConfig())
	require.NoError(t, err)
	return d
}

func TestLogNormalMoments(t *testing.T) {
	// hand computed: 1e5 * sqrt((e^0.01 - 1) * e^0.01)
	assert.InEpsilon(t, 10075.302944620451, LogNormalStd(0, 0.01, 1e5), 1e-6)
	assert.InEpsilon(t, 100501.2520859401, LogNormalMean(0, 0.01, 1e5), 1e-9)
	assert.Equal(t, 0.0, LogNormalStd(3, 0, 1e5))
	assert.InEpsilon(t, math.Exp(3), LogNormalMean(3, 0, 1), 1e-12)
}

func TestNewDecomposer(t *testing.T) {
	for _, cfg := range []DecomposerConfig{
		{PricePercentile: 0, AleatoricPercentile: 0.75},
		{PricePercentile: 0.75, AleatoricPercentile: 1},
		{PricePercentile: math.NaN(), AleatoricPercentile: 0.75},
	} {
		_, err := NewDecomposer(cfg)
		assert.True(t, apperrors.IsInvalidConfig(err), "%+v", cfg)
	}
}

func TestDecompose(t *testing.T) {
	d := newTestDecomposer(t)

	t.Run("back-transform and total", func(t *testing.T) {
		report, err := d.Decompose(DecomposeInput{
			Mu:           []float64{0},
			SigmaSq:      []float64{0.01},
			EpistemicStd: []float64{0.1},
		}, 1e5)
		require.NoError(t, err)
		require.Len(t, report.Records, 1)

		r := report.Records[0]
		assert.InEpsilon(t, 10075.302944620451, r.AleatoricStdPrice, 1e-6)
		assert.InEpsilon(t, 10075.302944620451, r.EpistemicStdPrice, 1e-6)
		assert.InEpsilon(t, 14248.630069299825, r.TotalStdPrice, 1e-6)
		assert.InEpsilon(t, 100501.2520859401, r.PredictedPrice, 1e-9)
		assert.InDelta(t, r.PredictedPrice-1.96*r.TotalStdPrice, r.IntervalLower, 1e-6)
		assert.InDelta(t, r.PredictedPrice+1.96*r.TotalStdPrice, r.IntervalUpper, 1e-6)
		assert.Nil(t, report.Coverage)
		assert.Nil(t, r.ActualPrice)
		assert.InDelta(t, 0.5, report.Summary.AleatoricShare, 1e-9)
	})

	t.Run("zero uncertainty collapses the interval", func(t *testing.T) {
		report, err := d.Decompose(DecomposeInput{
			Mu:           []float64{1, 2},
			SigmaSq:      []float64{0, 0},
			EpistemicStd: []float64{0, 0},
		}, 1)
		require.NoError(t, err)
		for i, r := range report.Records {
			assert.Zero(t, r.TotalStdPrice)
			assert.InEpsilon(t, math.Exp(float64(i+1)), r.PredictedPrice, 1e-12)
		}
		assert.Zero(t, report.Summary.AleatoricShare)
	})

	t.Run("coverage and calibration", func(t *testing.T) {
		report, err := d.Decompose(DecomposeInput{
			Mu:           []float64{0, 0, 0, 0},
			SigmaSq:      []float64{0.01, 0.01, 0.01, 0.01},
			EpistemicStd: []float64{0, 0, 0, 0},
			Truth:        []float64{0, 0.05, 1, -1},
		}, 1)
		require.NoError(t, err)
		require.NotNil(t, report.Coverage)

		assert.Equal(t, 0.95, report.Coverage.Target)
		assert.Equal(t, 4, report.Coverage.Samples)
		assert.Equal(t, 2, report.Coverage.Covered)
		assert.InDelta(t, 0.5, report.Coverage.Observed, 1e-12)
		assert.InDelta(t, -0.45, report.Coverage.Gap(), 1e-12)

		assert.True(t, *report.Records[0].WithinInterval)
		assert.False(t, *report.Records[2].WithinInterval)
		assert.InEpsilon(t, math.E, *report.Records[2].ActualPrice, 1e-12)

		require.Len(t, report.Calibration, len(CalibrationLevels))
		prev := 0.0
		for i, p := range report.Calibration {
			assert.Equal(t, CalibrationLevels[i], p.Nominal)
			assert.GreaterOrEqual(t, p.Observed, prev)
			prev = p.Observed
		}
		assert.InDelta(t, 1.959964, report.Calibration[3].Z, 1e-6)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := d.Decompose(DecomposeInput{Mu: []float64{0}, SigmaSq: []float64{0.1}, EpistemicStd: []float64{0}}, 0)
		assert.True(t, apperrors.IsInvalidConfig(err))

		_, err = d.Decompose(DecomposeInput{Mu: []float64{0, 1}, SigmaSq: []float64{0.1}, EpistemicStd: []float64{0, 0}}, 1)
		assert.True(t, apperrors.IsInvalidConfig(err))

		_, err = d.Decompose(DecomposeInput{Mu: []float64{0}, SigmaSq: []float64{0.1}, EpistemicStd: []float64{0}, Truth: []float64{1, 2}}, 1)
		assert.True(t, apperrors.IsInvalidConfig(err))

		_, err = d.Decompose(DecomposeInput{Mu: []float64{0}, SigmaSq: []float64{-0.1}, EpistemicStd: []float64{0}}, 1)
		assert.True(t, apperrors.IsInvalidConfig(err))

		_, err = d.Decompose(DecomposeInput{}, 1)
		assert.True(t, apperrors.IsInvalidConfig(err))
	})

	t.Run("non-finite values", func(t *testing.T) {
		_, err := d.Decompose(DecomposeInput{Mu: []float64{math.NaN()}, SigmaSq: []float64{0.1}, EpistemicStd: []float64{0}}, 1)
		assert.True(t, apperrors.IsNumericInstability(err))

		_, err = d.Decompose(DecomposeInput{Mu: []float64{1000}, SigmaSq: []float64{0.1}, EpistemicStd: []float64{0}}, 1)
		assert.True(t, apperrors.IsNumericInstability(err))
	})
}

func TestDecomposeOutliers(t *testing.T) {
	d := newTestDecomposer(t)
	in := DecomposeInput{
		Mu:           []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7},
		SigmaSq:      []float64{0.5, 0.01, 0.01, 0.01, 0.01, 0.01, 0.01, 0.5},
		EpistemicStd: make([]float64, 8),
	}

	t.Run("predicted price", func(t *testing.T) {
		report, err := d.Decompose(in, 1)
		require.NoError(t, err)

		assert.Equal(t, domain.OutlierLabel, report.Outliers.Label)
		assert.Equal(t, []int{7}, report.Outliers.Indices)
		assert.True(t, report.Records[7].Flagged(domain.OutlierLabel))
		// expensive but well predicted
		assert.False(t, report.Records[6].Flagged(domain.OutlierLabel))
		// noisy but cheap
		assert.False(t, report.Records[0].Flagged(domain.OutlierLabel))
	})

	t.Run("actual price takes precedence", func(t *testing.T) {
		withTruth := in
		withTruth.Truth = []float64{2, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0}
		report, err := d.Decompose(withTruth, 1)
		require.NoError(t, err)

		assert.Equal(t, []int{0}, report.Outliers.Indices)
		assert.False(t, report.Records[7].Flagged(domain.OutlierLabel))
		assert.InEpsilon(t, math.Exp(0.5), report.Outliers.PriceThreshold, 1e-12)
	})

	t.Run("uniform inputs flag nothing", func(t *testing.T) {
		report, err := d.Decompose(DecomposeInput{
			Mu:           []float64{1, 1, 1, 1},
			SigmaSq:      []float64{0.1, 0.1, 0.1, 0.1},
			EpistemicStd: []float64{0, 0, 0, 0},
		}, 1)
		require.NoError(t, err)
		assert.Empty(t, report.Outliers.Indices)
	})
}

func TestMostUncertain(t *testing.T) {
	d := newTestDecomposer(t)
	report, err := d.Decompose(DecomposeInput{
		Mu:           []float64{0, 0, 0, 0},
		SigmaSq:      []float64{0.04, 0.01, 0.09, 0.01},
		EpistemicStd: []float64{0, 0.05, 0, 0},
	}, 1)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 0}, MostUncertain(report, 2))
	assert.Equal(t, []int{2, 0, 1, 3}, MostUncertain(report, 10))
	assert.Empty(t, MostUncertain(report, 0))
}
