package uncertainty

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/estately/priceuq/internal/domain"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
)

const (
	// IntervalZ is the half-width multiplier of the reported 95% interval.
	IntervalZ = 1.96
	// CoverageTarget is the nominal coverage of the reported interval.
	CoverageTarget = 0.95
)

// CalibrationLevels are the nominal levels reported in the calibration table.
var CalibrationLevels = []float64{0.5, 0.8, 0.9, 0.95, 0.99}

// LogNormalMean is the expected price when log(price/scale) ~ N(mu, v).
func LogNormalMean(mu, v, scale float64) float64 {
	return scale * math.Exp(mu+v/2)
}

// LogNormalStd is the price standard deviation when log(price/scale) ~ N(mu, v):
//
//	scale * sqrt((exp(v)-1) * exp(2*mu+v))
func LogNormalStd(mu, v, scale float64) float64 {
	return scale * math.Sqrt(math.Expm1(v)*math.Exp(2*mu+v))
}

// DecomposerConfig holds the outlier percentiles
type DecomposerConfig struct {
	PricePercentile     float64
	AleatoricPercentile float64
}

// DefaultDecomposerConfig flags the top quartile on both axes
func DefaultDecomposerConfig() DecomposerConfig {
	return DecomposerConfig{PricePercentile: 0.75, AleatoricPercentile: 0.75}
}

// Decomposer turns log-scale model outputs into currency-scale uncertainty.
type Decomposer struct {
	cfg DecomposerConfig
}

// NewDecomposer validates the percentiles
func NewDecomposer(cfg DecomposerConfig) (*Decomposer, error) {
	if !(cfg.PricePercentile > 0 && cfg.PricePercentile < 1) {
		return nil, apperrors.InvalidConfig("price percentile must be in (0,1), got %v", cfg.PricePercentile)
	}
	if !(cfg.AleatoricPercentile > 0 && cfg.AleatoricPercentile < 1) {
		return nil, apperrors.InvalidConfig("aleatoric percentile must be in (0,1), got %v", cfg.AleatoricPercentile)
	}
	return &Decomposer{cfg: cfg}, nil
}

// DecomposeInput carries per-sample model outputs. Truth is optional and on
// the log scale of the training target.
type DecomposeInput struct {
	Mu           []float64
	SigmaSq      []float64
	EpistemicStd []float64
	Truth        []float64
}

func (in DecomposeInput) validate() error {
	n := len(in.Mu)
	if n == 0 {
		return apperrors.InvalidConfig("nothing to decompose")
	}
	if len(in.SigmaSq) != n || len(in.EpistemicStd) != n {
		return apperrors.InvalidConfig("length mismatch: %d mu, %d sigma_sq, %d epistemic_std", n, len(in.SigmaSq), len(in.EpistemicStd))
	}
	if in.Truth != nil && len(in.Truth) != n {
		return apperrors.InvalidConfig("length mismatch: %d mu, %d truth", n, len(in.Truth))
	}
	for i := 0; i < n; i++ {
		if in.SigmaSq[i] < 0 || in.EpistemicStd[i] < 0 {
			return apperrors.InvalidConfig("negative variance at sample %d", i)
		}
		if !isFinite(in.Mu[i]) || !isFinite(in.SigmaSq[i]) || !isFinite(in.EpistemicStd[i]) {
			return apperrors.NumericInstability("non-finite model output at sample %d", i).
				WithDetail("sample", fmt.Sprint(i))
		}
	}
	return nil
}

// Decompose computes currency-scale aleatoric, epistemic and total std per
// sample using the exact log-normal back-transform, then the 95% interval
// coverage (when truth is given) and the unpredictable-high-value flags.
func (d *Decomposer) Decompose(in DecomposeInput, priceScale float64) (domain.UncertaintyReport, error) {
	if !(priceScale > 0) || math.IsInf(priceScale, 0) {
		return domain.UncertaintyReport{}, apperrors.InvalidConfig("price scale must be positive, got %v", priceScale)
	}
	if err := in.validate(); err != nil {
		return domain.UncertaintyReport{}, err
	}

	n := len(in.Mu)
	records := make([]domain.PredictionRecord, n)
	var sumA, sumE, sumT, sumShare float64
	shareCount := 0
	for i := 0; i < n; i++ {
		mu, s, e := in.Mu[i], in.SigmaSq[i], in.EpistemicStd[i]
		r := domain.PredictionRecord{
			Index:             i,
			Mu:                mu,
			SigmaSq:           s,
			EpistemicStd:      e,
			PredictedPrice:    LogNormalMean(mu, s, priceScale),
			AleatoricStdPrice: LogNormalStd(mu, s, priceScale),
			EpistemicStdPrice: LogNormalStd(mu, e*e, priceScale),
		}
		r.TotalStdPrice = math.Hypot(r.AleatoricStdPrice, r.EpistemicStdPrice)
		r.IntervalLower = r.PredictedPrice - IntervalZ*r.TotalStdPrice
		r.IntervalUpper = r.PredictedPrice + IntervalZ*r.TotalStdPrice
		if !isFinite(r.PredictedPrice) || !isFinite(r.TotalStdPrice) {
			return domain.UncertaintyReport{}, apperrors.NumericInstability("back-transform overflowed at sample %d", i).
				WithDetail("sample", fmt.Sprint(i))
		}
		if in.Truth != nil {
			actual := priceScale * math.Exp(in.Truth[i])
			inside := actual >= r.IntervalLower && actual <= r.IntervalUpper
			r.ActualPrice = &actual
			r.WithinInterval = &inside
		}

		sumA += r.AleatoricStdPrice
		sumE += r.EpistemicStdPrice
		sumT += r.TotalStdPrice
		if tv := r.TotalStdPrice * r.TotalStdPrice; tv > 0 {
			sumShare += r.AleatoricStdPrice * r.AleatoricStdPrice / tv
			shareCount++
		}
		records[i] = r
	}

	report := domain.UncertaintyReport{
		PriceScale: priceScale,
		Records:    records,
		Summary: domain.UncertaintySummary{
			MeanAleatoricStd: sumA / float64(n),
			MeanEpistemicStd: sumE / float64(n),
			MeanTotalStd:     sumT / float64(n),
		},
	}
	if shareCount > 0 {
		report.Summary.AleatoricShare = sumShare / float64(shareCount)
	}

	if in.Truth != nil {
		cov := coverage(records)
		report.Coverage = &cov
		report.Calibration = calibration(records)
	}
	report.Outliers = d.flagOutliers(records)
	return report, nil
}

func coverage(records []domain.PredictionRecord) domain.CoverageReport {
	c := domain.CoverageReport{Target: CoverageTarget, Samples: len(records)}
	for _, r := range records {
		if r.WithinInterval != nil && *r.WithinInterval {
			c.Covered++
		}
	}
	c.Observed = float64(c.Covered) / float64(c.Samples)
	return c
}

func calibration(records []domain.PredictionRecord) []domain.CalibrationPoint {
	points := make([]domain.CalibrationPoint, 0, len(CalibrationLevels))
	for _, level := range CalibrationLevels {
		z := distuv.UnitNormal.Quantile(0.5 + level/2)
		covered := 0
		for _, r := range records {
			half := z * r.TotalStdPrice
			if a := *r.ActualPrice; a >= r.PredictedPrice-half && a <= r.PredictedPrice+half {
				covered++
			}
		}
		points = append(points, domain.CalibrationPoint{
			Nominal:  level,
			Z:        z,
			Observed: float64(covered) / float64(len(records)),
		})
	}
	return points
}

// flagOutliers marks samples above both empirical percentile thresholds.
// Price is the actual price when known, the predicted price otherwise.
func (d *Decomposer) flagOutliers(records []domain.PredictionRecord) domain.OutlierSummary {
	n := len(records)
	prices := make([]float64, n)
	aleatoric := make([]float64, n)
	for i, r := range records {
		prices[i] = r.PredictedPrice
		if r.ActualPrice != nil {
			prices[i] = *r.ActualPrice
		}
		aleatoric[i] = r.AleatoricStdPrice
	}

	summary := domain.OutlierSummary{
		Label:               domain.OutlierLabel,
		PricePercentile:     d.cfg.PricePercentile,
		AleatoricPercentile: d.cfg.AleatoricPercentile,
		PriceThreshold:      empiricalQuantile(d.cfg.PricePercentile, prices),
		AleatoricThreshold:  empiricalQuantile(d.cfg.AleatoricPercentile, aleatoric),
		Indices:             []int{},
	}
	for i := range records {
		if prices[i] > summary.PriceThreshold && aleatoric[i] > summary.AleatoricThreshold {
			records[i].Flags = append(records[i].Flags, domain.OutlierLabel)
			summary.Indices = append(summary.Indices, i)
		}
	}
	return summary
}

func empiricalQuantile(p float64, values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// MostUncertain returns the indices of the k records with the largest total
// std, largest first.
func MostUncertain(report domain.UncertaintyReport, k int) []int {
	idx := make([]int, len(report.Records))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return report.Records[idx[a]].TotalStdPrice > report.Records[idx[b]].TotalStdPrice
	})
	if k < len(idx) {
		idx = idx[:max(k, 0)]
	}
	return idx
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
