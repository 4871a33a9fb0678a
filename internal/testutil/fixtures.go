package testutil

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/estately/priceuq/internal/domain"
)

// LinearCoefficients are the generating weights used by LinearFrame.
var LinearCoefficients = []float64{0.5, -0.3, 0.2}

// LinearIntercept is the generating intercept used by LinearFrame (log price).
const LinearIntercept = 12.0

// LinearSchema names the features produced by LinearFrame.
var LinearSchema = domain.FeatureSchema{"sqft_z", "age_z", "affluence_z"}

// LinearFrame draws n samples with standard normal features and targets
// LinearIntercept + x.LinearCoefficients + N(0, noiseVar). It also returns the
// noise-free means.
func LinearFrame(n int, noiseVar float64, seed uint64) (domain.FeatureFrame, []float64) {
	rng := rand.New(rand.NewPCG(seed, 1))
	rows := make([][]float64, n)
	targets := make([]float64, n)
	means := make([]float64, n)
	noiseStd := math.Sqrt(noiseVar)
	for i := 0; i < n; i++ {
		row := make([]float64, len(LinearCoefficients))
		mean := LinearIntercept
		for j, c := range LinearCoefficients {
			row[j] = rng.NormFloat64()
			mean += c * row[j]
		}
		rows[i] = row
		means[i] = mean
		targets[i] = mean + noiseStd*rng.NormFloat64()
	}
	frame, err := domain.NewFeatureFrame(LinearSchema, rows, targets)
	if err != nil {
		panic(err)
	}
	return frame, means
}

// HeteroscedasticStd is the label noise standard deviation HeteroscedasticFrame
// uses for a row. It grows with the first feature, so expensive homes are
// also the hardest to price.
func HeteroscedasticStd(row []float64) float64 {
	return 0.05 * math.Exp(0.6*row[0])
}

// HeteroscedasticFrame is LinearFrame with noise of HeteroscedasticStd per
// row instead of a constant variance.
func HeteroscedasticFrame(n int, seed uint64) (domain.FeatureFrame, []float64) {
	rng := rand.New(rand.NewPCG(seed, 2))
	rows := make([][]float64, n)
	targets := make([]float64, n)
	means := make([]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, len(LinearCoefficients))
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		rows[i] = row
		means[i] = LinearMean(row)
		targets[i] = means[i] + HeteroscedasticStd(row)*rng.NormFloat64()
	}
	frame, err := domain.NewFeatureFrame(LinearSchema, rows, targets)
	if err != nil {
		panic(err)
	}
	return frame, means
}

// LinearMean is the noise-free log price of row.
func LinearMean(row []float64) float64 {
	mean := LinearIntercept
	for j, c := range LinearCoefficients {
		mean += c * row[j]
	}
	return mean
}

// NewTestRun creates a completed training run with default values.
func NewTestRun() *domain.TrainingRun {
	now := time.Now().UTC()
	id := uuid.New()
	return &domain.TrainingRun{
		ID:          id,
		Name:        "test-run",
		Status:      domain.RunStatusCompleted,
		Features:    []string(LinearSchema),
		DatasetKey:  "datasets/" + id.String() + ".json",
		DatasetHash: "0123456789abcdef",
		SnapshotKey: "models/" + id.String() + "/snapshot.json",
		Config: domain.RunConfig{
			LearningRate:          0.001,
			MaxEpochs:             300,
			EarlyStoppingPatience: 15,
			DropoutRate:           0.2,
			RandomSeed:            42,
			HiddenLayers:          []int{64, 32},
			BatchSize:             64,
			ValidationFraction:    0.2,
			EpistemicPasses:       50,
			NLLEpsilon:            1e-6,
			PriceScale:            1,
		},
		CreatedAt:   now,
		UpdatedAt:   now,
		CompletedAt: &now,
	}
}
