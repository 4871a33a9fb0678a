package testutil

import (
	"github.com/estately/priceuq/internal/config"
)

// TestConfig returns a configuration sized for fast tests: tiny networks,
// few epochs and few sampling passes.
func TestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Env: "test", Version: "test", BodyLimitMB: 4},
		JWT:    config.JWTConfig{Secret: "test-secret", Issuer: "priceuq-test"},
		Log:    config.LogConfig{Level: "error", Format: "console"},
		Training: config.TrainingConfig{
			LearningRate:          0.01,
			MaxEpochs:             8,
			EarlyStoppingPatience: 4,
			DropoutRate:           0.1,
			RandomSeed:            7,
			HiddenLayers:          []int{8, 8},
			BatchSize:             16,
			ValidationFraction:    0.25,
			BatchNormMomentum:     0.1,
		},
		Uncertainty: config.UncertaintyConfig{
			EpistemicPasses:     6,
			NLLEpsilon:          1e-6,
			PriceScale:          1,
			PricePercentile:     0.75,
			AleatoricPercentile: 0.75,
			Workers:             2,
		},
		Attribution: config.AttributionConfig{
			NCoalitionSamples:    20,
			BackgroundSampleSize: 16,
			EpistemicPasses:      4,
			MaxQueries:           5,
			Workers:              2,
		},
		Report: config.ReportConfig{Prefix: "uncertainty_reports", TopUncertain: 3},
	}
}
