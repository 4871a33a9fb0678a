package model

import (
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
)

// Config holds the hyperparameters of a DualHeadRegressor
type Config struct {
	HiddenLayers          []int   `json:"hiddenLayers"`
	LearningRate          float64 `json:"learningRate"`
	MaxEpochs             int     `json:"maxEpochs"`
	EarlyStoppingPatience int     `json:"earlyStoppingPatience"`
	DropoutRate           float64 `json:"dropoutRate"`
	RandomSeed            uint64  `json:"randomSeed"`
	BatchSize             int     `json:"batchSize"`
	NLLEpsilon            float64 `json:"nllEpsilon"`
	BatchNormMomentum     float64 `json:"batchNormMomentum"`
}

// DefaultConfig returns the default training configuration
func DefaultConfig() Config {
	return Config{
		HiddenLayers:          []int{64, 32},
		LearningRate:          0.001,
		MaxEpochs:             300,
		EarlyStoppingPatience: 15,
		DropoutRate:           0.2,
		RandomSeed:            42,
		BatchSize:             64,
		NLLEpsilon:            1e-6,
		BatchNormMomentum:     0.1,
	}
}

// Validate rejects configurations the regressor cannot train with. Values are
// never clamped.
func (c Config) Validate() error {
	if len(c.HiddenLayers) < 2 {
		return apperrors.InvalidConfig("need at least 2 hidden layers, got %d", len(c.HiddenLayers))
	}
	for i, w := range c.HiddenLayers {
		if w <= 0 {
			return apperrors.InvalidConfig("hidden layer %d has width %d", i, w)
		}
	}
	if !(c.LearningRate > 0) {
		return apperrors.InvalidConfig("learning_rate must be positive, got %v", c.LearningRate)
	}
	if c.MaxEpochs <= 0 {
		return apperrors.InvalidConfig("max_epochs must be positive, got %d", c.MaxEpochs)
	}
	if c.EarlyStoppingPatience <= 0 {
		return apperrors.InvalidConfig("early_stopping_patience must be positive, got %d", c.EarlyStoppingPatience)
	}
	if !(c.DropoutRate >= 0 && c.DropoutRate < 1) {
		return apperrors.InvalidConfig("dropout_rate must be in [0,1), got %v", c.DropoutRate)
	}
	if c.BatchSize < 2 {
		return apperrors.InvalidConfig("batch_size must be at least 2, got %d", c.BatchSize)
	}
	if !(c.NLLEpsilon > 0) {
		return apperrors.InvalidConfig("nll_epsilon must be positive, got %v", c.NLLEpsilon)
	}
	if !(c.BatchNormMomentum > 0 && c.BatchNormMomentum <= 1) {
		return apperrors.InvalidConfig("batch_norm_momentum must be in (0,1], got %v", c.BatchNormMomentum)
	}
	return nil
}
