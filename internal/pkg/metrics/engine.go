package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	trainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "priceuq_training_runs_total",
			Help: "Training runs by final status",
		},
		[]string{"status"},
	)

	trainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "priceuq_training_duration_seconds",
			Help:    "Wall time of a training run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	trainingEpochs = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "priceuq_training_epochs",
			Help:    "Epochs run before stopping",
			Buckets: []float64{5, 10, 20, 40, 80, 160, 300},
		},
	)

	validationLoss = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "priceuq_training_best_validation_loss",
			Help: "Best validation loss of the most recent run",
		},
	)

	inferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "priceuq_inference_duration_seconds",
			Help:    "Time spent per inference stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	inferenceSamples = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "priceuq_inference_samples_total",
			Help: "Samples scored with uncertainty",
		},
	)

	intervalCoverage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "priceuq_interval_coverage_ratio",
			Help: "Observed 95% interval coverage of the most recent labelled batch",
		},
	)

	outliersFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "priceuq_outliers_flagged_total",
			Help: "Samples flagged unpredictable-high-value",
		},
	)

	attributionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "priceuq_attribution_duration_seconds",
			Help:    "Time to explain a batch of queries",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"target"},
	)

	attributionQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "priceuq_attribution_queries_total",
			Help: "Queries explained",
		},
		[]string{"target"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "priceuq_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)
)

// RecordTrainingRun records the outcome of a training run
func RecordTrainingRun(status string, duration time.Duration, epochs int, bestValLoss float64) {
	trainingRuns.WithLabelValues(status).Inc()
	if status != "completed" {
		return
	}
	trainingDuration.Observe(duration.Seconds())
	trainingEpochs.Observe(float64(epochs))
	validationLoss.Set(bestValLoss)
}

// RecordInferenceStage records the time of one inference stage
// (predict, epistemic, decompose)
func RecordInferenceStage(stage string, duration time.Duration) {
	inferenceDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordInferenceBatch records samples scored, outliers and, when known,
// observed coverage
func RecordInferenceBatch(samples, outliers int, coverage *float64) {
	inferenceSamples.Add(float64(samples))
	outliersFlagged.Add(float64(outliers))
	if coverage != nil {
		intervalCoverage.Set(*coverage)
	}
}

// RecordAttribution records an explanation batch
func RecordAttribution(target string, queries int, duration time.Duration) {
	attributionDuration.WithLabelValues(target).Observe(duration.Seconds())
	attributionQueries.WithLabelValues(target).Add(float64(queries))
}

// RecordBreakerState records a circuit breaker transition
func RecordBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}
