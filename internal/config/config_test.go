package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, []int{64, 32}, cfg.Training.HiddenLayers)
	assert.Equal(t, 300, cfg.Training.MaxEpochs)
	assert.Equal(t, uint64(42), cfg.Training.RandomSeed)
	assert.Equal(t, 50, cfg.Uncertainty.EpistemicPasses)
	assert.Equal(t, 2*time.Hour, cfg.Worker.TrainTimeout)
	assert.Equal(t, "uncertainty_reports", cfg.Report.Prefix)
	assert.Equal(t, 100*time.Millisecond, cfg.Postgres.SlowQueryThreshold())
	assert.Equal(t, 500*time.Millisecond, cfg.ClickHouse.SlowQueryThreshold())
	assert.False(t, cfg.Sentry.Enabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("TRAINING_HIDDEN_LAYERS", "16, 8,4")
	t.Setenv("UNCERTAINTY_PRICE_SCALE", "1000")
	t.Setenv("WORKER_TRAIN_TIMEOUT", "15m")
	t.Setenv("SENTRY_DSN", "https://key@sentry.example.com/1")
	t.Setenv("CLICKHOUSE_SLOW_QUERY_MS", "2000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []int{16, 8, 4}, cfg.Training.HiddenLayers)
	assert.Equal(t, 1000.0, cfg.Uncertainty.PriceScale)
	assert.Equal(t, 15*time.Minute, cfg.Worker.TrainTimeout)
	assert.Equal(t, 2*time.Second, cfg.ClickHouse.SlowQueryThreshold())
	assert.True(t, cfg.Sentry.Enabled())
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"single hidden layer":  {"TRAINING_HIDDEN_LAYERS": "16"},
		"non-numeric layer":    {"TRAINING_HIDDEN_LAYERS": "16,wide"},
		"dropout of one":       {"TRAINING_DROPOUT_RATE": "1"},
		"one epistemic pass":   {"UNCERTAINTY_EPISTEMIC_PASSES": "1"},
		"zero price scale":     {"UNCERTAINTY_PRICE_SCALE": "0"},
		"unknown environment":  {"SERVER_ENV": "qa"},
		"unknown log format":   {"LOG_FORMAT": "xml"},
		"default jwt in prod":  {"SERVER_ENV": "production"},
		"percentile above one": {"UNCERTAINTY_PRICE_PERCENTILE": "1.5"},
		"negative slow query":  {"POSTGRES_SLOW_QUERY_MS": "-1"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestIntList(t *testing.T) {
	v := viper.New()
	v.Set("layers", []int{3, 2})
	got, err := intList(v, "layers")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, got)

	v.Set("layers", "5,,6")
	got, err = intList(v, "layers")
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6}, got)
}

func TestDSNAndAddr(t *testing.T) {
	pg := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "priceuq", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/priceuq?sslmode=disable", pg.DSN())

	assert.Equal(t, "cache:6379", RedisConfig{Host: "cache", Port: 6379}.Addr())
}
