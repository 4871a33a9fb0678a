package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/estately/priceuq/internal/validator"
)

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/priceuq")

	// A missing config file is fine; env and defaults cover everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Server
	cfg.Server.Host = v.GetString("server_host")
	cfg.Server.Port = v.GetInt("server_port")
	cfg.Server.Env = v.GetString("server_env")
	cfg.Server.Version = v.GetString("server_version")
	cfg.Server.BodyLimitMB = v.GetInt("server_body_limit_mb")
	cfg.Server.CORSOrigins = v.GetString("server_cors_origins")
	cfg.Server.RateLimitPerMinute = v.GetInt("server_rate_limit_per_minute")

	// PostgreSQL
	cfg.Postgres.Host = v.GetString("postgres_host")
	cfg.Postgres.Port = v.GetInt("postgres_port")
	cfg.Postgres.User = v.GetString("postgres_user")
	cfg.Postgres.Password = v.GetString("postgres_password")
	cfg.Postgres.Database = v.GetString("postgres_db")
	cfg.Postgres.SSLMode = v.GetString("postgres_ssl_mode")
	cfg.Postgres.MaxConns = v.GetInt32("postgres_max_conns")
	cfg.Postgres.MinConns = v.GetInt32("postgres_min_conns")
	cfg.Postgres.SlowQueryMs = v.GetInt("postgres_slow_query_ms")

	// ClickHouse
	cfg.ClickHouse.Host = v.GetString("clickhouse_host")
	cfg.ClickHouse.Port = v.GetInt("clickhouse_port")
	cfg.ClickHouse.User = v.GetString("clickhouse_user")
	cfg.ClickHouse.Password = v.GetString("clickhouse_password")
	cfg.ClickHouse.Database = v.GetString("clickhouse_db")
	cfg.ClickHouse.SlowQueryMs = v.GetInt("clickhouse_slow_query_ms")

	// Redis
	cfg.Redis.Host = v.GetString("redis_host")
	cfg.Redis.Port = v.GetInt("redis_port")
	cfg.Redis.Password = v.GetString("redis_password")
	cfg.Redis.DB = v.GetInt("redis_db")

	// MinIO
	cfg.MinIO.Endpoint = v.GetString("minio_endpoint")
	cfg.MinIO.AccessKey = v.GetString("minio_access_key")
	cfg.MinIO.SecretKey = v.GetString("minio_secret_key")
	cfg.MinIO.UseSSL = v.GetBool("minio_use_ssl")
	cfg.MinIO.Bucket = v.GetString("minio_bucket")

	// JWT
	cfg.JWT.Secret = v.GetString("jwt_secret")
	cfg.JWT.Issuer = v.GetString("jwt_issuer")

	// Sentry
	cfg.Sentry.DSN = v.GetString("sentry_dsn")
	cfg.Sentry.SampleRate = v.GetFloat64("sentry_sample_rate")
	cfg.Sentry.TracesSampleRate = v.GetFloat64("sentry_traces_sample_rate")

	// Worker
	cfg.Worker.Concurrency = v.GetInt("worker_concurrency")
	cfg.Worker.QueueCritical = v.GetString("worker_queue_critical")
	cfg.Worker.QueueDefault = v.GetString("worker_queue_default")
	cfg.Worker.QueueLow = v.GetString("worker_queue_low")
	cfg.Worker.TrainTimeout = v.GetDuration("worker_train_timeout")
	cfg.Worker.ExplainTimeout = v.GetDuration("worker_explain_timeout")
	cfg.Worker.ReportExportCron = v.GetString("worker_report_export_cron")

	// Logging
	cfg.Log.Level = v.GetString("log_level")
	cfg.Log.Format = v.GetString("log_format")

	// Training
	cfg.Training.LearningRate = v.GetFloat64("training_learning_rate")
	cfg.Training.MaxEpochs = v.GetInt("training_max_epochs")
	cfg.Training.EarlyStoppingPatience = v.GetInt("training_early_stopping_patience")
	cfg.Training.DropoutRate = v.GetFloat64("training_dropout_rate")
	cfg.Training.RandomSeed = v.GetUint64("training_random_seed")
	cfg.Training.BatchSize = v.GetInt("training_batch_size")
	cfg.Training.ValidationFraction = v.GetFloat64("training_validation_fraction")
	cfg.Training.BatchNormMomentum = v.GetFloat64("training_batch_norm_momentum")
	layers, err := intList(v, "training_hidden_layers")
	if err != nil {
		return nil, err
	}
	cfg.Training.HiddenLayers = layers

	// Uncertainty
	cfg.Uncertainty.EpistemicPasses = v.GetInt("uncertainty_epistemic_passes")
	cfg.Uncertainty.NLLEpsilon = v.GetFloat64("uncertainty_nll_epsilon")
	cfg.Uncertainty.PriceScale = v.GetFloat64("uncertainty_price_scale")
	cfg.Uncertainty.PricePercentile = v.GetFloat64("uncertainty_price_percentile")
	cfg.Uncertainty.AleatoricPercentile = v.GetFloat64("uncertainty_aleatoric_percentile")
	cfg.Uncertainty.Workers = v.GetInt("uncertainty_workers")

	// Attribution
	cfg.Attribution.NCoalitionSamples = v.GetInt("attribution_n_coalition_samples")
	cfg.Attribution.BackgroundSampleSize = v.GetInt("attribution_background_sample_size")
	cfg.Attribution.EpistemicPasses = v.GetInt("attribution_epistemic_passes")
	cfg.Attribution.MaxQueries = v.GetInt("attribution_max_queries")
	cfg.Attribution.Workers = v.GetInt("attribution_workers")

	// Report
	cfg.Report.Prefix = v.GetString("report_prefix")
	cfg.Report.TopUncertain = v.GetInt("report_top_uncertain")

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 8080)
	v.SetDefault("server_env", "development")
	v.SetDefault("server_version", "dev")
	v.SetDefault("server_body_limit_mb", 64)
	v.SetDefault("server_cors_origins", "*")
	v.SetDefault("server_rate_limit_per_minute", 60)

	// PostgreSQL defaults
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "priceuq")
	v.SetDefault("postgres_password", "priceuq")
	v.SetDefault("postgres_db", "priceuq")
	v.SetDefault("postgres_ssl_mode", "disable")
	v.SetDefault("postgres_max_conns", 10)
	v.SetDefault("postgres_min_conns", 2)
	v.SetDefault("postgres_slow_query_ms", 100)

	// ClickHouse defaults
	v.SetDefault("clickhouse_host", "localhost")
	v.SetDefault("clickhouse_port", 9000)
	v.SetDefault("clickhouse_user", "priceuq")
	v.SetDefault("clickhouse_password", "priceuq")
	v.SetDefault("clickhouse_db", "priceuq")
	v.SetDefault("clickhouse_slow_query_ms", 500)

	// Redis defaults
	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", 6379)
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	// MinIO defaults
	v.SetDefault("minio_endpoint", "localhost:9000")
	v.SetDefault("minio_access_key", "priceuq")
	v.SetDefault("minio_secret_key", "priceuq123")
	v.SetDefault("minio_use_ssl", false)
	v.SetDefault("minio_bucket", "priceuq-artifacts")

	// JWT defaults
	v.SetDefault("jwt_secret", "change-me-in-production")
	v.SetDefault("jwt_issuer", "priceuq")

	// Sentry defaults
	v.SetDefault("sentry_dsn", "")
	v.SetDefault("sentry_sample_rate", 1.0)
	v.SetDefault("sentry_traces_sample_rate", 0.1)

	// Worker defaults
	v.SetDefault("worker_concurrency", 4)
	v.SetDefault("worker_queue_critical", "critical")
	v.SetDefault("worker_queue_default", "default")
	v.SetDefault("worker_queue_low", "low")
	v.SetDefault("worker_train_timeout", 2*time.Hour)
	v.SetDefault("worker_explain_timeout", 30*time.Minute)
	v.SetDefault("worker_report_export_cron", "30 2 * * *")

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	// Training defaults
	v.SetDefault("training_learning_rate", 0.001)
	v.SetDefault("training_max_epochs", 300)
	v.SetDefault("training_early_stopping_patience", 15)
	v.SetDefault("training_dropout_rate", 0.2)
	v.SetDefault("training_random_seed", 42)
	v.SetDefault("training_hidden_layers", []int{64, 32})
	v.SetDefault("training_batch_size", 64)
	v.SetDefault("training_validation_fraction", 0.2)
	v.SetDefault("training_batch_norm_momentum", 0.1)

	// Uncertainty defaults
	v.SetDefault("uncertainty_epistemic_passes", 50)
	v.SetDefault("uncertainty_nll_epsilon", 1e-6)
	v.SetDefault("uncertainty_price_scale", 1.0)
	v.SetDefault("uncertainty_price_percentile", 0.75)
	v.SetDefault("uncertainty_aleatoric_percentile", 0.75)
	v.SetDefault("uncertainty_workers", 4)

	// Attribution defaults
	v.SetDefault("attribution_n_coalition_samples", 200)
	v.SetDefault("attribution_background_sample_size", 100)
	v.SetDefault("attribution_epistemic_passes", 10)
	v.SetDefault("attribution_max_queries", 50)
	v.SetDefault("attribution_workers", 4)

	// Report defaults
	v.SetDefault("report_prefix", "uncertainty_reports")
	v.SetDefault("report_top_uncertain", 10)
}

// intList reads a list of ints that may arrive as a comma separated env value.
func intList(v *viper.Viper, key string) ([]int, error) {
	raw, ok := v.Get(key).(string)
	if !ok {
		return v.GetIntSlice(key), nil
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %q: %w", key, part, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func validate(cfg *Config) error {
	if cfg.JWT.Secret == "change-me-in-production" && cfg.IsProduction() {
		return fmt.Errorf("JWT secret must be changed in production")
	}
	if err := validator.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
