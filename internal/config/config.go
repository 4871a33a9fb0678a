package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig
	Postgres    PostgresConfig
	ClickHouse  ClickHouseConfig
	Redis       RedisConfig
	MinIO       MinIOConfig
	JWT         JWTConfig
	Sentry      SentryConfig
	Worker      WorkerConfig
	Log         LogConfig
	Training    TrainingConfig
	Uncertainty UncertaintyConfig
	Attribution AttributionConfig
	Report      ReportConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port" validate:"gt=0,lt=65536"`
	Env     string `mapstructure:"env" validate:"oneof=development staging production test"`
	Version string `mapstructure:"version"`
	// BodyLimitMB caps request bodies; datasets arrive inline as JSON.
	BodyLimitMB        int    `mapstructure:"body_limit_mb" validate:"gt=0"`
	CORSOrigins        string `mapstructure:"cors_origins"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute" validate:"gte=0"`
}

// PostgresConfig holds PostgreSQL configuration
type PostgresConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	Database    string `mapstructure:"database"`
	SSLMode     string `mapstructure:"ssl_mode"`
	MaxConns    int32  `mapstructure:"max_conns"`
	MinConns    int32  `mapstructure:"min_conns"`
	SlowQueryMs int    `mapstructure:"slow_query_ms" validate:"gte=0"`
}

// SlowQueryThreshold is the latency above which a query is logged and
// counted as slow
func (c PostgresConfig) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryMs) * time.Millisecond
}

// DSN returns the PostgreSQL connection string
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		c.User, c.Password, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), c.Database, c.SSLMode)
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	Database    string `mapstructure:"database"`
	SlowQueryMs int    `mapstructure:"slow_query_ms" validate:"gte=0"`
}

// SlowQueryThreshold returns SlowQueryMs as a duration
func (c ClickHouseConfig) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryMs) * time.Millisecond
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MinIOConfig holds MinIO configuration
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket" validate:"required"`
}

// JWTConfig holds operator token configuration
type JWTConfig struct {
	Secret string `mapstructure:"secret" validate:"required"`
	Issuer string `mapstructure:"issuer"`
}

// SentryConfig holds error reporting configuration
type SentryConfig struct {
	DSN              string  `mapstructure:"dsn"`
	SampleRate       float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate" validate:"gte=0,lte=1"`
}

// Enabled reports whether a DSN is configured
func (c SentryConfig) Enabled() bool {
	return c.DSN != ""
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	Concurrency      int           `mapstructure:"concurrency" validate:"gt=0"`
	QueueCritical    string        `mapstructure:"queue_critical"`
	QueueDefault     string        `mapstructure:"queue_default"`
	QueueLow         string        `mapstructure:"queue_low"`
	TrainTimeout     time.Duration `mapstructure:"train_timeout"`
	ExplainTimeout   time.Duration `mapstructure:"explain_timeout"`
	ReportExportCron string        `mapstructure:"report_export_cron"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// TrainingConfig holds DualHeadRegressor hyperparameters
type TrainingConfig struct {
	LearningRate          float64 `mapstructure:"learning_rate" json:"learning_rate" validate:"gt=0"`
	MaxEpochs             int     `mapstructure:"max_epochs" json:"max_epochs" validate:"gt=0"`
	EarlyStoppingPatience int     `mapstructure:"early_stopping_patience" json:"early_stopping_patience" validate:"gt=0"`
	DropoutRate           float64 `mapstructure:"dropout_rate" json:"dropout_rate" validate:"gte=0,lt=1"`
	RandomSeed            uint64  `mapstructure:"random_seed" json:"random_seed"`
	HiddenLayers          []int   `mapstructure:"hidden_layers" json:"hidden_layers" validate:"min=2,dive,gt=0"`
	BatchSize             int     `mapstructure:"batch_size" json:"batch_size" validate:"gte=2"`
	ValidationFraction    float64 `mapstructure:"validation_fraction" json:"validation_fraction" validate:"gt=0,lt=1"`
	BatchNormMomentum     float64 `mapstructure:"batch_norm_momentum" json:"batch_norm_momentum" validate:"gt=0,lte=1"`
}

// UncertaintyConfig holds epistemic and decomposition settings
type UncertaintyConfig struct {
	EpistemicPasses     int     `mapstructure:"epistemic_passes" json:"epistemic_passes" validate:"gte=2"`
	NLLEpsilon          float64 `mapstructure:"nll_epsilon" json:"nll_epsilon" validate:"gt=0"`
	PriceScale          float64 `mapstructure:"price_scale" json:"price_scale" validate:"gt=0"`
	PricePercentile     float64 `mapstructure:"price_percentile" json:"price_percentile" validate:"gt=0,lt=1"`
	AleatoricPercentile float64 `mapstructure:"aleatoric_percentile" json:"aleatoric_percentile" validate:"gt=0,lt=1"`
	Workers             int     `mapstructure:"workers" json:"workers" validate:"gt=0"`
}

// AttributionConfig holds sampling Shapley settings. EpistemicPasses caps the
// passes used per coalition evaluation independently of reporting.
type AttributionConfig struct {
	NCoalitionSamples    int `mapstructure:"n_coalition_samples" json:"n_coalition_samples" validate:"gt=0"`
	BackgroundSampleSize int `mapstructure:"background_sample_size" json:"background_sample_size" validate:"gt=0"`
	EpistemicPasses      int `mapstructure:"epistemic_passes" json:"epistemic_passes" validate:"gte=2"`
	MaxQueries           int `mapstructure:"max_queries" json:"max_queries" validate:"gt=0"`
	Workers              int `mapstructure:"workers" json:"workers" validate:"gt=0"`
}

// ReportConfig holds report export settings
type ReportConfig struct {
	Prefix       string `mapstructure:"prefix"`
	TopUncertain int    `mapstructure:"top_uncertain" validate:"gte=0"`
}

// IsDevelopment returns true if running in development mode
func (c Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode
func (c Config) IsProduction() bool {
	return c.Server.Env == "production"
}
