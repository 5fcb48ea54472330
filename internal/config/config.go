// Package config provides configuration loading and management for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/yourorg/fpl-cohorts/internal/cache"
	"github.com/yourorg/fpl-cohorts/internal/fetch"
	"github.com/yourorg/fpl-cohorts/internal/model"
	"github.com/yourorg/fpl-cohorts/internal/retry"
	"github.com/yourorg/fpl-cohorts/internal/sampler"
	"github.com/yourorg/fpl-cohorts/internal/storage/s3store"
)

// Environment variables read by Load.
const (
	EnvPrefix     = "FPL_COHORTS_"
	EnvConfigFile = "FPL_COHORTS_CONFIG"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendS3       = "s3"
	BackendPostgres = "postgres"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `koanf:"addr"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
	// LogFile enables rotated file output in addition to stdout.
	LogFile       string `koanf:"log_file"`
	LogMaxAgeDays int    `koanf:"log_max_age_days"`

	// OtelEndpoint is the OTLP HTTP collector; empty disables tracing.
	OtelEndpoint string `koanf:"otel_endpoint"`
	OtelInsecure bool   `koanf:"otel_insecure"`

	// AdminRPS throttles the forced compute endpoint.
	AdminRPS   float64 `koanf:"admin_rps"`
	AdminBurst int     `koanf:"admin_burst"`

	Upstream  UpstreamConfig  `koanf:"upstream"`
	Sampling  SamplingConfig  `koanf:"sampling"`
	Cache     CacheConfig     `koanf:"cache"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Storage   StorageConfig   `koanf:"storage"`

	// Bands defaults to model.DefaultBands when empty.
	Bands []model.Band `koanf:"bands"`
}

// UpstreamConfig tunes the FPL API client.
type UpstreamConfig struct {
	BaseURL   string        `koanf:"base_url"`
	UserAgent string        `koanf:"user_agent"`
	Timeout   time.Duration `koanf:"timeout"`

	RetryMax          int           `koanf:"retry_max"`
	RetryWaitMin      time.Duration `koanf:"retry_wait_min"`
	RetryWaitMax      time.Duration `koanf:"retry_wait_max"`
	RequestsPerSecond float64       `koanf:"rps"`
	Burst             int           `koanf:"burst"`

	BreakerThreshold int           `koanf:"breaker_threshold"`
	BreakerReset     time.Duration `koanf:"breaker_reset"`

	ReferenceTTL time.Duration `koanf:"reference_ttl"`
}

// SamplingConfig controls which entries are sampled and how they are fetched.
type SamplingConfig struct {
	LeagueID       int `koanf:"league_id"`
	PageSize       int `koanf:"page_size"`
	SamplesPerBand int `koanf:"samples_per_band"`
	Cap            int `koanf:"cap"`
	Concurrency    int `koanf:"concurrency"`
	FDRHorizon     int `koanf:"fdr_horizon"`
}

// CacheConfig sets the in-memory freshness windows.
type CacheConfig struct {
	TTL                time.Duration `koanf:"ttl"`
	CompletedRecentTTL time.Duration `koanf:"completed_recent_ttl"`
}

// SchedulerConfig drives automatic computation of completed gameweeks.
type SchedulerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	PollInterval time.Duration `koanf:"poll_interval"`
	SettleWindow time.Duration `koanf:"settle_window"`
	RetryDelay   time.Duration `koanf:"retry_delay"`
}

// StorageConfig selects the cold storage backend.
type StorageConfig struct {
	Backend     string         `koanf:"backend"`
	S3          s3store.Config `koanf:"s3"`
	PostgresDSN string         `koanf:"postgres_dsn"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr:          ":8080",
		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxAgeDays: 7,
		AdminRPS:      0.2,
		AdminBurst:    1,
		Upstream: UpstreamConfig{
			BaseURL:           fetch.DefaultBaseURL,
			UserAgent:         "fpl-cohorts/1.0",
			Timeout:           10 * time.Second,
			RetryMax:          3,
			RetryWaitMin:      500 * time.Millisecond,
			RetryWaitMax:      3 * time.Second,
			RequestsPerSecond: 10,
			Burst:             10,
			BreakerThreshold:  10,
			BreakerReset:      30 * time.Second,
			ReferenceTTL:      10 * time.Minute,
		},
		Sampling: SamplingConfig{
			LeagueID:       sampler.DefaultLeagueID,
			PageSize:       sampler.DefaultPageSize,
			SamplesPerBand: sampler.DefaultSamplesPerBand,
			Cap:            sampler.DefaultCap,
			Concurrency:    5,
			FDRHorizon:     5,
		},
		Cache: CacheConfig{
			TTL:                cache.DefaultTTL,
			CompletedRecentTTL: cache.CompletedRecentTTL,
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			PollInterval: 15 * time.Minute,
			SettleWindow: 2 * time.Hour,
			RetryDelay:   30 * time.Minute,
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
			S3:      s3store.Config{Region: "us-east-1", Prefix: "cohorts/fpl"},
		},
	}
}

// Load builds a Config by layering defaults, an optional YAML file named by
// FPL_COHORTS_CONFIG, and FPL_COHORTS_* environment variables. Nested keys
// use a double underscore: FPL_COHORTS_STORAGE__S3__BUCKET.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Bands) == 0 {
		cfg.Bands = model.DefaultBands()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Addr != "", "addr must not be empty")
	check(c.LogFormat == "json" || c.LogFormat == "text", "log_format must be json or text, got %q", c.LogFormat)

	check(c.Upstream.BaseURL != "", "upstream.base_url must not be empty")
	check(c.Upstream.Timeout > 0, "upstream.timeout must be positive")
	check(c.Upstream.RetryMax >= 1, "upstream.retry_max must be at least 1")
	check(c.Upstream.RequestsPerSecond >= 0, "upstream.rps must not be negative")

	check(c.Sampling.LeagueID > 0, "sampling.league_id must be positive")
	check(c.Sampling.PageSize > 0, "sampling.page_size must be positive")
	check(c.Sampling.SamplesPerBand > 0, "sampling.samples_per_band must be positive")
	check(c.Sampling.Cap > 0, "sampling.cap must be positive")
	check(c.Sampling.Concurrency > 0, "sampling.concurrency must be positive")
	check(c.Sampling.FDRHorizon > 0, "sampling.fdr_horizon must be positive")

	check(c.Cache.TTL > 0, "cache.ttl must be positive")
	check(c.Cache.CompletedRecentTTL > 0, "cache.completed_recent_ttl must be positive")

	if c.Scheduler.Enabled {
		check(c.Scheduler.PollInterval > 0, "scheduler.poll_interval must be positive")
		check(c.Scheduler.SettleWindow >= 0, "scheduler.settle_window must not be negative")
		check(c.Scheduler.RetryDelay > 0, "scheduler.retry_delay must be positive")
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendS3:
		check(c.Storage.S3.Bucket != "", "storage.s3.bucket is required for the s3 backend")
	case BackendPostgres:
		check(c.Storage.PostgresDSN != "", "storage.postgres_dsn is required for the postgres backend")
	default:
		check(false, "unknown storage.backend %q", c.Storage.Backend)
	}

	keys := make(map[string]bool, len(c.Bands))
	for _, b := range c.Bands {
		check(b.Key != "", "band key must not be empty")
		check(b.MaxRank > 0, "band %s: max_rank must be positive", b.Key)
		check(!keys[b.Key], "duplicate band %s", b.Key)
		keys[b.Key] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// RetryPolicy maps the upstream retry settings.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     c.Upstream.RetryMax,
		InitialInterval: c.Upstream.RetryWaitMin,
		MaxInterval:     c.Upstream.RetryWaitMax,
		Multiplier:      2,
	}
}

// CachePolicy maps the cache settings.
func (c *Config) CachePolicy() cache.Policy {
	return cache.Policy{TTL: c.Cache.TTL, CompletedRecentTTL: c.Cache.CompletedRecentTTL}
}

// SamplerOptions maps the sampling settings.
func (c *Config) SamplerOptions() sampler.Options {
	return sampler.Options{
		LeagueID:       c.Sampling.LeagueID,
		PageSize:       c.Sampling.PageSize,
		SamplesPerBand: c.Sampling.SamplesPerBand,
		Cap:            c.Sampling.Cap,
	}
}
