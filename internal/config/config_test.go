package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/fpl-cohorts/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvConfigFile, "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 314, cfg.Sampling.LeagueID)
	assert.Equal(t, 50, cfg.Sampling.PageSize)
	assert.Equal(t, 8, cfg.Sampling.SamplesPerBand)
	assert.Equal(t, 500, cfg.Sampling.Cap)
	assert.Equal(t, 5, cfg.Sampling.Concurrency)
	assert.Equal(t, 5, cfg.Sampling.FDRHorizon)
	assert.Equal(t, 6*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 3*time.Hour, cfg.Cache.CompletedRecentTTL)
	assert.Equal(t, 2*time.Hour, cfg.Scheduler.SettleWindow)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.RetryDelay)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 3, cfg.Upstream.RetryMax)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)

	require.Len(t, cfg.Bands, 3)
	assert.Equal(t, "top10k", cfg.Bands[0].Key)
	assert.Equal(t, 100_000, cfg.Bands[2].MaxRank)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv("FPL_COHORTS_ADDR", ":9090")
	t.Setenv("FPL_COHORTS_LOG_LEVEL", "debug")
	t.Setenv("FPL_COHORTS_SAMPLING__SAMPLES_PER_BAND", "4")
	t.Setenv("FPL_COHORTS_CACHE__TTL", "90m")
	t.Setenv("FPL_COHORTS_STORAGE__BACKEND", "s3")
	t.Setenv("FPL_COHORTS_STORAGE__S3__BUCKET", "fpl-archive")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4, cfg.Sampling.SamplesPerBand)
	assert.Equal(t, 90*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, BackendS3, cfg.Storage.Backend)
	assert.Equal(t, "fpl-archive", cfg.Storage.S3.Bucket)
	assert.Equal(t, "us-east-1", cfg.Storage.S3.Region, "unset nested keys keep their default")
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
addr: ":7070"
sampling:
  league_id: 999
  cap: 200
scheduler:
  settle_window: 1h
bands:
  - key: top1k
    label: Top 1k
    max_rank: 1000
`)
	t.Setenv(EnvConfigFile, path)
	t.Setenv("FPL_COHORTS_SAMPLING__CAP", "300")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, 999, cfg.Sampling.LeagueID)
	assert.Equal(t, 300, cfg.Sampling.Cap, "env wins over the file")
	assert.Equal(t, time.Hour, cfg.Scheduler.SettleWindow)
	require.Len(t, cfg.Bands, 1)
	assert.Equal(t, "top1k", cfg.Bands[0].Key)
	assert.Equal(t, 1000, cfg.Bands[0].MaxRank)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv("FPL_COHORTS_STORAGE__BACKEND", "postgres")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "postgres_dsn")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero page size", func(c *Config) { c.Sampling.PageSize = 0 }, "page_size"},
		{"negative rps", func(c *Config) { c.Upstream.RequestsPerSecond = -1 }, "rps"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "ftp" }, "storage.backend"},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = BackendS3 }, "bucket"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"duplicate band", func(c *Config) {
			c.Bands = append(c.Bands, c.Bands[0])
		}, "duplicate band"},
		{"disabled scheduler skips its checks", func(c *Config) {
			c.Scheduler.Enabled = false
			c.Scheduler.PollInterval = 0
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Bands = []model.Band{{Key: "top10k", MaxRank: 10_000}}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPolicies(t *testing.T) {
	cfg := Default()

	rp := cfg.RetryPolicy()
	assert.Equal(t, 3, rp.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, rp.InitialInterval)

	cp := cfg.CachePolicy()
	assert.Equal(t, 6*time.Hour, cp.TTL)
	assert.Equal(t, 3*time.Hour, cp.CompletedRecentTTL)

	so := cfg.SamplerOptions()
	assert.Equal(t, 314, so.LeagueID)
	assert.Equal(t, 500, so.Cap)
}
