package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "openai/gpt-oss-120b", cfg.OpenRouter.Model)
	assert.Equal(t, "pattern", cfg.Detector.Default)
	assert.Equal(t, 10*time.Second, cfg.Detector.Timeout)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "data/piiguard.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 4, cfg.Benchmark.Workers)
	assert.Equal(t, "zero_fn", cfg.Benchmark.PassMode)
	assert.False(t, cfg.TurnLog.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MASTER_KEY", "secret")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("DETECTOR_DEFAULT", "zeroshot")
	t.Setenv("DETECTOR_ZEROSHOT_URL", "http://localhost:8500")
	t.Setenv("DETECTOR_TIMEOUT", "2s")
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("SESSION_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("BENCHMARK_WORKERS", "8")
	t.Setenv("TURNLOG_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.MasterKey)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "zeroshot", cfg.Detector.Default)
	assert.Equal(t, "http://localhost:8500", cfg.Detector.ZeroShotURL)
	assert.Equal(t, 2*time.Second, cfg.Detector.Timeout)
	assert.Equal(t, "redis", cfg.Session.Backend)
	assert.Equal(t, 8, cfg.Benchmark.Workers)
	assert.True(t, cfg.TurnLog.Enabled)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("BENCHMARK_WORKERS", "not-a-number")
	t.Setenv("DETECTOR_TIMEOUT", "soon")
	t.Setenv("TURNLOG_ENABLED", "maybe")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Benchmark.Workers)
	assert.Equal(t, 10*time.Second, cfg.Detector.Timeout)
	assert.False(t, cfg.TurnLog.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown detector",
			mutate:  func(c *Config) { c.Detector.Default = "regex" },
			wantErr: "DETECTOR_DEFAULT",
		},
		{
			name: "zeroshot without url",
			mutate: func(c *Config) {
				c.Detector.Default = "zeroshot"
				c.Detector.ZeroShotURL = ""
			},
			wantErr: "DETECTOR_ZEROSHOT_URL",
		},
		{
			name:    "unknown session backend",
			mutate:  func(c *Config) { c.Session.Backend = "memcached" },
			wantErr: "SESSION_BACKEND",
		},
		{
			name: "redis without url",
			mutate: func(c *Config) {
				c.Session.Backend = "redis"
				c.Session.RedisURL = ""
			},
			wantErr: "SESSION_REDIS_URL",
		},
		{
			name:    "unknown storage type",
			mutate:  func(c *Config) { c.Storage.Type = "dynamo" },
			wantErr: "STORAGE_TYPE",
		},
		{
			name: "postgres without url",
			mutate: func(c *Config) {
				c.Storage.Type = "postgresql"
				c.Storage.PostgresURL = ""
			},
			wantErr: "STORAGE_POSTGRES_URL",
		},
		{
			name:    "unknown pass mode",
			mutate:  func(c *Config) { c.Benchmark.PassMode = "strict" },
			wantErr: "BENCHMARK_PASS_MODE",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Benchmark.Workers = 0 },
			wantErr: "BENCHMARK_WORKERS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
