package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 500*time.Millisecond, cfg.Engine.BaseRetryDelay)
	assert.Equal(t, 16, cfg.Engine.MaxConcurrentSteps)
	assert.Equal(t, 256, cfg.Executor.QueueCapacity)
	assert.Equal(t, 2, cfg.Executor.MaxRetries)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.NoError(t, cfg.Validate())
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
engine:
  base_retry_delay: 250ms
  max_concurrent_steps: 4
executor:
  queue_capacity: 32
  rate_limit: 10.5
log:
  level: debug
  format: console
telemetry:
  enabled: true
  otlp_endpoint: collector:4317
  service_name: pipeline-test
  sample_rate: 0.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Engine.BaseRetryDelay)
	assert.Equal(t, 4, cfg.Engine.MaxConcurrentSteps)
	assert.Equal(t, 32, cfg.Executor.QueueCapacity)
	assert.Equal(t, 10.5, cfg.Executor.RateLimit)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, "pipeline-test", cfg.Telemetry.ServiceName)
	assert.Equal(t, 0.5, cfg.Telemetry.SampleRate)

	// Unspecified fields keep their defaults.
	assert.Equal(t, 2, cfg.Executor.MaxRetries)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).
		Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: [not a map"), 0o600))

	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Environment overrides
// ---------------------------------------------------------------------------

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AGENTDAG_ENGINE_MAX_CONCURRENT_STEPS", "8")
	t.Setenv("AGENTDAG_ENGINE_BASE_RETRY_DELAY", "1s")
	t.Setenv("AGENTDAG_EXECUTOR_RATE_LIMIT", "2.5")
	t.Setenv("AGENTDAG_LOG_LEVEL", "warn")
	t.Setenv("AGENTDAG_LOG_OUTPUT_PATHS", "stdout, stderr")
	t.Setenv("AGENTDAG_METRICS_ENABLED", "false")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Engine.MaxConcurrentSteps)
	assert.Equal(t, time.Second, cfg.Engine.BaseRetryDelay)
	assert.Equal(t, 2.5, cfg.Executor.RateLimit)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, []string{"stdout", "stderr"}, cfg.Log.OutputPaths)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))
	t.Setenv("AGENTDAG_LOG_LEVEL", "error")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestCustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_LOG_LEVEL", "debug")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestEnvInvalidValue(t *testing.T) {
	t.Setenv("AGENTDAG_ENGINE_MAX_CONCURRENT_STEPS", "many")

	_, err := NewLoader().Load()
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		wantOK bool
	}{
		{"defaults pass", func(c *Config) {}, true},
		{"zero concurrency", func(c *Config) { c.Engine.MaxConcurrentSteps = 0 }, false},
		{"negative retry delay", func(c *Config) { c.Engine.BaseRetryDelay = -time.Second }, false},
		{"zero queue capacity", func(c *Config) { c.Executor.QueueCapacity = 0 }, false},
		{"negative max retries", func(c *Config) { c.Executor.MaxRetries = -1 }, false},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, false},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, false},
		{"telemetry without endpoint", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.OTLPEndpoint = ""
		}, false},
		{"telemetry bad sample rate", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.SampleRate = 1.5
		}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestCustomValidator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			return assert.AnError
		}).
		Load()
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Logger
// ---------------------------------------------------------------------------

func TestNewLogger(t *testing.T) {
	logger := NewLogger(DefaultLogConfig())
	require.NotNil(t, logger)
	logger.Info("logger built")

	console := NewLogger(LogConfig{Level: "debug", Format: "console"})
	require.NotNil(t, console)
}
