package config

import "time"

// DefaultConfig returns the configuration used when no file or
// environment overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Engine:    DefaultEngineConfig(),
		Executor:  DefaultExecutorConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultEngineConfig returns the pipeline defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BaseRetryDelay:     500 * time.Millisecond,
		MaxConcurrentSteps: 16,
	}
}

// DefaultExecutorConfig returns the task executor defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		QueueCapacity:  256,
		MaxRetries:     2,
		BaseRetryDelay: 200 * time.Millisecond,
		RateLimit:      0,
		RateBurst:      1,
	}
}

// DefaultLogConfig returns the logging defaults.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: true,
	}
}

// DefaultMetricsConfig returns the metrics defaults.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enabled: true}
}

// DefaultTelemetryConfig returns the telemetry defaults. Telemetry is
// off by default so the engine never dials out unless asked to.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentdag",
		SampleRate:   0.1,
	}
}
