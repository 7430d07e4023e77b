package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "vss-lib",
			Environment: "development",
		},
		Bus: BusConfig{
			Type: "system",
		},
		Emitter: EmitterConfig{
			SignalName: "Speed",
			Value:      80.0,
		},
		Service: ServiceConfig{
			Storage: StorageConfig{
				Type: "memory",
				Badger: BadgerConfig{
					Path:              "/var/lib/vss-lib/signals",
					SyncWrites:        true,
					ValueLogFileSize:  64 << 20,
					NumVersionsToKeep: 1,
				},
			},
			HTTP: HTTPConfig{
				Enabled:         true,
				Host:            "127.0.0.1",
				Port:            8086,
				ReadTimeout:     10 * time.Second,
				WriteTimeout:    10 * time.Second,
				IdleTimeout:     60 * time.Second,
				ShutdownTimeout: 10 * time.Second,
				Stream: StreamConfig{
					Enabled:        true,
					MaxConnections: 100,
					PingInterval:   30 * time.Second,
				},
			},
			RateLimit: RateLimitConfig{
				Enabled:   false,
				PerSecond: 50,
				Burst:     100,
			},
		},
		Redis: RedisConfig{
			Enabled:       false,
			Address:       "localhost:6379",
			ChannelPrefix: "vss:signal:",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Job:     "vss_signal_emitter",
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlpgrpc",
			Endpoint:   "localhost:4317",
			Insecure:   true,
			Timeout:    5 * time.Second,
			Sampler:    "ratio",
			SampleRate: 0.1,
		},
	}
}
