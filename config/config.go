// Package config provides configuration management for vss-lib processes.
package config

import (
	"fmt"
	"time"
)

// Config is the configuration shared by the signal emitter and the vehicle
// signal service.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Bus selects the D-Bus message bus to connect to.
	Bus BusConfig `mapstructure:"bus"`

	// Emitter holds the defaults of the one-shot signal emitter.
	Emitter EmitterConfig `mapstructure:"emitter"`

	// Service is the vehicle signal service configuration.
	Service ServiceConfig `mapstructure:"service"`

	// Redis is the optional Redis relay for accepted readings.
	Redis RedisConfig `mapstructure:"redis"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Metrics is the Prometheus configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the OpenTelemetry configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name, used as the tracing service name.
	Name string `mapstructure:"name" validate:"required"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"env"`

	// Debug forces debug logging.
	Debug bool `mapstructure:"debug"`
}

// BusConfig selects the message bus.
type BusConfig struct {
	// Type is the bus to dial: system, session or address.
	Type string `mapstructure:"type" validate:"oneof=system session address"`

	// Address is the D-Bus address used when Type is "address",
	// e.g. unix:path=/run/dbus/system_bus_socket.
	Address string `mapstructure:"address"`
}

// EmitterConfig holds the reading sent when no flags are given.
type EmitterConfig struct {
	// SignalName is the default signal label.
	SignalName string `mapstructure:"signal_name" validate:"required"`

	// Value is the default signal value.
	Value float64 `mapstructure:"value"`
}

// ServiceConfig holds the vehicle signal service settings.
type ServiceConfig struct {
	// Storage is where the last reading per signal is kept.
	Storage StorageConfig `mapstructure:"storage"`

	// HTTP is the read-only HTTP API.
	HTTP HTTPConfig `mapstructure:"http"`

	// RateLimit throttles EmitHardwareSignal calls per bus sender.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig holds per-sender throttling settings.
type RateLimitConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	PerSecond float64 `mapstructure:"per_second" validate:"min=0"`
	Burst     int     `mapstructure:"burst" validate:"min=0"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// Type is the storage backend (memory, badger).
	Type string `mapstructure:"type" validate:"oneof=memory badger"`

	// Badger is the BadgerDB configuration.
	Badger BadgerConfig `mapstructure:"badger"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	Path              string `mapstructure:"path"`
	SyncWrites        bool   `mapstructure:"sync_writes"`
	ValueLogFileSize  int64  `mapstructure:"value_log_file_size" validate:"min=0"`
	NumVersionsToKeep int    `mapstructure:"num_versions_to_keep" validate:"min=0"`
}

// HTTPConfig holds HTTP API settings.
type HTTPConfig struct {
	// Enabled starts the HTTP API.
	Enabled bool `mapstructure:"enabled"`

	// Host is the bind address.
	Host string `mapstructure:"host"`

	// Port is the listen port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Stream configures the WebSocket feed at /api/v1/signals/stream.
	Stream StreamConfig `mapstructure:"stream"`
}

// StreamConfig configures the WebSocket reading stream.
type StreamConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// MaxConnections caps concurrent stream clients.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// AllowedOrigins lists cross-origin pages allowed to connect. "*" allows any.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	PingInterval time.Duration `mapstructure:"ping_interval"`
}

// Addr returns host:port.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// RedisConfig holds the Redis relay settings.
type RedisConfig struct {
	// Enabled turns on publishing of accepted readings to Redis Pub/Sub.
	Enabled bool `mapstructure:"enabled"`

	// Address is the Redis server address.
	Address string `mapstructure:"address"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db" validate:"min=0"`

	// ChannelPrefix is prepended to the signal name to form the channel.
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path on the service HTTP API.
	Path string `mapstructure:"path"`

	// Pushgateway is the Pushgateway URL one-shot runs push to. Empty disables pushing.
	Pushgateway string `mapstructure:"pushgateway" validate:"omitempty,url"`

	// Job is the Pushgateway job name.
	Job string `mapstructure:"job"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	// Enabled enables tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the span exporter (otlpgrpc).
	Exporter string `mapstructure:"exporter" validate:"oneof=otlpgrpc"`

	// Endpoint is the collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Insecure disables TLS towards the collector.
	Insecure bool `mapstructure:"insecure"`

	// Headers are sent with every export request.
	Headers map[string]string `mapstructure:"headers"`

	// Timeout bounds a single export.
	Timeout time.Duration `mapstructure:"timeout"`

	// Sampler is one of always_on, always_off, ratio.
	Sampler string `mapstructure:"sampler" validate:"oneof=always_on always_off ratio"`

	// SampleRate is the fraction of traces sampled by the ratio sampler.
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	return ValidateWithDetails(c)
}

// String returns a short description of the configuration without credentials.
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Env: %s, Bus: %s, Storage: %s, Redis: %t}",
		c.App.Name, c.App.Environment, c.Bus.Type, c.Service.Storage.Type, c.Redis.Enabled)
}
