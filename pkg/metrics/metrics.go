// Package metrics provides Prometheus metrics instrumentation for vss-lib.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Manager manages all Prometheus metrics for vss-lib.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool

	// Emitter metrics
	emitTotal    *prometheus.CounterVec
	emitDuration *prometheus.HistogramVec

	// Service metrics
	signalsReceived *prometheus.CounterVec
	signalLastValue *prometheus.GaugeVec
	relayPublished  *prometheus.CounterVec
	relayFailures   *prometheus.CounterVec

	// HTTP metrics
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpConnections prometheus.Gauge
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Path    string

	// RuntimeCollectors registers the Go and process collectors. One-shot
	// emitter runs pushing to a gateway leave them off.
	RuntimeCollectors bool

	// Histogram bucket configurations
	EmitDurationBuckets []float64
	HTTPDurationBuckets []float64
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		Path:                "/metrics",
		RuntimeCollectors:   true,
		EmitDurationBuckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		HTTPDurationBuckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}
}

// NewManager creates a new metrics manager.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return &Manager{enabled: false}
	}

	registry := prometheus.NewRegistry()
	if cfg.RuntimeCollectors {
		registry.MustRegister(prometheus.NewGoCollector())
		registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}

	m := &Manager{
		registry: registry,
		enabled:  true,
	}

	m.initEmitterMetrics(cfg)
	m.initServiceMetrics()
	m.initHTTPMetrics(cfg)

	return m
}

// Enabled returns whether metrics collection is enabled.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Registry returns the underlying registry, nil when disabled.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Manager) Handler() http.Handler {
	if !m.enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Push sends the current registry contents to a Prometheus Pushgateway
// under job. It is meant for short-lived processes such as the emitter.
func (m *Manager) Push(ctx context.Context, url, job string) error {
	if !m.enabled || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}

// NoOpManager returns a no-op metrics manager for when metrics are disabled.
func NoOpManager() *Manager {
	return &Manager{enabled: false}
}
