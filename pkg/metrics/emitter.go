package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initEmitterMetrics(cfg Config) {
	m.emitTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vss_emit_total",
			Help: "Total number of EmitHardwareSignal attempts by stage reached and outcome",
		},
		[]string{"stage", "status"},
	)

	m.emitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vss_emit_duration_seconds",
			Help:    "EmitHardwareSignal duration in seconds, connection included",
			Buckets: cfg.EmitDurationBuckets,
		},
		[]string{"status"},
	)

	m.registry.MustRegister(m.emitTotal)
	m.registry.MustRegister(m.emitDuration)
}

// RecordEmit records one emission attempt.
func (m *Manager) RecordEmit(stage, status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.emitTotal.WithLabelValues(stage, status).Inc()
	m.emitDuration.WithLabelValues(status).Observe(duration.Seconds())
}
