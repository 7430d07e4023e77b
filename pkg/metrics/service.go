package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initServiceMetrics() {
	m.signalsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vss_hardware_signals_received_total",
			Help: "Total number of hardware readings accepted by the service",
		},
		[]string{"signal"},
	)

	m.signalLastValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vss_signal_last_value",
			Help: "Last accepted value per signal",
		},
		[]string{"signal"},
	)

	m.relayPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vss_relay_published_total",
			Help: "Total number of readings delivered per relay",
		},
		[]string{"relay"},
	)

	m.relayFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vss_relay_failures_total",
			Help: "Total number of failed reading deliveries per relay",
		},
		[]string{"relay"},
	)

	m.registry.MustRegister(m.signalsReceived)
	m.registry.MustRegister(m.signalLastValue)
	m.registry.MustRegister(m.relayPublished)
	m.registry.MustRegister(m.relayFailures)
}

// RecordSignalReceived records an accepted hardware reading.
func (m *Manager) RecordSignalReceived(name string, value float64) {
	if !m.enabled {
		return
	}
	m.signalsReceived.WithLabelValues(name).Inc()
	m.signalLastValue.WithLabelValues(name).Set(value)
}

// RecordRelayPublished records a successful relay delivery.
func (m *Manager) RecordRelayPublished(relay string) {
	if !m.enabled {
		return
	}
	m.relayPublished.WithLabelValues(relay).Inc()
}

// RecordRelayFailure records a failed relay delivery.
func (m *Manager) RecordRelayFailure(relay string) {
	if !m.enabled {
		return
	}
	m.relayFailures.WithLabelValues(relay).Inc()
}
