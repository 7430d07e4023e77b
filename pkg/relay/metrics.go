package relay

import "sync"

// MetricsRecorder defines metrics hooks for relay deliveries.
type MetricsRecorder interface {
	RecordRelayPublished(relay string)
	RecordRelayFailure(relay string)
}

type nopMetrics struct{}

func (n *nopMetrics) RecordRelayPublished(relay string) {}
func (n *nopMetrics) RecordRelayFailure(relay string)   {}

var (
	metricsMu sync.RWMutex
	metrics   MetricsRecorder = &nopMetrics{}
)

// SetMetricsRecorder sets the package-level relay metrics recorder.
func SetMetricsRecorder(recorder MetricsRecorder) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if recorder == nil {
		metrics = &nopMetrics{}
		return
	}
	metrics = recorder
}

func metricsRecorder() MetricsRecorder {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return metrics
}
