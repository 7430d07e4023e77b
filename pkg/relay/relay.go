// Package relay fans accepted hardware readings out to downstream consumers.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/autosd-vss-mw/vss-lib/pkg/vss"
)

// Relay forwards one reading to a consumer.
type Relay interface {
	// Name identifies the relay in logs and metrics.
	Name() string

	// Publish forwards r. Implementations must be safe for concurrent use.
	Publish(ctx context.Context, r vss.Reading) error

	// Close releases the relay's resources. Publish after Close fails.
	Close() error

	// Healthy reports whether the relay can currently deliver.
	Healthy() bool
}

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("relay is closed")

// Multi publishes to every relay it holds.
type Multi struct {
	mu     sync.RWMutex
	relays []Relay
}

// NewMulti creates a Multi over relays. Nil entries are skipped.
func NewMulti(relays ...Relay) *Multi {
	m := &Multi{}
	for _, r := range relays {
		if r != nil {
			m.relays = append(m.relays, r)
		}
	}
	return m
}

// Add appends r.
func (m *Multi) Add(r Relay) {
	if r == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relays = append(m.relays, r)
}

// Name returns "multi".
func (m *Multi) Name() string {
	return "multi"
}

// Len returns the number of relays.
func (m *Multi) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.relays)
}

// Publish sends r to all relays, attempting each one even when an earlier
// relay fails. Failures are recorded per relay and joined.
func (m *Multi) Publish(ctx context.Context, r vss.Reading) error {
	m.mu.RLock()
	relays := append([]Relay(nil), m.relays...)
	m.mu.RUnlock()

	var errs []error
	for _, rl := range relays {
		if err := rl.Publish(ctx, r); err != nil {
			metricsRecorder().RecordRelayFailure(rl.Name())
			errs = append(errs, fmt.Errorf("%s relay: %w", rl.Name(), err))
			continue
		}
		metricsRecorder().RecordRelayPublished(rl.Name())
	}
	return errors.Join(errs...)
}

// Close closes all relays.
func (m *Multi) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, rl := range m.relays {
		if err := rl.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s relay: %w", rl.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Healthy reports true when every relay is healthy.
func (m *Multi) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rl := range m.relays {
		if !rl.Healthy() {
			return false
		}
	}
	return true
}

// Health returns the health of each relay by name.
func (m *Multi) Health() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]bool, len(m.relays))
	for _, rl := range m.relays {
		out[rl.Name()] = rl.Healthy()
	}
	return out
}
