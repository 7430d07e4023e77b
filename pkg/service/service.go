// Package service implements the receiving end of the vehicle signal
// interface: the object exported at vss.ObjectPath that accepts
// EmitHardwareSignal calls from hardware emitters.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/godbus/dbus/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/autosd-vss-mw/vss-lib/pkg/logger"
	"github.com/autosd-vss-mw/vss-lib/pkg/relay"
	"github.com/autosd-vss-mw/vss-lib/pkg/storage"
	"github.com/autosd-vss-mw/vss-lib/pkg/vss"
)

const (
	tracerName     = "vss-lib.service"
	spanHandleEmit = "vss.handle_hardware_signal"

	// ErrInvalidArgs is the D-Bus error name returned for malformed readings.
	ErrInvalidArgs = "org.freedesktop.DBus.Error.InvalidArgs"

	defaultRelayTimeout = 2 * time.Second
)

// MetricsRecorder receives accepted readings.
type MetricsRecorder interface {
	RecordSignalReceived(name string, value float64)
}

type nopMetrics struct{}

func (nopMetrics) RecordSignalReceived(string, float64) {}

// VehicleSignals is exported on the bus under vss.Interface. Its exported
// methods form the D-Bus interface, so it carries no other public methods.
type VehicleSignals struct {
	store        storage.Store
	relay        relay.Relay
	log          logger.Logger
	metrics      MetricsRecorder
	relayTimeout time.Duration
	limiter      *RateLimiter
	now          func() time.Time
}

// Option configures VehicleSignals.
type Option func(*VehicleSignals)

// WithRelay sets the relay accepted readings are forwarded to.
func WithRelay(r relay.Relay) Option {
	return func(v *VehicleSignals) {
		if r != nil {
			v.relay = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(v *VehicleSignals) {
		if l != nil {
			v.log = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(v *VehicleSignals) {
		if m != nil {
			v.metrics = m
		}
	}
}

// WithRelayTimeout bounds the time spent forwarding one reading.
func WithRelayTimeout(d time.Duration) Option {
	return func(v *VehicleSignals) {
		if d > 0 {
			v.relayTimeout = d
		}
	}
}

// WithRateLimiter throttles calls per sender. Nil disables throttling.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(v *VehicleSignals) {
		v.limiter = rl
	}
}

// New creates the vehicle signals object backed by store.
func New(store storage.Store, opts ...Option) *VehicleSignals {
	v := &VehicleSignals{
		store:        store,
		relay:        relay.NewMulti(),
		log:          logger.Global(),
		metrics:      nopMetrics{},
		relayTimeout: defaultRelayTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// EmitHardwareSignal accepts one hardware reading. The bus fills in sender;
// it is not part of the method signature seen by callers.
func (v *VehicleSignals) EmitHardwareSignal(sender dbus.Sender, name string, value float64) *dbus.Error {
	ctx, span := otel.Tracer(tracerName).Start(context.Background(), spanHandleEmit,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("vss.signal.name", name),
			attribute.Float64("vss.signal.value", value),
			attribute.String("rpc.system", "dbus"),
			attribute.String("rpc.service", vss.Interface),
			attribute.String("rpc.method", vss.MethodEmitHardwareSignal),
			attribute.String("dbus.sender", string(sender)),
		),
	)
	defer span.End()

	if v.limiter != nil {
		if ok, retry := v.limiter.Allow(string(sender)); !ok {
			span.SetStatus(codes.Error, "rate limit exceeded")
			v.log.WarnContext(ctx, "throttled hardware signal",
				"sender", string(sender), "signal", name, "retry_after", retry)
			return dbus.NewError(ErrLimitsExceeded, []interface{}{
				fmt.Sprintf("rate limit exceeded, retry after %s", retry),
			})
		}
	}

	if err := v.accept(ctx, name, value); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		var invalid *invalidReadingError
		if errors.As(err, &invalid) {
			return dbus.NewError(ErrInvalidArgs, []interface{}{invalid.Error()})
		}
		return dbus.MakeFailedError(err)
	}
	return nil
}

func (v *VehicleSignals) accept(ctx context.Context, name string, value float64) error {
	if name == "" {
		v.log.WarnContext(ctx, "rejected hardware signal with empty name", "value", value)
		return &invalidReadingError{reason: "signal name cannot be empty"}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		v.log.WarnContext(ctx, "rejected non-finite hardware signal", "signal", name)
		return &invalidReadingError{reason: fmt.Sprintf("signal value must be finite, got %v", value)}
	}

	if err := v.store.Put(ctx, &storage.Reading{Name: name, Value: value, ReceivedAt: v.now()}); err != nil {
		v.log.ErrorContext(ctx, "failed to store hardware signal", "signal", name, "error", err)
		return fmt.Errorf("store %s: %w", name, err)
	}
	v.metrics.RecordSignalReceived(name, value)
	v.log.InfoContext(ctx, "hardware signal received", "signal", name, "value", value)

	relayCtx, cancel := context.WithTimeout(ctx, v.relayTimeout)
	defer cancel()
	if err := v.relay.Publish(relayCtx, vss.Reading{Name: name, Value: value}); err != nil {
		// The reading is stored; a failed fan-out does not fail the call.
		v.log.WarnContext(ctx, "failed to relay hardware signal", "signal", name, "error", err)
	}
	return nil
}

type invalidReadingError struct {
	reason string
}

func (e *invalidReadingError) Error() string {
	return e.reason
}
