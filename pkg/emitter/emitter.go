// Package emitter forwards a single hardware reading to the vehicle signal
// service over D-Bus.
//
// Each call to Emit opens its own private connection, makes exactly one
// EmitHardwareSignal call bounded by vss.CallTimeout and closes the
// connection again. Failures are reported, never retried.
package emitter

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/autosd-vss-mw/vss-lib/pkg/logger"
	"github.com/autosd-vss-mw/vss-lib/pkg/vss"
)

const (
	tracerName             = "vss-lib.emitter"
	spanEmitHardwareSignal = "vss.emit_hardware_signal"
)

// MetricsRecorder receives the outcome of every emission.
type MetricsRecorder interface {
	RecordEmit(stage, status string, duration time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RecordEmit(string, string, time.Duration) {}

// Emitter sends hardware readings to the vehicle signal service.
type Emitter struct {
	dialer  Dialer
	out     io.Writer
	errOut  io.Writer
	log     logger.Logger
	metrics MetricsRecorder
	timeout time.Duration
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithOutput sets the writers for the confirmation and diagnostic lines.
func WithOutput(out, errOut io.Writer) Option {
	return func(e *Emitter) {
		if out != nil {
			e.out = out
		}
		if errOut != nil {
			e.errOut = errOut
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Emitter) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Emitter) {
		if m != nil {
			e.metrics = m
		}
	}
}

// New creates an Emitter that connects through dialer.
func New(dialer Dialer, opts ...Option) *Emitter {
	e := &Emitter{
		dialer:  dialer,
		out:     os.Stdout,
		errOut:  os.Stderr,
		log:     logger.Global(),
		metrics: nopMetrics{},
		timeout: vss.CallTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Timeout returns the bound applied to one emission.
func (e *Emitter) Timeout() time.Duration {
	return e.timeout
}

// Emit forwards name and value to EmitHardwareSignal and blocks until the
// service answers or the timeout elapses.
//
// On success one confirmation line is written to the output writer. On
// failure one diagnostic line is written to the error writer and an *Error
// is returned; errors.Is(err, ErrEmitFailed) holds for every failure.
func (e *Emitter) Emit(ctx context.Context, name string, value float64) error {
	reading := vss.Reading{Name: name, Value: value}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanEmitHardwareSignal,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("vss.signal.name", name),
			attribute.Float64("vss.signal.value", value),
			attribute.String("rpc.system", "dbus"),
			attribute.String("rpc.service", vss.Interface),
			attribute.String("rpc.method", vss.MethodEmitHardwareSignal),
		),
	)
	defer span.End()

	start := time.Now()
	err := e.send(ctx, reading)
	duration := time.Since(start)

	if err != nil {
		stage := StageOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("vss.emit.stage", string(stage)))
		e.metrics.RecordEmit(string(stage), "failure", duration)
		e.log.DebugContext(ctx, "hardware signal not sent",
			"signal", name,
			"value", value,
			"stage", stage,
			"bus", e.dialer.String(),
			"error", err,
		)
		fmt.Fprintf(e.errOut, "Error: Could not send the signal. Details: %v\n", err)
		return err
	}

	e.metrics.RecordEmit(string(StageCall), "success", duration)
	e.log.DebugContext(ctx, "hardware signal sent",
		"signal", name,
		"value", value,
		"bus", e.dialer.String(),
		"duration_ms", duration.Milliseconds(),
	)
	fmt.Fprintf(e.out, "Hardware signal '%s' with value %f sent to D-Bus.\n", name, value)
	return nil
}

func (e *Emitter) send(ctx context.Context, reading vss.Reading) error {
	conn, err := e.dialer.Dial(ctx)
	if err != nil {
		return &Error{Stage: StageConnect, Bus: e.dialer.String(), Reading: reading, Err: err}
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			e.log.Debug("closing bus connection failed", "bus", e.dialer.String(), "error", cerr)
		}
	}()

	obj := conn.Object(vss.ServiceName, vss.ObjectPath)
	call := obj.CallWithContext(ctx, vss.EmitHardwareSignalMethod(), 0, reading.Name, reading.Value)
	if call.Err != nil {
		return &Error{Stage: StageCall, Bus: e.dialer.String(), Reading: reading, Err: call.Err}
	}
	return nil
}
