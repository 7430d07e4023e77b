package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func setTracingTestProvider(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return recorder
}

func tracedRouter(status int) http.Handler {
	r := chi.NewRouter()
	r.Use(Tracing("/health"))
	r.Get("/api/v1/signals/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func TestTracing_ContinuesInboundTraceContext(t *testing.T) {
	recorder := setTracingTestProvider(t)

	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		SpanID:     trace.SpanID{2, 2, 2, 2, 2, 2, 2, 2},
		TraceFlags: trace.FlagsSampled,
	})
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(trace.ContextWithSpanContext(context.Background(), parent), carrier)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals/Speed", nil)
	for k, v := range carrier {
		req.Header.Set(k, v)
	}
	tracedRouter(http.StatusOK).ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if got := spans[0].Parent().TraceID(); got != parent.TraceID() {
		t.Fatalf("continued trace id = %s, want %s", got, parent.TraceID())
	}
	if spans[0].Name() != "HTTP GET /api/v1/signals/{name}" {
		t.Errorf("span name = %q", spans[0].Name())
	}

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs["http.route"].AsString() != "/api/v1/signals/{name}" {
		t.Errorf("http.route = %v", attrs["http.route"].AsString())
	}
	if attrs["http.response.status_code"].AsInt64() != http.StatusOK {
		t.Errorf("status attribute = %v", attrs["http.response.status_code"].AsInt64())
	}
}

func TestTracing_ServerErrorMarksSpan(t *testing.T) {
	recorder := setTracingTestProvider(t)

	tracedRouter(http.StatusServiceUnavailable).ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodGet, "/api/v1/signals/Speed", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != otelcodes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status().Code)
	}
	if spans[0].Parent().IsValid() {
		t.Error("expected a root span without inbound headers")
	}
}

func TestTracing_SkipsConfiguredPaths(t *testing.T) {
	recorder := setTracingTestProvider(t)

	tracedRouter(http.StatusOK).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if n := len(recorder.Ended()); n != 0 {
		t.Errorf("expected no span for /health, got %d", n)
	}
}
