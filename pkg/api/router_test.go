package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autosd-vss-mw/vss-lib/config"
	"github.com/autosd-vss-mw/vss-lib/pkg/api/handlers"
	"github.com/autosd-vss-mw/vss-lib/pkg/api/middleware"
	"github.com/autosd-vss-mw/vss-lib/pkg/api/response"
	"github.com/autosd-vss-mw/vss-lib/pkg/logger"
	"github.com/autosd-vss-mw/vss-lib/pkg/metrics"
	"github.com/autosd-vss-mw/vss-lib/pkg/relay"
	"github.com/autosd-vss-mw/vss-lib/pkg/storage"
	"github.com/autosd-vss-mw/vss-lib/pkg/storage/memory"
	"github.com/autosd-vss-mw/vss-lib/pkg/vss"
)

func newTestRouter(t *testing.T) (http.Handler, *metrics.Manager) {
	t.Helper()
	cfg := config.DefaultConfig()
	store := memory.NewStore()
	require.NoError(t, store.Put(context.Background(), &storage.Reading{Name: "Speed", Value: 80}))

	m := metrics.NewManager(metrics.DefaultConfig())
	h := &Handlers{
		Health:         handlers.NewHealthHandler(store, nil, "test"),
		Signals:        handlers.NewSignalHandler(store, logger.Nop()),
		Metrics:        m,
		MetricsHandler: m.Handler(),
	}
	return NewRouter(cfg, logger.Nop(), h), m
}

func TestRouter_Routes(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/v1/signals", http.StatusOK},
		{http.MethodGet, "/api/v1/signals/Speed", http.StatusOK},
		{http.MethodGet, "/api/v1/signals/Gear", http.StatusNotFound},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/v1/workflows", http.StatusNotFound},
		{http.MethodPost, "/api/v1/signals/Speed", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		})
	}
}

func TestRouter_ErrorBodyCarriesRequestID(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-77")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	var resp response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "req-77", resp.Error.RequestID)
	assert.Equal(t, response.ErrCodeNotFound, resp.Error.Code)
}

func TestRouter_RecordsHTTPMetrics(t *testing.T) {
	router, _ := newTestRouter(t)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/signals/Speed", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `http_requests_total{method="GET",path="/api/v1/signals/{name}",status="200"} 1`), body)
}

func TestRouter_MetricsDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Metrics.Enabled = false
	h := &Handlers{MetricsHandler: metrics.NoOpManager().Handler()}

	w := httptest.NewRecorder()
	NewRouter(cfg, logger.Nop(), h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_StreamUpgradesThroughMiddleware(t *testing.T) {
	cfg := config.DefaultConfig()
	hub := relay.NewWebSocket(logger.Nop(), relay.WebSocketConfig{})
	defer hub.Close()

	m := metrics.NewManager(metrics.DefaultConfig())
	h := &Handlers{
		Signals: handlers.NewSignalHandler(memory.NewStore(), logger.Nop()),
		Stream:  hub,
		Metrics: m,
	}
	server := httptest.NewServer(NewRouter(cfg, logger.Nop(), h))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/signals/stream?signal=Speed"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Publish(context.Background(), vss.Reading{Name: "Speed", Value: 80}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg relay.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "Speed", msg.Name)
	assert.Equal(t, 80.0, msg.Value)
}

func TestRouter_StreamNotRegisteredWithoutHub(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/signals/stream", nil))
	// Falls through to the single-signal route.
	assert.Equal(t, http.StatusNotFound, w.Code)
}
