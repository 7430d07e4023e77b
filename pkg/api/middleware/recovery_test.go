package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/autosd-vss-mw/vss-lib/pkg/api/response"
	"github.com/autosd-vss-mw/vss-lib/pkg/logger"
)

func TestRecovery(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
	}{
		{
			name: "no panic",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "panic with string",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic("store exploded")
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "panic with error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic(http.ErrBodyNotAllowed)
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := logger.NewWithWriter(&logger.Config{Level: logger.InfoLevel, Format: "json"}, &buf)
			handler := RequestID()(Recovery(log)(tt.handler))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/signals", nil)
			req.Header.Set(RequestIDHeader, "req-42")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %v, want %v", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusInternalServerError {
				if buf.Len() != 0 {
					t.Errorf("unexpected log output: %s", buf.String())
				}
				return
			}

			var resp response.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to unmarshal error response: %v", err)
			}
			if resp.Error.Code != response.ErrCodeInternalServer {
				t.Errorf("code = %v", resp.Error.Code)
			}
			if resp.Error.RequestID != "req-42" {
				t.Errorf("request_id = %v", resp.Error.RequestID)
			}
			if !strings.Contains(buf.String(), "panic recovered") {
				t.Errorf("expected panic to be logged, got %s", buf.String())
			}
		})
	}
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	handler := Recovery(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
