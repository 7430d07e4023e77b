package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// MetricsRecorder defines the interface for recording HTTP metrics.
type MetricsRecorder interface {
	RecordHTTPRequest(ctx context.Context, method, path, status string, duration time.Duration)
	IncActiveConnections()
	DecActiveConnections()
}

// Metrics returns a middleware that records HTTP metrics labelled by the
// matched route pattern. Requests to skipPath are not recorded.
func Metrics(recorder MetricsRecorder, skipPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipPath != "" && r.URL.Path == skipPath {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			recorder.IncActiveConnections()
			defer recorder.DecActiveConnections()

			wrapped := wrapWriter(w)

			// Record panicking requests as 500 before handing the panic on.
			defer func() {
				if err := recover(); err != nil {
					recorder.RecordHTTPRequest(r.Context(), r.Method, routePattern(r),
						strconv.Itoa(http.StatusInternalServerError), time.Since(start))
					panic(err)
				}
			}()

			next.ServeHTTP(wrapped, r)

			recorder.RecordHTTPRequest(r.Context(), r.Method, routePattern(r),
				strconv.Itoa(wrapped.statusCode), time.Since(start))
		})
	}
}
