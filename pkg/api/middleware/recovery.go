package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/autosd-vss-mw/vss-lib/pkg/api/response"
	"github.com/autosd-vss-mw/vss-lib/pkg/logger"
)

// Recovery returns a middleware that turns a handler panic into a 500
// response and logs the stack.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				requestID := GetRequestID(r.Context())
				log.ErrorContext(r.Context(), "panic recovered",
					"error", rec,
					"request_id", requestID,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				response.Error(w,
					http.StatusInternalServerError,
					response.ErrCodeInternalServer,
					"internal server error",
					requestID,
				)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
