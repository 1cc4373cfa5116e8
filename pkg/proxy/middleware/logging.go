package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/sentinel/pkg/telemetry/logging"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Flush lets streamed upstream responses through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Logging logs one record per request with its status, latency and
// admission outcome. 5xx responses log at ERROR, 4xx at WARN.
//
//	{
//	  "level": "WARN",
//	  "msg": "request completed",
//	  "method": "GET",
//	  "path": "/api/chatbot/ask",
//	  "status": 429,
//	  "latency_ms": 1,
//	  "client_id": "ip:203.0.113.7",
//	  "admission": "denied",
//	  "window": "requests_per_minute",
//	  "request_id": "2b9c..."
//	}
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := context.WithValue(r.Context(), startTimeKey, start)
			ctx, state := withState(ctx)

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			level := slog.LevelInfo
			switch {
			case rw.statusCode >= 500:
				level = slog.LevelError
			case rw.statusCode >= 400:
				level = slog.LevelWarn
			}

			if state.client != "" {
				ctx = logging.WithClientID(ctx, state.client)
			}
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.statusCode,
				"latency_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			}
			if d := state.decision; d != nil {
				attrs = append(attrs, "admission", d.Outcome())
				if d.Violated != nil {
					attrs = append(attrs, "window", d.Violated.Window.Name)
				}
			}

			logger.Log(ctx, level, "request completed", attrs...)
		})
	}
}
