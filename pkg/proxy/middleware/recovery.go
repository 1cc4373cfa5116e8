package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/sentinel/pkg/proxy"
)

// Recovery recovers from panics in downstream handlers and answers with a
// JSON 500. The stack is logged, never sent to the client.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			if err == http.ErrAbortHandler {
				panic(err)
			}

			slog.ErrorContext(r.Context(), "panic in handler",
				"error", err,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			proxy.WriteError(w, http.StatusInternalServerError,
				"An internal error occurred. Please try again later.")
		}()

		next.ServeHTTP(w, r)
	})
}
