package proxy

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"
)

// NewUpstream returns a reverse proxy to upstreamURL. An empty URL returns
// NotFoundHandler, for deployments that only use the admin API.
func NewUpstream(upstreamURL string, logger *slog.Logger) (http.Handler, error) {
	if upstreamURL == "" {
		return NotFoundHandler(), nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "proxy")

	target, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q: scheme and host are required", upstreamURL)
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Host = target.Host
		},
		FlushInterval: 100 * time.Millisecond,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, r.Context().Err()) {
				// Client went away; nobody is left to answer.
				return
			}
			logger.ErrorContext(r.Context(), "upstream request failed",
				"error", err,
				"method", r.Method,
				"path", r.URL.Path,
			)
			WriteError(w, http.StatusBadGateway, "upstream unavailable")
		},
	}
	return rp, nil
}

// NotFoundHandler answers every request with a JSON 404.
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, fmt.Sprintf("no route for %s", r.URL.Path))
	})
}
