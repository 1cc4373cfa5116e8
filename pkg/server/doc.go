// Package server provides the admission gateway HTTP server.
//
// The server puts admission control in front of a single upstream service.
// Requests under the protected prefix are counted against the configured
// policies; admitted requests are reverse proxied to server.upstream_url.
//
// # Basic Usage
//
//	store, err := storage.Open(cfg.Storage.StoreConfig())
//	if err != nil {
//	    return err
//	}
//	manager, err := admission.NewManager(&cfg.Admission, store)
//	if err != nil {
//	    return err
//	}
//
//	srv, err := server.NewServer(cfg, server.Deps{
//	    Holder: admission.NewHolder(manager),
//	    Store:  store,
//	})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx)
//
// Start blocks until ctx is cancelled, then shuts down gracefully within
// server.shutdown_timeout. Signal handling belongs to the caller.
//
// # Routes
//
//   - GET /health          liveness probe
//   - GET /ready           readiness probe (pings the counter store)
//   - GET /metrics         Prometheus exposition, when enabled
//   - GET /version         build information
//   - {admin.path_prefix}  admin API, when enabled (see NewAdminRouter)
//   - everything else      gateway chain
//
// # Middleware Chain
//
// Outermost first:
//  1. Recovery: converts panics into a JSON 500
//  2. RequestID: assigns X-Request-ID
//  3. Tracing: server span per request
//  4. Metrics: request count, latency and in-flight gauge
//  5. Logging: one record per request, including the admission outcome
//  6. Auth: resolves the principal from an API key or JWT
//  7. Admission: rate limit headers, 429 on deny
//  8. Upstream: reverse proxy
//
// The probes, /metrics and /version only pass through the first two.
package server
