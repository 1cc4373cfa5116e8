// Package limits provides request admission control for the Sentinel gateway.
//
// # Overview
//
// The limits package enforces per-client request quotas across several rolling
// time windows at once. A client is identified by its authenticated principal or,
// failing that, by its network address. Each request is matched to exactly one
// policy and counted against every window of that policy:
//
//   - Sliding-log counters (exact timestamps, no fixed-window boundary doubling)
//   - Longest-prefix path policies with a default fallback
//   - Tier override policies (anonymous, authenticated, premium)
//   - Literal and CIDR whitelists that bypass counting entirely
//
// # Architecture
//
// The package is organized into sub-packages:
//
//   - identity: client key derivation and the whitelist guard
//   - policy: the immutable policy registry and tier resolution
//   - storage: window counter stores (memory, Redis, SQLite) and the sweep janitor
//   - ratelimit: the multi-window decision engine
//   - admission: the Manager wiring the above from configuration, plus the
//     administrative status and reset surface
//
// This package holds the shared types, errors and metrics.
//
// # Usage
//
//	cfg := config.GetConfig()
//	manager, err := admission.NewManager(&cfg.Admission, store, admission.WithMetrics(m))
//	if err != nil {
//	    return err // configuration error, refuse to start
//	}
//
//	decision := manager.Admit(ctx, admission.Request{
//	    Path:     r.URL.Path,
//	    Identity: identity.FromHTTPRequest(r),
//	})
//	if !decision.Allowed {
//	    // 429 with decision.RetryAfter
//	}
//
// # Failure Handling
//
// Counter store failures never reject a request. The limiter runs every store
// call under a short timeout and allows the request when the store errors or
// times out, emitting a warning and incrementing a fail-open counter.
//
// # Thread Safety
//
// Registries, whitelists and the Manager are immutable after construction and
// safe for concurrent use without locking. Stores serialize mutations per key.
package limits
