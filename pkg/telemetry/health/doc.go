// Package health implements the liveness and readiness endpoints.
//
// Liveness only reports that the process is serving. Readiness runs every
// registered check concurrently, each bounded by the checker timeout; the
// server registers a "store" check that pings the admission counter store.
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("store", health.PingCheck(store))
//	mux.Handle("/ready", checker.ReadinessHandler())
//
// A failing readiness check does not stop admission: the limiter fails open
// on store errors, so readiness is what surfaces a broken store to the
// orchestrator.
package health
