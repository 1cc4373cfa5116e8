// Package metrics owns the Prometheus registry and the /metrics endpoint.
//
// The Collector registers the Go runtime and process collectors plus the
// HTTP request metrics recorded by its middleware. Admission metrics are
// defined in pkg/limits and registered on the same registry:
//
//	collector := metrics.NewCollector(nil)
//	admissionMetrics := limits.NewMetrics(collector.Registry())
//	mux.Handle("/metrics", collector.Handler())
//
// # Exposed metrics
//
//	sentinel_http_requests_total{method,code}
//	sentinel_http_request_duration_seconds{method}
//	sentinel_http_requests_in_flight
//	sentinel_admission_* (see pkg/limits)
package metrics
