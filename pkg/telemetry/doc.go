// Package telemetry groups Sentinel's observability packages.
//
//   - logging: log/slog setup with request-scoped fields and credential redaction
//   - metrics: the Prometheus registry, HTTP metrics and the /metrics handler
//   - tracing: the OpenTelemetry provider and HTTP server spans
//   - health: liveness and readiness probes
//
// Admission metrics live in pkg/limits and register on the registry owned
// by the metrics package.
package telemetry
