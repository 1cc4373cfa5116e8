// Package tracing provides OpenTelemetry distributed tracing for Sentinel.
//
// New installs a global TracerProvider exporting over OTLP gRPC, so the
// admission packages, which obtain their tracers through otel.Tracer, start
// recording spans without holding a reference to this package. When tracing
// is disabled a noop provider is used.
//
// # Spans
//
//   - http.request: one per proxied request, started by Middleware
//   - admission.Admit: client identification and policy resolution
//   - ratelimit.Decide: the counter store round trip
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	handler = tracer.Middleware(handler)
package tracing
