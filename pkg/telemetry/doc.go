// Package telemetry groups the relay's observability packages.
//
//   - logging: slog construction with credential redaction and request-scoped fields
//   - metrics: Prometheus collectors and the /metrics handler
//   - tracing: OpenTelemetry spans exported over OTLP gRPC
//   - health: liveness, readiness, and version endpoints
package telemetry
