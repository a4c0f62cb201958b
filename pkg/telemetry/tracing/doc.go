// Package tracing provides OpenTelemetry tracing for the relay.
//
// Tracing is off by default. When disabled, New returns a tracer backed by
// the noop provider so call sites can start spans unconditionally. When
// enabled, spans are batched to an OTLP gRPC collector and W3C trace
// context is extracted from incoming requests and injected into upstream
// calls.
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "relay.stream")
//	defer span.End()
package tracing
