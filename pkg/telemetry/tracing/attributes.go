package tracing

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on relay spans.
const (
	AttrKeyName     = attribute.Key("relay.key_name")
	AttrModel       = attribute.Key("relay.model")
	AttrStream      = attribute.Key("relay.stream")
	AttrStreamState = attribute.Key("relay.stream.state")
	AttrStreamUnits = attribute.Key("relay.stream.units")
	AttrMessages    = attribute.Key("relay.messages")
)

func serverSpan() trace.SpanStartOption {
	return trace.WithSpanKind(trace.SpanKindServer)
}

// SetHTTPAttributes records the request method and path.
func SetHTTPAttributes(span trace.Span, r *http.Request) {
	span.SetAttributes(
		attribute.String("http.request.method", r.Method),
		attribute.String("url.path", r.URL.Path),
	)
}

// SetRequestAttributes records what the caller asked for. Only the key
// name is recorded, never the secret.
func SetRequestAttributes(span trace.Span, keyName, model string, stream bool, messages int) {
	span.SetAttributes(
		AttrKeyName.String(keyName),
		AttrModel.String(model),
		AttrStream.Bool(stream),
		AttrMessages.Int(messages),
	)
}

// SetStreamResult records how a stream ended.
func SetStreamResult(span trace.Span, state string, units int) {
	span.SetAttributes(
		AttrStreamState.String(state),
		AttrStreamUnits.Int(units),
	)
}
