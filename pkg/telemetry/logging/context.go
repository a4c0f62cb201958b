package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// KeyNameKey is the context key for the authenticated key's name.
	KeyNameKey contextKey = "key_name"

	// ModelKey is the context key for model names.
	ModelKey contextKey = "model"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithKeyName adds the name of the authenticated key to the context.
// Only the name is ever logged, never the secret.
func WithKeyName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, KeyNameKey, name)
}

// GetKeyName retrieves the authenticated key name from the context.
func GetKeyName(ctx context.Context) string {
	if name, ok := ctx.Value(KeyNameKey).(string); ok {
		return name
	}
	return ""
}

// WithModel adds a model name to the context.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ModelKey, model)
}

// GetModel retrieves the model name from the context.
func GetModel(ctx context.Context) string {
	if model, ok := ctx.Value(ModelKey).(string); ok {
		return model
	}
	return ""
}

// extractContextFields extracts common fields from context for logging.
func extractContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var fields []slog.Attr
	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, slog.String(string(RequestIDKey), requestID))
	}
	if name := GetKeyName(ctx); name != "" {
		fields = append(fields, slog.String(string(KeyNameKey), name))
	}
	if model := GetModel(ctx); model != "" {
		fields = append(fields, slog.String(string(ModelKey), model))
	}
	return fields
}

// contextHandler adds request-scoped fields from the context to each record.
type contextHandler struct {
	next slog.Handler
}

func newContextHandler(next slog.Handler) *contextHandler {
	return &contextHandler{next: next}
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, rec slog.Record) error {
	if fields := extractContextFields(ctx); len(fields) > 0 {
		rec = rec.Clone()
		rec.AddAttrs(fields...)
	}
	return h.next.Handle(ctx, rec)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}
