package proxy

import (
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/relay/pkg/proxy/types"
)

// RequestMetadata is what the relay records about a chat request for logs
// and traces. It never contains the caller's secret or message content.
type RequestMetadata struct {
	RequestID string
	KeyName   string
	Model     string
	Stream    bool

	MessageCount int
	ToolCount    int

	RemoteAddr string
	UserAgent  string
	Timestamp  time.Time
}

// ExtractRequestMetadata collects metadata for a parsed request.
func ExtractRequestMetadata(r *http.Request, req *types.ChatCompletionRequest, requestID, keyName string) *RequestMetadata {
	return &RequestMetadata{
		RequestID:    requestID,
		KeyName:      keyName,
		Model:        req.Model,
		Stream:       req.Stream,
		MessageCount: len(req.Messages),
		ToolCount:    len(req.Tools),
		RemoteAddr:   r.RemoteAddr,
		UserAgent:    r.UserAgent(),
		Timestamp:    time.Now(),
	}
}

// LogAttrs returns the metadata as slog attributes.
func (m *RequestMetadata) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("model", m.Model),
		slog.Bool("stream", m.Stream),
		slog.Int("messages", m.MessageCount),
		slog.String("remote_addr", m.RemoteAddr),
	}
	if m.KeyName != "" {
		attrs = append(attrs, slog.String("key_name", m.KeyName))
	}
	if m.ToolCount > 0 {
		attrs = append(attrs, slog.Int("tools", m.ToolCount))
	}
	if m.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", m.UserAgent))
	}
	return attrs
}

// Elapsed returns the time since the request was received.
func (m *RequestMetadata) Elapsed() time.Duration {
	return time.Since(m.Timestamp)
}
