package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/proxy/types"
)

// flushNotifier signals once on the first flush, i.e. once a unit has
// actually been written to the client.
type flushNotifier struct {
	*httptest.ResponseRecorder
	once    sync.Once
	flushed chan struct{}
}

func newFlushNotifier() *flushNotifier {
	return &flushNotifier{ResponseRecorder: httptest.NewRecorder(), flushed: make(chan struct{})}
}

func (f *flushNotifier) Flush() {
	f.ResponseRecorder.Flush()
	f.once.Do(func() { close(f.flushed) })
}

// sseEvents splits a recorded body into its data payloads.
func sseEvents(t *testing.T, body string) []string {
	t.Helper()
	var events []string
	for _, block := range strings.Split(body, "\n\n") {
		if block == "" {
			continue
		}
		if !strings.HasPrefix(block, "data: ") {
			t.Fatalf("malformed event %q", block)
		}
		events = append(events, strings.TrimPrefix(block, "data: "))
	}
	return events
}

func feed(chunks ...*providers.StreamChunk) <-chan *providers.StreamChunk {
	ch := make(chan *providers.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func TestStreamPipeline_Completed(t *testing.T) {
	w := httptest.NewRecorder()
	p := NewStreamPipeline("chatcmpl-test", "gemini-1.5-pro")

	res := p.Run(context.Background(), w, feed(
		&providers.StreamChunk{Delta: "one"},
		&providers.StreamChunk{Delta: "two"},
		&providers.StreamChunk{Delta: "three", FinishReason: "stop"},
	))

	if res.State != StreamCompleted || res.Units != 3 || res.Err != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	for header, want := range map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache, no-store, must-revalidate, max-age=0",
		"X-Accel-Buffering": "no",
		"Connection":        "keep-alive",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}

	events := sseEvents(t, w.Body.String())
	if len(events) != 4 {
		t.Fatalf("expected 3 data events and [DONE], got %d: %v", len(events), events)
	}
	if events[3] != "[DONE]" {
		t.Errorf("expected terminal [DONE], got %q", events[3])
	}

	var first, last types.ChatCompletionStreamChunk
	if err := json.Unmarshal([]byte(events[0]), &first); err != nil {
		t.Fatalf("invalid chunk JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(events[2]), &last); err != nil {
		t.Fatalf("invalid chunk JSON: %v", err)
	}
	if first.ID != "chatcmpl-test" || first.Model != "gemini-1.5-pro" || first.Object != ObjectChatCompletionChunk {
		t.Errorf("unexpected chunk envelope: %+v", first)
	}
	if first.Choices[0].Delta.Role != "assistant" || first.Choices[0].Delta.Content != "one" {
		t.Errorf("unexpected first delta: %+v", first.Choices[0].Delta)
	}
	if last.Choices[0].Delta.Role != "" {
		t.Error("expected only the first chunk to carry the role")
	}
	if last.Choices[0].FinishReason == nil || *last.Choices[0].FinishReason != "stop" {
		t.Error("expected finish reason on the last chunk")
	}
}

func TestStreamPipeline_ClientDisconnect(t *testing.T) {
	w := newFlushNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan *providers.StreamChunk)
	go func() {
		ch <- &providers.StreamChunk{Delta: "first"}
		<-w.flushed
		cancel()
		select {
		case ch <- &providers.StreamChunk{Delta: "second"}:
		case <-time.After(time.Second):
		}
		close(ch)
	}()

	res := NewStreamPipeline("chatcmpl-test", "m").Run(ctx, w, ch)

	if res.State != StreamClientDisconnected {
		t.Fatalf("expected client_disconnected, got %s", res.State)
	}
	if res.Err != nil {
		t.Errorf("expected disconnect to be silent, got %v", res.Err)
	}
	if res.Units != 1 {
		t.Errorf("expected forwarding to stop after 1 unit, got %d", res.Units)
	}

	events := sseEvents(t, w.Body.String())
	if len(events) != 1 {
		t.Fatalf("expected exactly the first event, got %v", events)
	}
	if strings.Contains(w.Body.String(), "error") || strings.Contains(w.Body.String(), "[DONE]") {
		t.Errorf("expected no error event and no terminal marker, got %q", w.Body.String())
	}
}

func TestStreamPipeline_ShutdownCancels(t *testing.T) {
	w := newFlushNotifier()
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	ch := make(chan *providers.StreamChunk)
	go func() {
		ch <- &providers.StreamChunk{Delta: "first"}
		<-w.flushed
		cancel(ErrServerShutdown)
	}()

	res := NewStreamPipeline("chatcmpl-test", "m").Run(ctx, w, ch)

	if res.State != StreamCancelled {
		t.Fatalf("expected cancelled, got %s", res.State)
	}
	if !errors.Is(res.Err, ErrServerShutdown) {
		t.Errorf("expected ErrServerShutdown to propagate, got %v", res.Err)
	}
	if res.Units != 1 {
		t.Errorf("expected 1 unit, got %d", res.Units)
	}
}

func TestStreamPipeline_ErrorsBeforeContent(t *testing.T) {
	tests := []struct {
		name       string
		chunks     <-chan *providers.StreamChunk
		wantStatus int
		wantCode   string
	}{
		{
			name: "empty response",
			chunks: feed(&providers.StreamChunk{Error: &providers.EmptyResponseError{
				Provider: "gemini", Model: "m",
			}}),
			wantStatus: 505,
			wantCode:   types.CodeEmptyResponse,
		},
		{
			name:       "upstream closed without content",
			chunks:     feed(),
			wantStatus: 505,
			wantCode:   types.CodeEmptyResponse,
		},
		{
			name: "generic upstream failure",
			chunks: feed(&providers.StreamChunk{Error: &providers.ProviderError{
				Provider: "gemini", StatusCode: 503, Message: "overloaded",
			}}),
			wantStatus: http.StatusInternalServerError,
			wantCode:   types.CodeUpstreamError,
		},
		{
			name: "stream transport failure",
			chunks: feed(&providers.StreamChunk{Error: &providers.StreamError{
				Provider: "gemini", Message: "reset",
			}}),
			wantStatus: http.StatusInternalServerError,
			wantCode:   types.CodeUpstreamError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			res := NewStreamPipeline("chatcmpl-test", "m").Run(context.Background(), w, tt.chunks)

			if res.State != StreamUpstreamError || res.Err == nil {
				t.Fatalf("unexpected result: %+v", res)
			}
			if res.HeadersSent || res.Units != 0 {
				t.Errorf("expected nothing streamed, got %+v", res)
			}
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected a JSON error body, got content type %q", ct)
			}

			var body types.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid error body: %v", err)
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestStreamPipeline_ErrorMidStream(t *testing.T) {
	w := httptest.NewRecorder()
	res := NewStreamPipeline("chatcmpl-test", "m").Run(context.Background(), w, feed(
		&providers.StreamChunk{Delta: "partial"},
		&providers.StreamChunk{Error: &providers.ProviderError{Provider: "gemini", Message: "boom"}},
	))

	if res.State != StreamUpstreamError || res.Units != 1 || !res.HeadersSent {
		t.Fatalf("unexpected result: %+v", res)
	}
	if w.Code != http.StatusOK {
		t.Errorf("expected committed 200 to stand, got %d", w.Code)
	}

	events := sseEvents(t, w.Body.String())
	if len(events) != 1 {
		t.Fatalf("expected the stream to end after the partial unit, got %v", events)
	}
}

func TestStreamPipeline_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := httptest.NewRecorder()
	res := NewStreamPipeline("chatcmpl-test", "m").Run(ctx, w, make(chan *providers.StreamChunk))

	if res.State != StreamClientDisconnected || res.Units != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if w.Body.Len() != 0 {
		t.Errorf("expected nothing written, got %q", w.Body.String())
	}
}
