// Package upstreamtest provides a fake OpenAI-compatible upstream for tests.
package upstreamtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Response configures how the server answers one path.
type Response struct {
	StatusCode int

	// Body is written as-is for string and []byte, JSON-encoded otherwise
	Body interface{}

	Headers map[string]string

	// StreamChunks, when set, are sent as SSE data events followed by
	// "data: [DONE]" unless OmitDone is set
	StreamChunks []string
	OmitDone     bool

	// ChunkDelay is slept between stream events
	ChunkDelay time.Duration

	// Hang keeps the stream open after the chunks until the client goes away
	Hang bool
}

// Server is a scripted upstream.
type Server struct {
	server *httptest.Server

	mu        sync.Mutex
	responses map[string]Response
	requests  []Request
}

// Request is a captured inbound request.
type Request struct {
	Method        string
	Path          string
	Authorization string
	Body          []byte
}

// NewServer starts a fake upstream. Close it when done.
func NewServer() *Server {
	s := &Server{responses: make(map[string]Response)}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the server base URL; adapters use URL()+"/v1".
func (s *Server) URL() string {
	return s.server.URL
}

// Close shuts the server down.
func (s *Server) Close() {
	s.server.CloseClientConnections()
	s.server.Close()
}

// SetResponse scripts the answer for path.
func (s *Server) SetResponse(path string, r Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[path] = r
}

// Requests returns a copy of all captured requests.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestCount returns the number of requests received.
func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		Body:          body,
	})
	resp, ok := s.responses[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}

	if len(resp.StreamChunks) > 0 || resp.Hang {
		s.stream(w, r, resp)
		return
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	switch v := resp.Body.(type) {
	case nil:
	case string:
		_, _ = w.Write([]byte(v))
	case []byte:
		_, _ = w.Write(v)
	default:
		_ = json.NewEncoder(w).Encode(v)
	}
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, resp Response) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher := w.(http.Flusher)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for _, chunk := range resp.StreamChunks {
		if resp.ChunkDelay > 0 {
			select {
			case <-time.After(resp.ChunkDelay):
			case <-r.Context().Done():
				return
			}
		}
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		flusher.Flush()
	}

	if resp.Hang {
		<-r.Context().Done()
		return
	}
	if !resp.OmitDone {
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
}

// Completion builds a chat.completion body.
func Completion(content, model string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-upstream",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]interface{}{
			{
				"index": 0,
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]interface{}{
			"prompt_tokens":     10,
			"completion_tokens": 20,
			"total_tokens":      30,
		},
	}
}

// Chunk builds one chat.completion.chunk event payload.
func Chunk(delta, finishReason string) string {
	choice := map[string]interface{}{
		"index": 0,
		"delta": map[string]interface{}{"content": delta},
	}
	if finishReason != "" {
		choice["finish_reason"] = finishReason
	} else {
		choice["finish_reason"] = nil
	}
	data, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-upstream",
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   "gemini-1.5-pro",
		"choices": []map[string]interface{}{choice},
	})
	return string(data)
}

// RoleChunk builds the role-only opening event many upstreams send.
func RoleChunk() string {
	data, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-upstream",
		"object":  "chat.completion.chunk",
		"created": time.Now().Unix(),
		"model":   "gemini-1.5-pro",
		"choices": []map[string]interface{}{
			{"index": 0, "delta": map[string]interface{}{"role": "assistant"}, "finish_reason": nil},
		},
	})
	return string(data)
}

// Chunks builds one event per delta, the last carrying finish reason "stop".
func Chunks(deltas ...string) []string {
	out := make([]string, len(deltas))
	for i, d := range deltas {
		finish := ""
		if i == len(deltas)-1 {
			finish = "stop"
		}
		out[i] = Chunk(d, finish)
	}
	return out
}
