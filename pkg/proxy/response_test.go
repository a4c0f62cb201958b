package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/proxy/types"
)

func TestCompletionID(t *testing.T) {
	tests := map[string]string{
		"abc":          "chatcmpl-abc",
		"chatcmpl-abc": "chatcmpl-abc",
		"":             "chatcmpl-",
	}
	for in, want := range tests {
		if got := CompletionID(in); got != want {
			t.Errorf("CompletionID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatChatCompletionResponse(t *testing.T) {
	resp := FormatChatCompletionResponse(&providers.CompletionResponse{
		ID:      "up-1",
		Model:   "models/gemini-1.5-pro-002",
		Content: "Hello!",
		Usage:   providers.TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
		ToolCalls: []providers.ToolCall{{
			ID:       "call_1",
			Function: providers.FunctionCall{Name: "lookup", Arguments: `{"q":1}`},
		}},
	}, "gemini-1.5-pro")

	if resp.ID != "chatcmpl-up-1" || resp.Object != ObjectChatCompletion {
		t.Errorf("unexpected envelope: %+v", resp)
	}
	if resp.Model != "gemini-1.5-pro" {
		t.Errorf("expected the requested model to be echoed, got %q", resp.Model)
	}
	choice := resp.Choices[0]
	if choice.FinishReason != "stop" {
		t.Errorf("expected default finish reason stop, got %q", choice.FinishReason)
	}
	if choice.Message.Role != "assistant" || choice.Message.Content != "Hello!" {
		t.Errorf("unexpected message: %+v", choice.Message)
	}
	if len(choice.Message.ToolCalls) != 1 || choice.Message.ToolCalls[0].Type != "function" {
		t.Errorf("unexpected tool calls: %+v", choice.Message.ToolCalls)
	}
	if resp.Usage.TotalTokens != 5 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

func TestFormatStreamChunk(t *testing.T) {
	chunk := &providers.StreamChunk{Delta: "Hi"}

	first := FormatStreamChunk(chunk, "m", "chatcmpl-1", true)
	if first.Choices[0].Delta.Role != "assistant" {
		t.Error("expected the first chunk to carry the assistant role")
	}
	if first.Choices[0].FinishReason != nil {
		t.Error("expected no finish reason")
	}

	next := FormatStreamChunk(&providers.StreamChunk{FinishReason: "length"}, "m", "chatcmpl-1", false)
	if next.Choices[0].Delta.Role != "" {
		t.Error("expected later chunks to omit the role")
	}
	if fr := next.Choices[0].FinishReason; fr == nil || *fr != "length" {
		t.Errorf("unexpected finish reason: %v", fr)
	}

	data, err := json.Marshal(next)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"content":""`) {
		t.Errorf("expected content to always be present: %s", data)
	}
	if strings.Contains(string(data), `"role"`) {
		t.Errorf("expected role to be omitted: %s", data)
	}
}

func TestWriteErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()
	if err := WriteErrorResponse(w, types.NewServerBusyError("busy")); err != nil {
		t.Fatalf("WriteErrorResponse failed: %v", err)
	}

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
	var body types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.Error.Code != types.CodeServerBusy || body.Error.Message != "busy" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestWriteSSEChunk(t *testing.T) {
	w := httptest.NewRecorder()
	chunk := FormatStreamChunk(&providers.StreamChunk{Delta: "x"}, "m", "chatcmpl-1", true)

	if err := WriteSSEChunk(w, chunk); err != nil {
		t.Fatalf("WriteSSEChunk failed: %v", err)
	}
	if err := WriteSSEDone(w); err != nil {
		t.Fatalf("WriteSSEDone failed: %v", err)
	}

	body := w.Body.String()
	if !strings.HasPrefix(body, "data: {") || !strings.HasSuffix(body, "\n\ndata: [DONE]\n\n") {
		t.Errorf("unexpected SSE framing: %q", body)
	}
	if !w.Flushed {
		t.Error("expected events to be flushed")
	}
}
