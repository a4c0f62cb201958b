package proxy

import (
	"cmp"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/proxy/types"
)

// Object names used in completion payloads.
const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
)

// sseDone is the terminal event of every stream.
const sseDone = "data: [DONE]\n\n"

// CompletionID returns the client-facing completion ID for an upstream ID.
func CompletionID(upstreamID string) string {
	if strings.HasPrefix(upstreamID, "chatcmpl-") {
		return upstreamID
	}
	return "chatcmpl-" + upstreamID
}

// FormatChatCompletionResponse converts an upstream completion to the
// OpenAI chat.completion object, echoing the requested model. A missing
// finish reason is reported as "stop".
func FormatChatCompletionResponse(resp *providers.CompletionResponse, requestedModel string) *types.ChatCompletionResponse {
	choice := types.Choice{
		Message: types.Message{
			Role:      providers.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: clientToolCalls(resp.ToolCalls),
		},
		FinishReason: cmp.Or(resp.FinishReason, providers.FinishReasonStop),
	}

	return &types.ChatCompletionResponse{
		ID:      CompletionID(resp.ID),
		Object:  ObjectChatCompletion,
		Created: time.Now().Unix(),
		Model:   requestedModel,
		Choices: []types.Choice{choice},
		Usage:   types.Usage(resp.Usage),
	}
}

// FormatStreamChunk converts an upstream chunk to a chat.completion.chunk.
// The first chunk of a stream announces the assistant role.
func FormatStreamChunk(chunk *providers.StreamChunk, requestedModel, responseID string, first bool) *types.ChatCompletionStreamChunk {
	choice := types.StreamChoice{
		Delta: types.Delta{Content: chunk.Delta, ToolCalls: clientToolCalls(chunk.ToolCalls)},
	}
	if first {
		choice.Delta.Role = providers.RoleAssistant
	}
	if chunk.FinishReason != "" {
		finish := chunk.FinishReason
		choice.FinishReason = &finish
	}

	return &types.ChatCompletionStreamChunk{
		ID:      responseID,
		Object:  ObjectChatCompletionChunk,
		Created: time.Now().Unix(),
		Model:   requestedModel,
		Choices: []types.StreamChoice{choice},
	}
}

func clientToolCalls(calls []providers.ToolCall) []types.ToolCall {
	var out []types.ToolCall
	for _, tc := range calls {
		out = append(out, types.ToolCall{
			ID:       tc.ID,
			Type:     providers.ToolTypeFunction,
			Function: types.FunctionCall(tc.Function),
		})
	}
	return out
}

// WriteJSONResponse writes data as a JSON response with the given status.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}
	return nil
}

// WriteErrorResponse writes an OpenAI error envelope with the status its
// type maps to.
func WriteErrorResponse(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	return WriteJSONResponse(w, errResp.Error.HTTPStatusCode(), errResp)
}

// SetSSEHeaders sets the event-stream headers. Buffering and caching are
// disabled for intermediaries such as nginx.
func SetSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate, max-age=0")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("Transfer-Encoding", "chunked")
}

// WriteSSEChunk writes one "data: <json>\n\n" event and flushes it.
func WriteSSEChunk(w http.ResponseWriter, chunk *types.ChatCompletionStreamChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE chunk: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write SSE chunk: %w", err)
	}
	return flush(w)
}

// WriteSSEDone writes the terminal "[DONE]" event and flushes it.
func WriteSSEDone(w http.ResponseWriter) error {
	if _, err := fmt.Fprint(w, sseDone); err != nil {
		return fmt.Errorf("failed to write SSE done marker: %w", err)
	}
	return flush(w)
}

func flush(w http.ResponseWriter) error {
	if err := http.NewResponseController(w).Flush(); err != nil && err != http.ErrNotSupported {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}
