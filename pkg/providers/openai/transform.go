package openai

import (
	"mercator-hq/relay/pkg/providers"
)

// Wire types for the upstream chat completions endpoint. Sampling fields
// are pointers so only values the client set are forwarded.

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []wireMessage    `json:"messages"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        *float64         `json:"top_p,omitempty"`
	TopK        *int             `json:"top_k,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
	Stop        []string         `json:"stop,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
	Tools       []providers.Tool `json:"tools,omitempty"`
	ToolChoice  interface{}      `json:"tool_choice,omitempty"`
	User        string           `json:"user,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

// wireToolCall carries Index only inside streamed deltas.
type wireToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage providers.TokenUsage `json:"usage"`
}

// streamEvent is the payload of one "data:" line. Error is set when the
// upstream reports a failure inside an open stream.
type streamEvent struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   string         `json:"content,omitempty"`
			ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage *providers.TokenUsage `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func newChatRequest(req *providers.CompletionRequest, stream bool) *chatRequest {
	out := &chatRequest{
		Model:       req.Model,
		Messages:    make([]wireMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		Stream:      stream,
		Tools:       req.Tools,
		ToolChoice:  req.ToolChoice,
		User:        req.User,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
			ToolCalls:  encodeToolCalls(m.ToolCalls),
		})
	}
	return out
}

// completion normalizes the first choice. Without choices the content is
// empty and the caller decides what that means.
func (r *chatResponse) completion() *providers.CompletionResponse {
	out := &providers.CompletionResponse{ID: r.ID, Model: r.Model, Created: r.Created, Usage: r.Usage}
	if len(r.Choices) > 0 {
		c := r.Choices[0]
		out.Content = c.Message.Content
		out.FinishReason = normalizeFinishReason(c.FinishReason)
		out.ToolCalls = decodeToolCalls(c.Message.ToolCalls)
	}
	return out
}

// chunk normalizes the event. Events without choices, such as a trailing
// usage event, become chunks without content.
func (e *streamEvent) chunk() *providers.StreamChunk {
	out := &providers.StreamChunk{ID: e.ID, Model: e.Model, Created: e.Created, Usage: e.Usage}
	if len(e.Choices) > 0 {
		c := e.Choices[0]
		out.Delta = c.Delta.Content
		out.FinishReason = normalizeFinishReason(c.FinishReason)
		out.ToolCalls = decodeToolCalls(c.Delta.ToolCalls)
	}
	return out
}

func encodeToolCalls(calls []providers.ToolCall) []wireToolCall {
	var out []wireToolCall
	for _, tc := range calls {
		out = append(out, wireToolCall{ID: tc.ID, Type: tc.Type, Function: wireFunction(tc.Function)})
	}
	return out
}

func decodeToolCalls(calls []wireToolCall) []providers.ToolCall {
	var out []providers.ToolCall
	for _, tc := range calls {
		typ := tc.Type
		if typ == "" {
			typ = providers.ToolTypeFunction
		}
		out = append(out, providers.ToolCall{ID: tc.ID, Type: typ, Function: providers.FunctionCall(tc.Function)})
	}
	return out
}

// normalizeFinishReason maps Gemini-style reasons onto the OpenAI ones.
func normalizeFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return providers.FinishReasonStop
	case "MAX_TOKENS":
		return providers.FinishReasonLength
	case "function_call":
		return providers.FinishReasonToolCalls
	case "SAFETY", "RECITATION":
		return providers.FinishReasonContentFilter
	}
	return reason
}
