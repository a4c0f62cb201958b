package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/proxy/types"
)

const (
	MaxRequestBodySize = 10 << 20 // bytes
	RequestIDHeader    = "X-Request-ID"
)

// ParseChatCompletionRequest decodes and validates a chat completion body.
// The body is limited to MaxRequestBodySize.
func ParseChatCompletionRequest(r *http.Request) (*types.ChatCompletionRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	if len(body) > MaxRequestBodySize {
		return nil, &RequestError{
			Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", MaxRequestBodySize),
			Code:    types.CodeRequestTooLarge,
			Param:   "body",
		}
	}

	var req types.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &RequestError{
			Message: fmt.Sprintf("invalid JSON: %v", err),
			Code:    types.CodeInvalidJSON,
			Param:   "body",
		}
	}

	if err := req.Validate(); err != nil {
		var valErr *types.ValidationError
		if errors.As(err, &valErr) {
			return nil, &RequestError{
				Message: valErr.Message,
				Code:    types.CodeInvalidValue,
				Param:   valErr.Field,
			}
		}
		return nil, err
	}

	return &req, nil
}

// ToCompletionRequest converts a client request to the provider-agnostic
// form, flattening multi-part message content to text.
func ToCompletionRequest(req *types.ChatCompletionRequest) *providers.CompletionRequest {
	out := &providers.CompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		Stream:      req.Stream,
		ToolChoice:  req.ToolChoice,
		User:        req.User,
	}

	for _, msg := range req.Messages {
		m := providers.Message{
			Role:       msg.Role,
			Content:    types.TextContent(msg.Content),
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, providers.ToolCall{
				ID:       tc.ID,
				Type:     tc.Type,
				Function: providers.FunctionCall(tc.Function),
			})
		}
		out.Messages = append(out.Messages, m)
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, providers.Tool{
			Type:     tool.Type,
			Function: providers.FunctionDefinition(tool.Function),
		})
	}

	return out
}

// RequestError is a client mistake found while parsing or validating a
// body. It is always answered with a 400.
type RequestError struct {
	Message string
	Code    string
	Param   string
}

func (e *RequestError) Error() string { return e.Message }

// ToErrorResponse renders the error as an invalid_request_error envelope.
func (e *RequestError) ToErrorResponse() *types.ErrorResponse {
	return types.NewInvalidRequestError(e.Message, e.Param, e.Code)
}
