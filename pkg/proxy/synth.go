package proxy

import (
	"time"

	"github.com/google/uuid"

	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/proxy/types"
)

// emptyIDPrefix marks completions the relay answered without the upstream.
const emptyIDPrefix = "chatcmpl-proxy-empty-"

// ResponseSynthesizer builds completions for requests with nothing to send
// upstream. The shapes match real completions: an assistant message with
// empty content, finish reason "stop" and zero usage.
type ResponseSynthesizer struct {
	now   func() time.Time
	newID func() string
}

// NewResponseSynthesizer creates a synthesizer using the wall clock and
// random UUIDs.
func NewResponseSynthesizer() *ResponseSynthesizer {
	return &ResponseSynthesizer{
		now:   time.Now,
		newID: func() string { return emptyIDPrefix + uuid.NewString() },
	}
}

// Completion returns the non-streaming empty completion for model.
func (s *ResponseSynthesizer) Completion(model string) *types.ChatCompletionResponse {
	return &types.ChatCompletionResponse{
		ID:      s.newID(),
		Object:  ObjectChatCompletion,
		Created: s.now().Unix(),
		Model:   model,
		Choices: []types.Choice{
			{
				Index: 0,
				Message: types.Message{
					Role:    providers.RoleAssistant,
					Content: "",
				},
				FinishReason: providers.FinishReasonStop,
			},
		},
		Usage: types.Usage{},
	}
}

// Chunk returns the single chunk of the empty stream for model.
func (s *ResponseSynthesizer) Chunk(model string) *types.ChatCompletionStreamChunk {
	finish := providers.FinishReasonStop
	return &types.ChatCompletionStreamChunk{
		ID:      s.newID(),
		Object:  ObjectChatCompletionChunk,
		Created: s.now().Unix(),
		Model:   model,
		Choices: []types.StreamChoice{
			{
				Index:        0,
				Delta:        types.Delta{Role: providers.RoleAssistant, Content: ""},
				FinishReason: &finish,
			},
		},
	}
}
