package types

// ChatCompletionResponse is the body of a non-streaming completion
// ("object": "chat.completion").
type ChatCompletionResponse struct {
	ID                string   `json:"id"`
	Object            string   `json:"object"`
	Created           int64    `json:"created"` // unix seconds
	Model             string   `json:"model"`
	Choices           []Choice `json:"choices"`
	Usage             Usage    `json:"usage"`
	SystemFingerprint string   `json:"system_fingerprint,omitempty"`
}

// Choice is one alternative of a completion. The relay always returns one.
type Choice struct {
	Index        int         `json:"index"`
	Message      Message     `json:"message"`
	FinishReason string      `json:"finish_reason"`
	LogProbs     interface{} `json:"logprobs,omitempty"`
}

// Usage reports token counts as the upstream computed them. The relay
// reports zeros for completions it answers itself.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionStreamChunk is one SSE data event of a streamed completion
// ("object": "chat.completion.chunk"). Every chunk of a stream shares ID.
type ChatCompletionStreamChunk struct {
	ID                string         `json:"id"`
	Object            string         `json:"object"`
	Created           int64          `json:"created"`
	Model             string         `json:"model"`
	Choices           []StreamChoice `json:"choices"`
	SystemFingerprint string         `json:"system_fingerprint,omitempty"`
}

// StreamChoice carries one delta. FinishReason is null until the last chunk.
type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        Delta       `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
	LogProbs     interface{} `json:"logprobs,omitempty"`
}

// Delta is the incremental part of a message. Role is set on the first
// chunk only. Content is always serialized, possibly empty, since some
// clients index into it unconditionally.
type Delta struct {
	Role      string     `json:"role,omitempty"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Model is one entry of GET /v1/models.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"` // "model"
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the body of GET /v1/models ("object": "list").
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}
