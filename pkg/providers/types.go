package providers

import "time"

// Message is one conversation turn after the handler has flattened
// multi-part content to text. ToolCallID is set on role "tool" messages and
// names the assistant call being answered.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names a function and carries its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool is a function definition the model may call.
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition defines a callable function.
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// TokenUsage tracks token consumption for a request.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionRequest is a provider-agnostic completion request. Optional
// sampling parameters are pointers so that "unset" is distinguishable from
// zero and only explicit values are forwarded.
type CompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`

	Stream bool `json:"stream,omitempty"`

	Tools      []Tool      `json:"tools,omitempty"`
	ToolChoice interface{} `json:"tool_choice,omitempty"`

	User string `json:"user,omitempty"`

	// Metadata is request context for logging; it is never sent upstream.
	Metadata map[string]string `json:"-"`
}

// CompletionResponse is a normalized non-streaming completion.
type CompletionResponse struct {
	ID           string     `json:"id"`
	Model        string     `json:"model"`
	Content      string     `json:"content"`
	FinishReason string     `json:"finish_reason"`
	Usage        TokenUsage `json:"usage"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	Created      int64      `json:"created"`
}

// StreamChunk is one decoded upstream stream event. Delta is the text added
// by this event. A chunk with Error set is the last one the channel carries.
type StreamChunk struct {
	ID           string      `json:"id"`
	Model        string      `json:"model"`
	Delta        string      `json:"delta"`
	FinishReason string      `json:"finish_reason,omitempty"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
	Created      int64       `json:"created"`
	Error        error       `json:"-"`
}

// HasContent reports whether the chunk carries text or tool calls.
func (c *StreamChunk) HasContent() bool {
	return c.Delta != "" || len(c.ToolCalls) > 0
}

// ProviderHealth is a snapshot of the upstream's observed health. Three
// consecutive failures flip IsHealthy to false; one success restores it.
type ProviderHealth struct {
	IsHealthy             bool
	LastCheck             time.Time
	LastError             error
	ConsecutiveFailures   int
	LastSuccessfulRequest time.Time
	TotalRequests         int64
	FailedRequests        int64
}

// ProviderConfig configures an upstream adapter.
//
// Timeout bounds a whole non-streaming request and the wait for the first
// response byte of a streaming one. MaxRetries counts extra attempts after
// a transient failure, spaced by RetryBackoff (1s when zero) doubled each
// time. A positive HealthCheckInterval enables the background prober.
type ProviderConfig struct {
	Name    string
	BaseURL string // e.g. "https://api.openai.com/v1"
	APIKey  string

	Timeout             time.Duration
	MaxRetries          int
	RetryBackoff        time.Duration
	HealthCheckInterval time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
)

// ToolTypeFunction is the only tool type currently defined.
const ToolTypeFunction = "function"
