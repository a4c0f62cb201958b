package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ChatCompletionRequest is the body of POST /v1/chat/completions.
//
// Model may be empty; the relay substitutes its default. Messages may be
// empty; the relay then answers with an empty completion without calling
// the upstream. Pointer fields distinguish "absent" from zero so only what
// the client set is forwarded.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []Message     `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"` // 0..2
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"` // 0..1
	N           *int          `json:"n,omitempty"`     // only 1 is supported
	Stream      bool          `json:"stream,omitempty"`
	Stop        StopSequences `json:"stop,omitempty"` // at most 4
	User        string        `json:"user,omitempty"`
	Tools       []Tool        `json:"tools,omitempty"`

	// ToolChoice is "none", "auto" or {"type":"function","function":{"name":...}}.
	ToolChoice interface{} `json:"tool_choice,omitempty"`

	// TopK is not part of the OpenAI API. Gemini-style upstreams accept it.
	TopK *int `json:"top_k,omitempty"`
}

// Message is one turn of the conversation. Content is a string or a list
// of typed parts; see TextContent.
type Message struct {
	Role       string      `json:"role"` // system, user, assistant or tool
	Content    interface{} `json:"content"`
	Name       string      `json:"name,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
}

// Tool declares a function the model may call.
type Tool struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable function. Parameters is a JSON
// Schema object.
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolCall is a function invocation emitted by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the function and carries its arguments as a JSON
// encoded string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Validate checks field ranges and returns the first violation. An empty
// message list is valid.
func (r *ChatCompletionRequest) Validate() error {
	checks := []struct {
		bad     bool
		field   string
		message string
	}{
		{r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2), "temperature", "temperature must be between 0.0 and 2.0"},
		{r.TopP != nil && (*r.TopP < 0 || *r.TopP > 1), "top_p", "top_p must be between 0.0 and 1.0"},
		{r.TopK != nil && *r.TopK < 1, "top_k", "top_k must be greater than 0"},
		{r.MaxTokens != nil && *r.MaxTokens < 1, "max_tokens", "max_tokens must be greater than 0"},
		{r.N != nil && *r.N != 1, "n", "only n=1 is supported"},
		{len(r.Stop) > 4, "stop", "stop sequences must not exceed 4"},
	}
	for _, c := range checks {
		if c.bad {
			return &ValidationError{Field: c.field, Message: c.message}
		}
	}

	for i, msg := range r.Messages {
		if msg.Role == "" {
			return &ValidationError{
				Field:   "messages[" + strconv.Itoa(i) + "].role",
				Message: "message role is required",
			}
		}
	}
	return nil
}

// HasContent reports whether the request carries anything to send upstream.
func (r *ChatCompletionRequest) HasContent() bool {
	return len(r.Messages) > 0
}

// ValidationError represents a request validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}

// StopSequences accepts "stop" as either a string or a list of strings.
type StopSequences []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *StopSequences) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StopSequences{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("stop must be a string or a list of strings")
	}
	*s = list
	return nil
}

// TextContent flattens message content to plain text. Content may be a
// string or a list of parts; only "text" parts contribute.
func TextContent(content interface{}) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []interface{}:
		var b strings.Builder
		for _, part := range v {
			m, ok := part.(map[string]interface{})
			if !ok {
				continue
			}
			if t, _ := m["type"].(string); t != "" && t != "text" {
				continue
			}
			if text, ok := m["text"].(string); ok {
				b.WriteString(text)
			}
		}
		return b.String()
	default:
		return fmt.Sprint(v)
	}
}
