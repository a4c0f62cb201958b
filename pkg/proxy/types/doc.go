// Package types holds the OpenAI wire format spoken on the relay's public
// surface.
//
// Requests arrive as ChatCompletionRequest. Replies go out as
// ChatCompletionResponse, or as a sequence of ChatCompletionStreamChunk
// events terminated by "data: [DONE]" when the request set stream. Every
// failure is an ErrorResponse:
//
//	{"error": {"message": "...", "type": "invalid_request_error", "code": "invalid_api_key"}}
//
// JSON field names are snake_case as OpenAI SDKs expect, so any SDK pointed
// at http://<relay>/v1 works unchanged.
//
// ChatCompletionRequest.Validate checks value ranges only. Model and
// messages are optional: the server fills in its default model, and a
// request without messages gets an empty completion instead of an error.
package types
