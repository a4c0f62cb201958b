// Package proxy implements the request and response side of the relay: it
// parses OpenAI-compatible chat completion requests, converts them to
// provider requests, and writes upstream answers back to clients either as
// a single chat.completion object or as a Server-Sent Events stream.
//
// # Request Flow
//
//  1. The handler parses the body with ParseChatCompletionRequest. Syntax
//     and range problems become a *RequestError (400).
//  2. A request without messages never reaches the upstream; the
//     ResponseSynthesizer answers it with an empty completion.
//  3. Otherwise ToCompletionRequest produces the provider request and the
//     upstream is called, streaming or not.
//  4. Failures are mapped with HandleError.
//
// # Streaming
//
// StreamPipeline relays the upstream chunk channel. It commits the 200
// event-stream headers only with the first content unit, so an upstream
// that fails, or answers without content, is still reported with a proper
// status code:
//
//	pipeline := proxy.NewStreamPipeline(id, model)
//	res := pipeline.Run(r.Context(), w, chunks)
//	if res.State == proxy.StreamCancelled {
//	    panic(http.ErrAbortHandler)
//	}
//
// The request context is checked before each unit is written. A client
// disconnect stops forwarding silently. A server shutdown, signalled by
// cancelling the request context with ErrServerShutdown as its cause, ends
// the stream as StreamCancelled and the caller aborts the connection.
//
// # Error Mapping
//
//	*RequestError                    400 invalid_request_error
//	*providers.EmptyResponseError    505 empty_response
//	other provider errors            500 upstream_error
//	anything else                    500 internal_error (generic message)
package proxy
