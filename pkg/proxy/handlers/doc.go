// Package handlers provides the HTTP endpoint handlers of the relay.
//
// # Handlers
//
//   - ChatHandler: POST /v1/chat/completions, streaming or not
//   - NewModelsHandler: GET /v1/models, served from a JSON file with a
//     built-in fallback list
//   - InfoHandler: GET /, service name, version and endpoint index
//   - AdminHandler: key administration under /admin/api-keys
//
// Authentication is not handled here. The server mounts these handlers
// behind the auth gate, and AdminHandler additionally behind
// auth.Authorizer.RequireAdmin.
//
// # Chat Request Flow
//
//  1. Decode and validate the body (proxy.ParseChatCompletionRequest)
//  2. Apply the default model when none is named
//  3. Answer requests without messages locally
//  4. Take a slot from the concurrency gate, or fail with 503 server_busy
//  5. Forward upstream, streaming through proxy.StreamPipeline if asked
//
// # Error Handling
//
// All handlers return errors in OpenAI-compatible format:
//
//	{
//	  "error": {
//	    "message": "name is required",
//	    "type": "invalid_request_error",
//	    "param": "name",
//	    "code": "missing_field"
//	  }
//	}
//
// A stream that has already sent events cannot change its status. Upstream
// failures after that point end the stream without the [DONE] sentinel, and
// a stream cut short by shutdown aborts the connection.
package handlers
