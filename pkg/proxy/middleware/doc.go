// Package middleware provides HTTP middleware for cross-cutting concerns.
//
// # Middleware Chain
//
// The server composes the chain outermost first:
//
//	handler = Recovery(RequestID(Tracing(Logging(KeepAlive(CORS(auth(mux)))))))
//
// Recovery is outermost so it sees panics from every layer. RequestID runs
// before Logging so the "request completed" line carries the ID. CORS sits
// outside authentication so preflight requests need no credential.
// TimeoutMiddleware is applied per route, to administrative routes only;
// streams are long-lived by nature and bounded by the server write timeout.
//
// # Request ID
//
// RequestIDMiddleware reuses a client-supplied X-Request-ID or generates a
// UUID v4:
//
//	X-Request-ID: 550e8400-e29b-41d4-a716-446655440000
//
// The ID is stored through logging.WithRequestID, so any slog call made with
// the request context is annotated with it.
//
// # Logging
//
// LoggingMiddleware writes one structured line per request and forwards the
// observation to a RequestRecorder (the Prometheus collector). Its response
// writer wrapper implements Flush and Unwrap, so SSE responses stream
// through it unchanged.
//
// # Recovery
//
// RecoveryMiddleware converts panics into a 500 OpenAI error envelope:
//
//	{
//	  "error": {
//	    "message": "An internal error occurred. Please try again later.",
//	    "type": "server_error",
//	    "code": "internal_error"
//	  }
//	}
//
// http.ErrAbortHandler passes through untouched. Handlers panic with it to
// abort a response whose headers are already on the wire.
package middleware
