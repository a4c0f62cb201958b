// Package logging configures structured logging for the relay.
//
// # Overview
//
// The package builds a log/slog logger that:
//   - Writes JSON or text output at a configurable level
//   - Masks client secrets and bearer tokens in attribute values
//   - Adds request-scoped fields (request_id, key_name, model) from the context
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:         "info",
//	    Format:        "json",
//	    RedactSecrets: true,
//	})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
//
//	ctx = logging.WithRequestID(ctx, "7f0c...")
//	slog.InfoContext(ctx, "stream finished", "units", 3) // includes request_id
//
// # Redaction
//
// Values are rewritten before they reach the output handler:
//
//   - Client secrets: sk-AbC123... → sk-***
//   - Authorization headers: Bearer sk-AbC123... → Bearer ***
//   - Attributes named like credentials (secret, token, authorization,
//     api_key, password) keep at most a four character prefix
package logging
