package middleware

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// StartTimeKey stores the request start time for latency calculation.
// Request IDs live in the logging package's context so that every log
// line carries them.
const StartTimeKey contextKey = "start_time"
