package providers

import "context"

// Provider is the upstream model backend the relay forwards chat requests to.
//
// All methods accept a context.Context; implementations must stop work and
// release connections as soon as the context ends.
type Provider interface {
	// SendCompletion sends a non-streaming completion request.
	//
	// A successful upstream call that yields neither content nor tool calls
	// is reported as *EmptyResponseError.
	SendCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// StreamCompletion starts a streaming completion request and returns a
	// channel of incremental chunks. The channel is closed when the upstream
	// stream ends. A failure during streaming is delivered as a final chunk
	// with Error set; a stream that ends without producing any content
	// delivers *EmptyResponseError that way.
	//
	// Cancelling ctx aborts the upstream request and closes the channel.
	//
	//  chunks, err := provider.StreamCompletion(ctx, req)
	//  if err != nil {
	//      return err
	//  }
	//  for chunk := range chunks {
	//      if chunk.Error != nil {
	//          return chunk.Error
	//      }
	//      fmt.Print(chunk.Delta)
	//  }
	StreamCompletion(ctx context.Context, req *CompletionRequest) (<-chan *StreamChunk, error)

	// HealthCheck sends a lightweight request to verify the upstream is
	// reachable. Returns nil when healthy.
	HealthCheck(ctx context.Context) error

	// GetName returns the configured upstream name.
	GetName() string

	// IsHealthy reports the last observed health state.
	IsHealthy() bool

	// GetHealth returns detailed health information.
	GetHealth() ProviderHealth

	// Close releases HTTP connections and stops background checks.
	Close() error
}

// StreamReader abstracts the wire protocol of an upstream stream.
type StreamReader interface {
	// Read returns the next chunk, or nil and io.EOF at the normal end of
	// the stream.
	Read(ctx context.Context) (*StreamChunk, error)

	// Close closes the stream and releases resources.
	Close() error
}
