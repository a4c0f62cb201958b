// Package providers defines the upstream side of the relay: the Provider
// interface, provider-agnostic request and response types, the typed errors
// the proxy classifies into HTTP outcomes, and HTTPProvider, the shared HTTP
// client that adapters embed.
//
// # Error taxonomy
//
// Adapters report failures with the types in errors.go. The proxy maps
// *EmptyResponseError (the upstream succeeded but returned nothing usable)
// to its own status so clients and monitors can tell it apart from every
// other upstream failure.
//
// # Streaming
//
// StreamCompletion returns a channel of *StreamChunk. A failure after the
// call started arrives as a final chunk with Error set, after which the
// channel is closed:
//
//	chunks, err := provider.StreamCompletion(ctx, req)
//	if err != nil {
//	    return err
//	}
//	for chunk := range chunks {
//	    if chunk.Error != nil {
//	        return chunk.Error
//	    }
//	    fmt.Print(chunk.Delta)
//	}
//
// # Health
//
// HTTPProvider tracks request outcomes; three consecutive failures mark the
// upstream unhealthy. StartHealthChecker probes it periodically with
// exponential backoff while unhealthy. The server exposes the result as a
// readiness check.
package providers
