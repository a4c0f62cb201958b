package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/proxy/types"
)

// StreamState is the lifecycle state of one relayed stream.
type StreamState string

// Stream states. Open and Streaming are transient; the rest are terminal.
const (
	StreamOpen               StreamState = "open"
	StreamStreaming          StreamState = "streaming"
	StreamCompleted          StreamState = "completed"
	StreamClientDisconnected StreamState = "client_disconnected"
	StreamUpstreamError      StreamState = "upstream_error"
	StreamCancelled          StreamState = "cancelled"
)

// StreamResult is the outcome of StreamPipeline.Run.
type StreamResult struct {
	State StreamState

	// Units is the number of content events written to the client
	Units int

	// Err is the upstream error for StreamUpstreamError and
	// ErrServerShutdown for StreamCancelled; nil otherwise
	Err error

	// HeadersSent reports whether a 200 event-stream response was committed
	HeadersSent bool
}

// StreamPipeline relays an upstream chunk sequence to a client as an SSE
// stream. Response headers are committed lazily, with the first content
// unit, so a failure before any content can still choose its status code.
//
// Before each unit is forwarded the request context is sampled. A cancelled
// context whose cause is ErrServerShutdown ends the stream as
// StreamCancelled and is returned to the caller; any other cancellation is
// the client going away and ends the stream silently.
type StreamPipeline struct {
	// ID is the completion ID stamped on every chunk
	ID string

	// Model is echoed in every chunk
	Model string

	logger *slog.Logger
}

// NewStreamPipeline creates a pipeline for one response.
func NewStreamPipeline(id, model string) *StreamPipeline {
	return &StreamPipeline{
		ID:     id,
		Model:  model,
		logger: slog.Default(),
	}
}

// Run consumes chunks until the upstream finishes, fails, or ctx ends.
// ctx must be the request context. Run drains nothing after it returns; the
// caller cancels the upstream call so the producer stops.
func (p *StreamPipeline) Run(ctx context.Context, w http.ResponseWriter, chunks <-chan *providers.StreamChunk) StreamResult {
	res := StreamResult{State: StreamOpen}

	for {
		select {
		case <-ctx.Done():
			return p.interrupted(ctx, res)

		case chunk, ok := <-chunks:
			if !ok {
				if res.Units == 0 {
					return p.fail(ctx, w, res, &providers.EmptyResponseError{Provider: "upstream", Model: p.Model})
				}
				if err := WriteSSEDone(w); err != nil {
					return p.disconnected(ctx, res, err)
				}
				res.State = StreamCompleted
				return res
			}

			if chunk.Error != nil {
				return p.fail(ctx, w, res, chunk.Error)
			}

			// The client may have gone away while we waited for this unit.
			if ctx.Err() != nil {
				return p.interrupted(ctx, res)
			}

			if !res.HeadersSent {
				SetSSEHeaders(w)
				w.WriteHeader(http.StatusOK)
				res.HeadersSent = true
				res.State = StreamStreaming
			}

			out := FormatStreamChunk(chunk, p.Model, p.ID, res.Units == 0)
			if err := WriteSSEChunk(w, out); err != nil {
				return p.disconnected(ctx, res, err)
			}
			res.Units++
		}
	}
}

// fail ends the stream with an upstream error. Before any content the error
// becomes the response status; afterwards the stream just stops, without
// the terminal marker, since headers are already committed.
func (p *StreamPipeline) fail(ctx context.Context, w http.ResponseWriter, res StreamResult, err error) StreamResult {
	res.State = StreamUpstreamError
	res.Err = err

	if !res.HeadersSent {
		_ = WriteErrorResponse(w, HandleError(err))
		p.logger.ErrorContext(ctx, "upstream failed before streaming",
			"error", err,
			"model", p.Model,
		)
		return res
	}

	p.logger.ErrorContext(ctx, "upstream failed mid-stream",
		"error", err,
		"model", p.Model,
		"units", res.Units,
	)
	return res
}

func (p *StreamPipeline) interrupted(ctx context.Context, res StreamResult) StreamResult {
	if errors.Is(context.Cause(ctx), ErrServerShutdown) {
		res.State = StreamCancelled
		res.Err = ErrServerShutdown
		p.logger.WarnContext(ctx, "stream cancelled by shutdown", "units", res.Units)
		return res
	}
	return p.disconnected(ctx, res, nil)
}

func (p *StreamPipeline) disconnected(ctx context.Context, res StreamResult, writeErr error) StreamResult {
	res.State = StreamClientDisconnected
	attrs := []any{"units", res.Units, "model", p.Model}
	if writeErr != nil {
		attrs = append(attrs, "error", writeErr)
	}
	p.logger.InfoContext(ctx, "client disconnected, stream stopped", attrs...)
	return res
}

// WriteSynthesizedStream writes a complete single-chunk stream for a
// locally synthesized chunk.
func WriteSynthesizedStream(w http.ResponseWriter, chunk *types.ChatCompletionStreamChunk) error {
	SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := WriteSSEChunk(w, chunk); err != nil {
		return err
	}
	return WriteSSEDone(w)
}
