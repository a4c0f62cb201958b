package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"mercator-hq/relay/pkg/providers"
)

// maxEventSize bounds a single SSE line.
const maxEventSize = 1 << 20

// streamReader reads Server-Sent Events from an upstream stream.
type streamReader struct {
	name    string
	body    io.ReadCloser
	scanner *bufio.Scanner
	closed  bool
}

// newStreamReader posts req and returns a reader over the response body.
func newStreamReader(ctx context.Context, p *Provider, req *chatRequest) (*streamReader, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := p.DoRequest(ctx, "POST", p.baseURL+"/chat/completions", body, p.headers(true))
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	return &streamReader{
		name:    p.GetName(),
		body:    resp.Body,
		scanner: scanner,
	}, nil
}

// Read returns the next event as a chunk, or io.EOF at "[DONE]" or the end
// of the body. Lines other than non-empty "data:" fields are skipped.
func (s *streamReader) Read(ctx context.Context) (*providers.StreamChunk, error) {
	if s.closed {
		return nil, io.EOF
	}

	for s.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, ok := strings.CutPrefix(s.scanner.Text(), "data:")
		data = strings.TrimSpace(data)
		switch {
		case !ok || data == "":
			continue
		case data == "[DONE]":
			return nil, io.EOF
		}
		return s.decode(data)
	}

	err := s.scanner.Err()
	switch {
	case err == nil:
		return nil, io.EOF
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}
	return nil, &providers.StreamError{Provider: s.name, Message: "failed to read stream", Cause: err}
}

func (s *streamReader) decode(data string) (*providers.StreamChunk, error) {
	var event streamEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, &providers.ParseError{
			Provider:    s.name,
			RawResponse: data,
			Cause:       fmt.Errorf("failed to parse stream chunk: %w", err),
		}
	}
	if event.Error != nil {
		return nil, &providers.ProviderError{Provider: s.name, Message: event.Error.Message}
	}
	return event.chunk(), nil
}

// Close closes the response body.
func (s *streamReader) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
