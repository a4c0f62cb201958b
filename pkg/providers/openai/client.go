package openai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"mercator-hq/relay/pkg/providers"
)

// Provider talks to an OpenAI-compatible chat completions endpoint.
type Provider struct {
	*providers.HTTPProvider
	baseURL string
	apiKey  string
}

var _ providers.Provider = (*Provider)(nil)

// NewProvider creates an adapter for config. BaseURL is the API root that
// "/chat/completions" and "/models" are appended to.
func NewProvider(config providers.ProviderConfig) (*Provider, error) {
	if config.Name == "" {
		config.Name = "openai"
	}
	if config.BaseURL == "" {
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "base_url",
			Message:  "base URL is required",
		}
	}

	p := &Provider{
		HTTPProvider: providers.NewHTTPProvider(config),
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		apiKey:       config.APIKey,
	}
	p.SetHealthCheck(p.checkModels)
	return p, nil
}

func (p *Provider) headers(stream bool) map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	if p.apiKey != "" {
		h["Authorization"] = "Bearer " + p.apiKey
	}
	if stream {
		h["Accept"] = "text/event-stream"
	}
	return h
}

// SendCompletion sends a non-streaming request.
func (p *Provider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	if timeout := p.GetConfig().Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var raw chatResponse
	body := newChatRequest(req, false)
	if err := p.DoJSONRequest(ctx, http.MethodPost, p.baseURL+"/chat/completions", body, &raw, p.headers(false)); err != nil {
		return nil, err
	}

	resp := raw.completion()
	if resp.Content == "" && len(resp.ToolCalls) == 0 {
		return nil, &providers.EmptyResponseError{
			Provider:     p.GetName(),
			Model:        req.Model,
			FinishReason: resp.FinishReason,
		}
	}
	return resp, nil
}

// StreamCompletion starts a streaming request. Events that carry no content
// before the first content event (role announcements, a bare finish reason)
// are dropped, so the first chunk received is always a content chunk; a
// stream that never produces content ends with *EmptyResponseError.
func (p *Provider) StreamCompletion(ctx context.Context, req *providers.CompletionRequest) (<-chan *providers.StreamChunk, error) {
	reader, err := newStreamReader(ctx, p, newChatRequest(req, true))
	if err != nil {
		return nil, err
	}

	out := make(chan *providers.StreamChunk)
	go p.pump(ctx, reader, req.Model, out)
	return out, nil
}

func (p *Provider) pump(ctx context.Context, reader providers.StreamReader, model string, out chan<- *providers.StreamChunk) {
	defer close(out)
	defer reader.Close()

	send := func(chunk *providers.StreamChunk) bool {
		select {
		case out <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	sawContent := false
	var finishReason string
	for {
		chunk, err := reader.Read(ctx)
		if errors.Is(err, io.EOF) {
			if !sawContent {
				send(&providers.StreamChunk{Error: &providers.EmptyResponseError{
					Provider:     p.GetName(),
					Model:        model,
					FinishReason: finishReason,
				}})
			}
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				slog.DebugContext(ctx, "upstream stream abandoned", "provider", p.GetName())
				return
			}
			send(&providers.StreamChunk{Error: err})
			return
		}

		if !sawContent && !chunk.HasContent() {
			if chunk.FinishReason != "" {
				finishReason = chunk.FinishReason
			}
			continue
		}
		sawContent = true
		if !send(chunk) {
			return
		}
	}
}

// checkModels probes GET /models.
func (p *Provider) checkModels(ctx context.Context) error {
	resp, err := p.DoRequest(ctx, http.MethodGet, p.baseURL+"/models", nil, p.headers(false))
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}
