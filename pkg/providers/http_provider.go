package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/relay/pkg/telemetry/tracing"
)

// maxErrorBody caps how much of an upstream error body is kept in errors.
const maxErrorBody = 4096

// HTTPProvider is the shared HTTP plumbing for upstream adapters: pooled
// connections, retries with exponential backoff, typed error mapping and
// health bookkeeping. Adapters embed it and implement the wire format.
type HTTPProvider struct {
	healthTracker

	config ProviderConfig
	client *http.Client

	// healthCheck is the adapter's probe used by the background checker.
	healthCheck func(ctx context.Context) error

	closeOnce          sync.Once
	stopHealthCheck    chan struct{}
	healthCheckStopped chan struct{}
	checkerStarted     atomic.Bool
}

// NewHTTPProvider creates the base provider. The client carries no overall
// timeout so streams can outlive it; Timeout bounds the wait for response
// headers instead, and non-streaming calls add their own deadline.
func NewHTTPProvider(config ProviderConfig) *HTTPProvider {
	if config.RetryBackoff == 0 {
		config.RetryBackoff = time.Second
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		ResponseHeaderTimeout: config.Timeout,
		ForceAttemptHTTP2:     true,
	}

	return &HTTPProvider{
		healthTracker:      newHealthTracker(config.Name),
		config:             config,
		client:             &http.Client{Transport: transport},
		stopHealthCheck:    make(chan struct{}),
		healthCheckStopped: make(chan struct{}),
	}
}

// GetName returns the configured upstream name.
func (p *HTTPProvider) GetName() string {
	return p.config.Name
}

// GetConfig returns the adapter configuration.
func (p *HTTPProvider) GetConfig() ProviderConfig {
	return p.config
}

// DoRequest sends one logical request upstream. Transport failures and 5xx
// answers are retried up to MaxRetries times, waiting RetryBackoff doubled
// per attempt; any other non-2xx answer fails immediately. A successful
// response is returned with its body open for the caller.
func (p *HTTPProvider) DoRequest(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := p.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		resp, retry, err := p.attempt(ctx, method, url, body, headers)
		if err == nil {
			return resp, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
		slog.WarnContext(ctx, "upstream attempt failed",
			"provider", p.config.Name,
			"attempt", attempt+1,
			"error", err,
		)
	}

	p.updateHealth(false, lastErr)
	return nil, lastErr
}

// backoff sleeps before retry number attempt, or returns early when ctx ends.
func (p *HTTPProvider) backoff(ctx context.Context, attempt int) error {
	delay := p.config.RetryBackoff << (attempt - 1)
	slog.DebugContext(ctx, "retrying upstream request",
		"provider", p.config.Name,
		"attempt", attempt,
		"backoff", delay,
	)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return p.contextError(ctx)
	case <-timer.C:
		return nil
	}
}

// attempt performs a single round trip. retry reports whether a failure is
// transient.
func (p *HTTPProvider) attempt(ctx context.Context, method, url string, body []byte, headers map[string]string) (resp *http.Response, retry bool, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	tracing.Inject(ctx, req.Header)
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err = p.client.Do(req)
	if err != nil {
		p.recordRequest(false)
		if ctx.Err() != nil {
			return nil, false, p.contextError(ctx)
		}
		return nil, true, &ProviderError{Provider: p.config.Name, Message: "request failed", Cause: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		p.recordRequest(true)
		p.updateHealth(true, nil)
		return resp, false, nil
	}

	p.recordRequest(false)
	err = p.statusError(resp)
	var authErr *AuthError
	if errors.As(err, &authErr) {
		p.updateHealth(false, err)
	}
	return nil, resp.StatusCode >= 500, err
}

// statusError drains and closes a non-2xx response and maps it to a typed
// error.
func (p *HTTPProvider) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	msg := string(raw)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Provider: p.config.Name, Message: msg}
	case http.StatusTooManyRequests:
		return &RateLimitError{
			Provider:   p.config.Name,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    msg,
		}
	default:
		return &ProviderError{Provider: p.config.Name, StatusCode: resp.StatusCode, Message: msg}
	}
}

// DoJSONRequest marshals reqBody, sends it with DoRequest and decodes the
// reply into respBody. Undecodable replies become a ParseError carrying the
// raw body.
func (p *HTTPProvider) DoJSONRequest(ctx context.Context, method, url string, reqBody, respBody interface{}, headers map[string]string) error {
	var payload []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = b
	}

	resp, err := p.DoRequest(ctx, method, url, payload, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	switch {
	case err != nil && ctx.Err() != nil:
		return p.contextError(ctx)
	case err != nil:
		return &ParseError{Provider: p.config.Name, Cause: fmt.Errorf("failed to read response: %w", err)}
	case respBody == nil || len(raw) == 0:
		return nil
	}

	if err := json.Unmarshal(raw, respBody); err != nil {
		return &ParseError{
			Provider:    p.config.Name,
			RawResponse: string(raw),
			Cause:       fmt.Errorf("failed to unmarshal response: %w", err),
		}
	}
	return nil
}

// contextError maps a finished context to the error callers expect: a
// TimeoutError for deadlines, the context error itself for cancellation.
func (p *HTTPProvider) contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Provider: p.config.Name, Timeout: p.config.Timeout}
	}
	return ctx.Err()
}

// Close stops the health checker, if running, and drops idle connections.
func (p *HTTPProvider) Close() error {
	p.closeOnce.Do(func() {
		close(p.stopHealthCheck)

		if p.checkerStarted.Load() {
			select {
			case <-p.healthCheckStopped:
			case <-time.After(5 * time.Second):
				slog.Warn("health checker did not stop in time", "provider", p.config.Name)
			}
		}

		p.client.CloseIdleConnections()
		slog.Info("upstream provider closed", "provider", p.config.Name)
	})
	return nil
}

// parseRetryAfter parses a Retry-After header in delay-seconds or HTTP-date form.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}
