package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/relay/pkg/limits"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/proxy/middleware"
	"mercator-hq/relay/pkg/proxy/types"
	"mercator-hq/relay/pkg/security/auth"
	"mercator-hq/relay/pkg/telemetry/logging"
	"mercator-hq/relay/pkg/telemetry/metrics"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

// ChatHandler serves POST /v1/chat/completions.
//
// Requests without messages are answered locally by the synthesizer.
// Everything else passes the concurrency gate and is forwarded to the
// upstream provider, streamed through a proxy.StreamPipeline when the client
// asked for a stream.
type ChatHandler struct {
	provider     providers.Provider
	defaultModel string

	gate    *limits.ConcurrencyGate
	synth   *proxy.ResponseSynthesizer
	metrics *metrics.Collector
	tracer  *tracing.Tracer
}

// ChatOption configures a ChatHandler.
type ChatOption func(*ChatHandler)

// WithGate installs the admission gate. Without one every request is admitted.
func WithGate(g *limits.ConcurrencyGate) ChatOption {
	return func(h *ChatHandler) {
		h.gate = g
	}
}

// WithMetrics reports stream and upstream metrics to c.
func WithMetrics(c *metrics.Collector) ChatOption {
	return func(h *ChatHandler) {
		h.metrics = c
	}
}

// WithTracer records a span per chat request.
func WithTracer(t *tracing.Tracer) ChatOption {
	return func(h *ChatHandler) {
		h.tracer = t
	}
}

// NewChatHandler creates a chat handler forwarding to provider. defaultModel
// is used for requests that do not name a model.
func NewChatHandler(provider providers.Provider, defaultModel string, opts ...ChatOption) *ChatHandler {
	h := &ChatHandler{
		provider:     provider,
		defaultModel: defaultModel,
		synth:        proxy.NewResponseSynthesizer(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.gate == nil {
		h.gate = limits.NewConcurrencyGate(0)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		writeError(ctx, w, types.NewInvalidRequestError(
			fmt.Sprintf("Method %s not allowed. Use POST instead.", r.Method),
			"method",
			"method_not_allowed",
		))
		return
	}

	chatReq, err := proxy.ParseChatCompletionRequest(r)
	if err != nil {
		slog.WarnContext(ctx, "rejected chat completion request", "error", err)
		writeError(ctx, w, proxy.HandleError(err))
		return
	}

	if chatReq.Model == "" {
		chatReq.Model = h.defaultModel
	}
	ctx = logging.WithModel(ctx, chatReq.Model)

	ctx, span := h.tracer.Start(ctx, "chat.completions")
	defer span.End()

	var keyName string
	if id, ok := auth.IdentityFromContext(ctx); ok {
		keyName = id.Name()
	}
	meta := proxy.ExtractRequestMetadata(r, chatReq, middleware.GetRequestID(ctx), keyName)
	tracing.SetRequestAttributes(span, keyName, chatReq.Model, chatReq.Stream, meta.MessageCount)
	slog.LogAttrs(ctx, slog.LevelInfo, "processing chat completion request", meta.LogAttrs()...)

	if !chatReq.HasContent() {
		h.synthesize(ctx, w, chatReq)
		return
	}

	if err := h.gate.Acquire(ctx); err != nil {
		slog.WarnContext(ctx, "no admission slot before request ended",
			"limit", h.gate.Limit(),
			"waiting", h.gate.Waiting(),
		)
		tracing.SetStatus(span, err)
		writeError(ctx, w, types.NewServerBusyError("Server is busy, please retry later"))
		return
	}
	defer h.gate.Release()

	providerReq := proxy.ToCompletionRequest(chatReq)
	if chatReq.Stream {
		h.stream(ctx, w, span, providerReq, meta)
		return
	}
	h.complete(ctx, w, span, providerReq, meta)
}

// synthesize answers a request that has nothing to send upstream.
func (h *ChatHandler) synthesize(ctx context.Context, w http.ResponseWriter, req *types.ChatCompletionRequest) {
	slog.InfoContext(ctx, "request has no messages, answering locally", "stream", req.Stream)

	if req.Stream {
		if err := proxy.WriteSynthesizedStream(w, h.synth.Chunk(req.Model)); err != nil {
			slog.InfoContext(ctx, "client went away during synthesized stream", "error", err)
		}
		return
	}
	if err := proxy.WriteJSONResponse(w, http.StatusOK, h.synth.Completion(req.Model)); err != nil {
		slog.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// complete handles a non-streaming request.
func (h *ChatHandler) complete(ctx context.Context, w http.ResponseWriter, span trace.Span, req *providers.CompletionRequest, meta *proxy.RequestMetadata) {
	start := time.Now()
	resp, err := h.provider.SendCompletion(ctx, req)
	latency := time.Since(start)
	h.metrics.RecordUpstreamLatency(req.Model, latency)

	if err != nil {
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "client disconnected before completion", "error", err)
			return
		}
		h.upstreamFailed(ctx, span, err)
		writeError(ctx, w, proxy.HandleError(err))
		return
	}
	tracing.SetStatus(span, nil)

	slog.InfoContext(ctx, "chat completion successful",
		"provider", h.provider.GetName(),
		"finish_reason", resp.FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"provider_latency_ms", latency.Milliseconds(),
		"total_latency_ms", meta.Elapsed().Milliseconds(),
	)

	if err := proxy.WriteJSONResponse(w, http.StatusOK, proxy.FormatChatCompletionResponse(resp, req.Model)); err != nil {
		slog.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// stream handles a streaming request. A stream cut off by server shutdown
// aborts the connection so the client sees a broken stream rather than a
// clean end.
func (h *ChatHandler) stream(ctx context.Context, w http.ResponseWriter, span trace.Span, req *providers.CompletionRequest, meta *proxy.RequestMetadata) {
	upstreamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	chunks, err := h.provider.StreamCompletion(upstreamCtx, req)
	h.metrics.RecordUpstreamLatency(req.Model, time.Since(start))
	if err != nil {
		if ctx.Err() != nil && !errors.Is(context.Cause(ctx), proxy.ErrServerShutdown) {
			slog.InfoContext(ctx, "client disconnected before stream opened", "error", err)
			return
		}
		h.upstreamFailed(ctx, span, err)
		writeError(ctx, w, proxy.HandleError(err))
		return
	}

	h.metrics.StreamStarted()
	res := proxy.NewStreamPipeline(proxy.CompletionID(uuid.NewString()), req.Model).Run(ctx, w, chunks)
	// Stop the producer before anything else; it may be blocked on a send.
	cancel()

	h.metrics.StreamFinished(req.Model, string(res.State), res.Units, time.Since(start))
	tracing.SetStreamResult(span, string(res.State), res.Units)

	switch res.State {
	case proxy.StreamUpstreamError:
		// The pipeline has already logged the failure.
		h.metrics.RecordUpstreamError(proxy.UpstreamErrorKind(res.Err))
		tracing.SetStatus(span, res.Err)
	case proxy.StreamCancelled:
		tracing.SetStatus(span, res.Err)
		panic(http.ErrAbortHandler)
	default:
		tracing.SetStatus(span, nil)
	}

	slog.InfoContext(ctx, "stream finished",
		"state", res.State,
		"units", res.Units,
		"total_latency_ms", meta.Elapsed().Milliseconds(),
	)
}

func (h *ChatHandler) upstreamFailed(ctx context.Context, span trace.Span, err error) {
	kind := proxy.UpstreamErrorKind(err)
	h.metrics.RecordUpstreamError(kind)
	tracing.SetStatus(span, err)
	slog.ErrorContext(ctx, "upstream request failed",
		"provider", h.provider.GetName(),
		"kind", kind,
		"error", err,
	)
}

// writeError writes an OpenAI error envelope, logging write failures.
func writeError(ctx context.Context, w http.ResponseWriter, errResp *types.ErrorResponse) {
	if err := proxy.WriteErrorResponse(w, errResp); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}
