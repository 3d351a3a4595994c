// Package llm routes chat completions to the supported vendors.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/helix-collective/z88/internal/config"
	"github.com/helix-collective/z88/internal/core"
	"github.com/helix-collective/z88/internal/logging"
	"github.com/helix-collective/z88/internal/telemetry"
)

const scope = "github.com/helix-collective/z88/llm"

// backend is one vendor SDK binding.
type backend interface {
	complete(ctx context.Context, model string, messages []core.Message, opts core.CallOptions) (*core.Completion, error)
}

// ProbePrompt is sent by TestAll.
const ProbePrompt = "Say 'OK' if you can hear me."

// Router implements core.LLM over every configured provider.
type Router struct {
	backends map[core.Provider]backend
	models   map[core.Provider]string
	limiter  *LimiterRegistry
	retry    RetryPolicy
	timeout  time.Duration
	logger   *logging.Logger

	metricsOnce sync.Once
	calls       metric.Int64Counter
	tokens      metric.Int64Counter
	duration    metric.Float64Histogram
}

// Option customizes a Router.
type Option func(*routerOptions)

type routerOptions struct {
	httpClient *http.Client
	logger     *logging.Logger
}

// WithHTTPClient sets the HTTP client used by every vendor SDK.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *routerOptions) { o.httpClient = hc }
}

// WithLogger sets the router logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *routerOptions) { o.logger = l }
}

// NewRouter builds a backend for each provider that has an API key.
func NewRouter(ctx context.Context, providers config.ProvidersConfig, llmCfg config.LLMConfig, opts ...Option) (*Router, error) {
	o := routerOptions{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Router{
		backends: make(map[core.Provider]backend),
		models:   make(map[core.Provider]string),
		limiter:  NewLimiterRegistry(llmCfg.RequestsPerMinute),
		retry: RetryPolicy{
			MaxRetries:     llmCfg.MaxRetries,
			InitialBackoff: llmCfg.InitialBackoff,
			MaxBackoff:     llmCfg.MaxBackoff,
		},
		timeout: llmCfg.RequestTimeout,
		logger:  o.logger,
	}

	for _, p := range core.AllProviders() {
		pc := providers.Get(p)
		r.models[p] = pc.Model
		if !pc.Configured() {
			continue
		}
		switch p {
		case core.ProviderOpenAI, core.ProviderXAI, core.ProviderPerplexity:
			r.backends[p] = newChatCompletions(p, pc, o.httpClient)
		case core.ProviderAnthropic:
			r.backends[p] = newMessagesAPI(pc, o.httpClient)
		case core.ProviderGoogle:
			b, err := newGenerateContent(ctx, pc, o.httpClient)
			if err != nil {
				return nil, err
			}
			r.backends[p] = b
		}
	}
	return r, nil
}

// Configured lists providers with credentials, in display order.
func (r *Router) Configured() []core.Provider {
	var out []core.Provider
	for _, p := range core.AllProviders() {
		if _, ok := r.backends[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Model returns the model used for p.
func (r *Router) Model(p core.Provider) string {
	return r.models[p]
}

func (r *Router) initMetrics() {
	m := telemetry.Meter(scope)
	r.calls, _ = m.Int64Counter("z88.llm.calls",
		metric.WithDescription("LLM completions by provider and outcome"),
	)
	r.tokens, _ = m.Int64Counter("z88.llm.tokens",
		metric.WithDescription("Tokens consumed by LLM completions"),
		metric.WithUnit("{token}"),
	)
	r.duration, _ = m.Float64Histogram("z88.llm.request.duration",
		metric.WithDescription("LLM request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

// Call sends messages to provider, applying defaults for zero options.
func (r *Router) Call(ctx context.Context, provider core.Provider, messages []core.Message, opts core.CallOptions) (*core.Completion, error) {
	if !provider.Valid() {
		return nil, core.ErrValidation(core.CodeUnknownProvider, fmt.Sprintf("unsupported provider: %s", provider))
	}
	b, ok := r.backends[provider]
	if !ok {
		e := core.ErrAuth(fmt.Sprintf("%s is not configured", provider))
		e.Code = core.CodeProviderDisabled
		return nil, e
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = core.DefaultMaxTokens
	}
	opts.Temperature = core.Clamp(opts.Temperature, 0, 2)

	r.metricsOnce.Do(r.initMetrics)
	model := r.models[provider]
	log := r.logger.WithProvider(string(provider)).With("model", model)

	ctx, span := telemetry.Tracer(scope).Start(ctx, "llm.call")
	defer span.End()
	span.SetAttributes(
		attribute.String("z88.llm.provider", string(provider)),
		attribute.String("z88.llm.model", model),
		attribute.Float64("z88.llm.temperature", opts.Temperature),
		attribute.Int("z88.llm.max_tokens", opts.MaxTokens),
	)

	start := time.Now()
	attempts := 0
	var resp *core.Completion
	err := r.retry.Do(ctx, func() error {
		attempts++
		if err := r.limiter.Wait(ctx, provider); err != nil {
			return err
		}
		callCtx, cancel := r.callContext(ctx)
		defer cancel()

		out, err := b.complete(callCtx, model, messages, opts)
		if err != nil {
			return classify(provider, err)
		}
		resp = out
		return nil
	}, func(err error, wait time.Duration) {
		log.Warn("retrying provider call", "attempt", attempts, "wait", wait, "error", err)
	})

	elapsed := time.Since(start)
	providerAttr := attribute.String("provider", string(provider))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.calls.Add(ctx, 1, metric.WithAttributes(providerAttr, attribute.String("outcome", "error")))
		log.Error("provider call failed", "attempts", attempts, "duration", elapsed, "error", err)
		return nil, err
	}

	r.calls.Add(ctx, 1, metric.WithAttributes(providerAttr, attribute.String("outcome", "ok")))
	r.tokens.Add(ctx, int64(resp.Usage.TotalTokens), metric.WithAttributes(providerAttr))
	r.duration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(providerAttr))
	span.SetAttributes(
		attribute.Int("z88.llm.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("z88.llm.completion_tokens", resp.Usage.CompletionTokens),
		attribute.Int("z88.llm.attempts", attempts),
	)
	log.Debug("provider call complete",
		"tokens", resp.Usage.TotalTokens,
		"attempts", attempts,
		"duration", elapsed,
	)
	return resp, nil
}

func (r *Router) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return context.WithCancel(ctx)
}

// TestAll probes every provider concurrently. Unconfigured providers
// report false without a network call.
func (r *Router) TestAll(ctx context.Context) map[core.Provider]bool {
	providers := core.AllProviders()
	results := make([]bool, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		if _, ok := r.backends[p]; !ok {
			continue
		}
		g.Go(func() error {
			resp, err := r.Call(gctx, p, []core.Message{
				core.SystemMessage("You are a helpful assistant."),
				core.UserMessage(ProbePrompt),
			}, core.CallOptions{Temperature: core.DefaultTemperature, MaxTokens: 10})
			if err != nil {
				r.logger.WithProvider(string(p)).Warn("provider probe failed", "error", err)
				return nil
			}
			results[i] = resp.Content != ""
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[core.Provider]bool, len(providers))
	for i, p := range providers {
		out[p] = results[i]
	}
	return out
}
