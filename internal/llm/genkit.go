package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/garcomlabs/garcom/internal/log"
)

// RetryConfig configures the retry behavior for model calls.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// GenkitProvider is the production Provider on top of a Genkit instance.
// Every call is rate-limited, retried with exponential backoff on
// transient errors, bounded by a timeout, and guarded by a circuit
// breaker.
type GenkitProvider struct {
	g           *genkit.Genkit
	modelName   string
	temperature float32
	timeout     time.Duration
	retry       RetryConfig
	breaker     *CircuitBreaker
	limiter     *rate.Limiter
	logger      log.Logger
}

// ProviderOption customizes the GenkitProvider.
type ProviderOption func(*GenkitProvider)

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) ProviderOption {
	return func(p *GenkitProvider) { p.timeout = d }
}

// WithRetry replaces the default retry config.
func WithRetry(cfg RetryConfig) ProviderOption {
	return func(p *GenkitProvider) { p.retry = cfg }
}

// WithCircuitBreaker replaces the default circuit breaker.
func WithCircuitBreaker(cb *CircuitBreaker) ProviderOption {
	return func(p *GenkitProvider) { p.breaker = cb }
}

// WithRateLimit caps outbound calls per second.
func WithRateLimit(rps float64, burst int) ProviderOption {
	return func(p *GenkitProvider) { p.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) ProviderOption {
	return func(p *GenkitProvider) { p.temperature = t }
}

// NewGenkitProvider creates a provider for the given model.
// modelName must be provider-qualified, e.g. "googleai/gemini-2.5-flash".
func NewGenkitProvider(g *genkit.Genkit, modelName string, logger log.Logger, opts ...ProviderOption) *GenkitProvider {
	p := &GenkitProvider{
		g:           g,
		modelName:   modelName,
		temperature: 0.4,
		timeout:     60 * time.Second,
		retry:       DefaultRetryConfig(),
		breaker:     NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		logger:      logger.With("component", "llm"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate implements Provider. Tool requests are returned to the caller,
// never executed here: WithReturnToolRequests stops Genkit's own tool loop
// so the engine can enforce the allow-list at execution time.
func (p *GenkitProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := p.breaker.Allow(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	refs := make([]ai.ToolRef, 0, len(req.ToolNames))
	for _, name := range req.ToolNames {
		tool := genkit.LookupTool(p.g, name)
		if tool == nil {
			p.logger.Warn("allowed tool not registered with genkit, skipping", "tool", name)
			continue
		}
		refs = append(refs, tool)
	}

	resp, err := p.generateWithRetry(ctx, req, refs)
	if err != nil {
		p.breaker.Failure()
		return nil, err
	}
	p.breaker.Success()

	out := &Response{Text: resp.Text()}
	for _, tr := range resp.ToolRequests() {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			Ref:   tr.Ref,
			Name:  tr.Name,
			Input: tr.Input,
		})
	}
	return out, nil
}

func (p *GenkitProvider) generateWithRetry(ctx context.Context, req *Request, refs []ai.ToolRef) (*ai.ModelResponse, error) {
	var lastErr error
	delay := p.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := genkit.Generate(ctx, p.g,
			ai.WithModelName(p.modelName),
			ai.WithSystem(req.System),
			ai.WithMessages(ai.NewUserMessage(ai.NewTextPart(req.Turn))),
			ai.WithTools(refs...),
			ai.WithReturnToolRequests(true),
			ai.WithConfig(map[string]any{"temperature": p.temperature}),
		)
		if err == nil {
			p.logger.Debug("model call succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start))
			return resp, nil
		}

		lastErr = err
		if !retryableError(err) {
			return nil, fmt.Errorf("generate: %w", err)
		}
		if attempt == p.retry.MaxRetries {
			break
		}

		p.logger.Debug("retrying model call",
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, p.retry.MaxInterval)
		}
	}

	return nil, fmt.Errorf("generate after %d retries (elapsed: %v): %w",
		p.retry.MaxRetries, time.Since(start), lastErr)
}

// retryableError determines if an error should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())

	// Rate limits and transient server or network errors.
	for _, sub := range []string{
		"rate limit", "quota exceeded", "429",
		"500", "502", "503", "504", "unavailable",
		"connection reset", "timeout", "temporary",
	} {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
