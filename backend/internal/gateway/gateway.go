// Package gateway is the single point through which the pipeline calls the
// language model. It caches, rate limits, retries and parses every call and
// turns exhaustion into a typed failure instead of a panic.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"papergraph/backend/internal/adapter"
	"papergraph/backend/internal/cache"
	"papergraph/backend/internal/retry"
	apperrors "papergraph/backend/pkg/errors"
	"papergraph/backend/pkg/logger"
)

// PromptKind names what a prompt extracts; it is part of the cache key.
type PromptKind string

// Prompt is a versioned instruction plus the Go type the answer must decode into.
type Prompt struct {
	Kind    PromptKind
	Version string
	System  string
	Output  any // zero value of the expected result type; nil accepts any JSON
}

// Params bound a single invocation.
type Params struct {
	MaxAttempts int
	Timeout     time.Duration // per attempt
	MaxTokens   int           // completion budget
	InputTokens int           // input is truncated to this many tokens; 0 keeps it whole
	Temperature float32
	Simplified  bool
}

// Simplify returns the one-shot, reduced-budget variant used as the first
// fallback level after the full parameters fail.
func (p Params) Simplify() Params {
	s := p
	s.MaxAttempts = 1
	s.Timeout = p.Timeout / 2
	s.MaxTokens = p.MaxTokens / 2
	s.InputTokens = p.InputTokens / 2
	s.Simplified = true
	return s
}

// Result is a successfully parsed model answer.
type Result struct {
	Kind     PromptKind
	JSON     json.RawMessage
	Cached   bool
	Attempts int
}

// Generator produces one chat completion.
type Generator interface {
	Generate(ctx context.Context, req adapter.Request) (*adapter.Response, error)
}

// Embedder produces one embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbeddingModel() string
}

// Gateway wraps a Generator with caching, rate limiting and retries.
type Gateway struct {
	gen           Generator
	emb           Embedder
	cache         cache.Store
	limiter       *rate.Limiter
	truncator     Truncator
	promptVersion string
	fallbackModel string
	baseDelay     time.Duration
	maxDelay      time.Duration
	logger        *zap.Logger
}

// Option configures a Gateway
type Option func(*Gateway)

// WithEmbedder enables Embed.
func WithEmbedder(e Embedder) Option {
	return func(g *Gateway) { g.emb = e }
}

// WithRateLimit caps outbound requests per second; rps <= 0 means unlimited.
func WithRateLimit(rps float64) Option {
	return func(g *Gateway) {
		if rps > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithTruncator replaces the default rune-based input truncation.
func WithTruncator(t Truncator) Option {
	return func(g *Gateway) { g.truncator = t }
}

// WithPromptVersion sets the global prompt version mixed into every cache key.
func WithPromptVersion(v string) Option {
	return func(g *Gateway) { g.promptVersion = v }
}

// WithFallbackModel sets the model used for simplified invocations.
func WithFallbackModel(model string) Option {
	return func(g *Gateway) { g.fallbackModel = model }
}

// WithBackoff sets the base and maximum retry delay.
func WithBackoff(base, max time.Duration) Option {
	return func(g *Gateway) {
		g.baseDelay = base
		g.maxDelay = max
	}
}

// New creates a gateway. A nil generator yields a gateway whose every call
// fails with FailureDisabled, which drives extraction onto its rule fallbacks.
func New(gen Generator, store cache.Store, opts ...Option) *Gateway {
	g := &Gateway{
		gen:           gen,
		cache:         store,
		truncator:     RuneTruncator{},
		promptVersion: "v1",
		baseDelay:     2 * time.Second,
		maxDelay:      30 * time.Second,
		logger:        logger.Get(),
	}
	if g.cache == nil {
		g.cache = cache.NewMemoryStore()
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) policy(maxAttempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: maxAttempts,
		Backoff: retry.Split(apperrors.IsTimeout,
			retry.Exponential(g.baseDelay, g.maxDelay),
			retry.Linear(g.baseDelay),
		),
		IsRetryable: apperrors.IsRetryable,
	}
}

// Invoke runs prompt against input. On failure the error is always an
// *errors.ErrModelFailed.
func (g *Gateway) Invoke(ctx context.Context, prompt Prompt, input string, params Params) (*Result, error) {
	kind := string(prompt.Kind)
	if g.gen == nil {
		return nil, apperrors.NewModelFailed(kind, apperrors.FailureDisabled, 0, nil)
	}

	input = g.truncator.Truncate(input, params.InputTokens)
	key := cache.Key(input, kind, g.promptVersion+"/"+prompt.Version)

	if data, ok, err := g.cache.Get(ctx, key); err != nil {
		g.logger.Warn("cache read failed", zap.String("kind", kind), zap.Error(err))
	} else if ok {
		if raw, perr := decodeShape(data, prompt.Output); perr == nil {
			g.logger.Debug("cache hit", zap.String("kind", kind))
			return &Result{Kind: prompt.Kind, JSON: raw, Cached: true}, nil
		}
	}

	system := prompt.System
	if schema := SchemaFor(prompt.Output); schema != "" {
		system += "\n\nRespond with a single JSON object that validates against this JSON Schema:\n" + schema
	}
	model := ""
	if params.Simplified {
		model = g.fallbackModel
	}

	res, attempts, err := retry.Do(ctx, g.policy(params.MaxAttempts), func(ctx context.Context, attempt int) (*Result, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, apperrors.NewModelCall(apperrors.FailureCancelled, "rate limiter wait aborted", err)
			}
		}

		callCtx := ctx
		if params.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, params.Timeout)
			defer cancel()
		}

		resp, err := g.gen.Generate(callCtx, adapter.Request{
			SystemPrompt: system,
			UserMessage:  input,
			Model:        model,
			MaxTokens:    params.MaxTokens,
			Temperature:  params.Temperature,
			JSONMode:     true,
		})
		if err != nil {
			err = classifyAttempt(ctx, callCtx, err)
			g.logger.Warn("model attempt failed",
				zap.String("kind", kind),
				zap.Int("attempt", attempt),
				zap.String("failure", string(apperrors.KindOf(err))),
				zap.Error(err),
			)
			return nil, err
		}

		raw, err := decodeShape([]byte(resp.Content), prompt.Output)
		if err != nil {
			g.logger.Warn("model returned unusable output",
				zap.String("kind", kind),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return nil, apperrors.NewModelCall(apperrors.FailureMalformed, "unparseable model output", err)
		}
		return &Result{Kind: prompt.Kind, JSON: raw}, nil
	})
	if err != nil {
		failure := apperrors.KindOf(err)
		if ctx.Err() != nil {
			failure = apperrors.FailureCancelled
		}
		if failure == "" {
			failure = apperrors.FailurePermanent
		}
		return nil, apperrors.NewModelFailed(kind, failure, attempts, err)
	}

	res.Attempts = attempts
	if err := g.cache.Put(ctx, key, res.JSON); err != nil {
		g.logger.Warn("cache write failed", zap.String("kind", kind), zap.Error(err))
	}
	return res, nil
}

// Decode invokes prompt and unmarshals the result into out.
func (g *Gateway) Decode(ctx context.Context, prompt Prompt, input string, params Params, out any) (*Result, error) {
	res, err := g.Invoke(ctx, prompt, input, params)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(res.JSON, out); err != nil {
		return nil, apperrors.NewModelFailed(string(prompt.Kind), apperrors.FailureMalformed, res.Attempts, err)
	}
	return res, nil
}

// EmbeddingsEnabled reports whether Embed can succeed.
func (g *Gateway) EmbeddingsEnabled() bool {
	return g.emb != nil && g.emb.EmbeddingModel() != ""
}

// Embed returns the embedding of text, served from the cache when possible.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if !g.EmbeddingsEnabled() {
		return nil, apperrors.NewModelFailed("embed", apperrors.FailureDisabled, 0, apperrors.ErrEmbeddingsDisabled)
	}

	model := g.emb.EmbeddingModel()
	key := cache.Key(text, "embed:"+model)
	if data, ok, err := g.cache.Get(ctx, key); err == nil && ok {
		var vec []float32
		if err := json.Unmarshal(data, &vec); err == nil {
			return vec, nil
		}
	}

	vec, attempts, err := retry.Do(ctx, g.policy(3), func(ctx context.Context, attempt int) ([]float32, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, apperrors.NewModelCall(apperrors.FailureCancelled, "rate limiter wait aborted", err)
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		v, err := g.emb.Embed(callCtx, text)
		if err != nil {
			return nil, classifyAttempt(ctx, callCtx, err)
		}
		return v, nil
	})
	if err != nil {
		failure := apperrors.KindOf(err)
		if failure == "" {
			failure = apperrors.FailurePermanent
		}
		return nil, apperrors.NewModelFailed("embed", failure, attempts, err)
	}

	if data, err := json.Marshal(vec); err == nil {
		if err := g.cache.Put(ctx, key, data); err != nil {
			g.logger.Warn("cache write failed", zap.String("kind", "embed"), zap.Error(err))
		}
	}
	return vec, nil
}

// classifyAttempt makes sure every attempt error carries a failure kind. A
// per-attempt deadline is a timeout; the caller's own cancellation is not.
func classifyAttempt(parent, call context.Context, err error) error {
	if parent.Err() != nil {
		return apperrors.NewModelCall(apperrors.FailureCancelled, "caller cancelled", err)
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) {
		return apperrors.NewModelCall(apperrors.FailureTimeout, "attempt timed out", err)
	}
	if apperrors.KindOf(err) != "" {
		return err
	}
	return apperrors.NewModelCall(adapter.Classify(err), "model call failed", err)
}

// decodeShape parses text and, when a target type is known, checks that the
// document decodes into it.
func decodeShape(text []byte, output any) (json.RawMessage, error) {
	raw, err := ParseJSON(string(text))
	if err != nil {
		return nil, err
	}
	if output == nil {
		return raw, nil
	}
	t := reflect.TypeOf(output)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if err := json.Unmarshal(raw, reflect.New(t).Interface()); err != nil {
		return nil, err
	}
	return raw, nil
}
