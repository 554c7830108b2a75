package embed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// GuardConfig bounds calls to a remote provider.
type GuardConfig struct {
	// Timeout bounds each call. Zero selects DefaultTimeout.
	Timeout time.Duration

	// RatePerSec limits calls per second. Zero disables limiting.
	RatePerSec float64
	Burst      int

	// BreakerFailures consecutive failures open the circuit. Zero
	// disables the breaker.
	BreakerFailures int

	// BreakerCooldown is how long the circuit stays open before a probe.
	BreakerCooldown time.Duration
}

// DefaultGuardConfig returns the guard used for remote providers.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:         DefaultTimeout,
		RatePerSec:      10,
		Burst:           5,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// GuardedEmbedder applies a per-call timeout, a rate limiter and a circuit
// breaker around another embedder.
type GuardedEmbedder struct {
	inner   Embedder
	config  GuardConfig
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuardedEmbedder wraps inner.
func NewGuardedEmbedder(inner Embedder, cfg GuardConfig) *GuardedEmbedder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	g := &GuardedEmbedder{inner: inner, config: cfg}

	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}

	if cfg.BreakerFailures > 0 {
		cooldown := cfg.BreakerCooldown
		if cooldown <= 0 {
			cooldown = 30 * time.Second
		}
		threshold := uint32(cfg.BreakerFailures)
		g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "embed:" + inner.ModelName(),
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("embed_circuit_state",
					slog.String("name", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			},
		})
	}
	return g
}

// Embed embeds text under the guard. Blank text bypasses it.
func (g *GuardedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if IsBlank(text) {
		return []float32{}, nil
	}
	return guard(g, ctx, func(ctx context.Context) ([]float32, error) {
		return g.inner.Embed(ctx, text)
	})
}

// EmbedBatch embeds texts as one guarded call.
func (g *GuardedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return guard(g, ctx, func(ctx context.Context) ([][]float32, error) {
		return g.inner.EmbedBatch(ctx, texts)
	})
}

func guard[T any](g *GuardedEmbedder, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return zero, classify(g.inner.ModelName(), err)
		}
	}

	call := func() (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
		out, err := fn(callCtx)
		if err != nil {
			return zero, classify(g.inner.ModelName(), err)
		}
		return out, nil
	}
	if g.breaker == nil {
		return call()
	}

	out, err := g.breaker.Execute(func() (any, error) {
		return call()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, failure(ReasonCircuitOpen, "embedding circuit is open", err).
				WithSuggestion("the embedding provider failed repeatedly; retry later")
		}
		return zero, err
	}
	return out.(T), nil
}

// State returns the breaker state, or "closed" when no breaker is set.
func (g *GuardedEmbedder) State() string {
	if g.breaker == nil {
		return gobreaker.StateClosed.String()
	}
	return g.breaker.State().String()
}

// Dimensions passes through to the inner embedder.
func (g *GuardedEmbedder) Dimensions() int { return g.inner.Dimensions() }

// ModelName passes through to the inner embedder.
func (g *GuardedEmbedder) ModelName() string { return g.inner.ModelName() }

// Available passes through to the inner embedder.
func (g *GuardedEmbedder) Available(ctx context.Context) bool { return g.inner.Available(ctx) }

// Close closes the inner embedder.
func (g *GuardedEmbedder) Close() error { return g.inner.Close() }

var _ Embedder = (*GuardedEmbedder)(nil)
