package providers

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/tickerlens/tickerlens/internal/finance"
	"github.com/tickerlens/tickerlens/internal/metrics"
)

// GuardConfig tunes the per-provider rate limiter and circuit breaker.
type GuardConfig struct {
	RPS              float64
	Burst            int
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// DefaultGuardConfig is conservative enough for every free-plan upstream.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RPS:              2,
		Burst:            4,
		FailureThreshold: 5,
		OpenTimeout:      60 * time.Second,
	}
}

func (c GuardConfig) withDefaults() GuardConfig {
	d := DefaultGuardConfig()
	if c.RPS <= 0 {
		c.RPS = d.RPS
	}
	if c.Burst <= 0 {
		c.Burst = d.Burst
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = d.OpenTimeout
	}
	return c
}

// Guard wraps a provider fetch with rate limiting, circuit breaking and
// telemetry. Tier denials and auth gaps do not count as breaker failures:
// they are plan problems, not upstream health problems, and must keep
// surfacing their actionable message.
type Guard struct {
	source  string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Set
	log     zerolog.Logger
}

// NewGuard builds a guard for one provider.
func NewGuard(source string, cfg GuardConfig, m *metrics.Set, logger zerolog.Logger) *Guard {
	cfg = cfg.withDefaults()

	settings := gobreaker.Settings{
		Name:        source,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var typed *Error
			if errors.As(err, &typed) {
				return typed.Code == CodeTierDenied || typed.Code == CodeMissingAuth
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}

	return &Guard{
		source:  source,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
		metrics: m,
		log:     logger,
	}
}

// Do executes a guarded fetch. Failures come back classified onto the
// provider error taxonomy.
func (g *Guard) Do(ctx context.Context, intent finance.Intent, fetch func(context.Context) (*finance.Result, error)) (*finance.Result, error) {
	start := time.Now()

	if err := g.limiter.Wait(ctx); err != nil {
		classified := Classify(g.source, err)
		g.metrics.RecordProviderRequest(g.source, string(intent), classified.Code, time.Since(start))
		return nil, classified
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return fetch(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = NewError(g.source, CodeProviderError, "circuit breaker open, provider temporarily skipped")
		}
		classified := Classify(g.source, err)
		g.metrics.RecordProviderRequest(g.source, string(intent), classified.Code, time.Since(start))
		g.log.Warn().Str("provider", g.source).Str("intent", string(intent)).
			Str("code", classified.Code).Msg(classified.Message)
		return nil, classified
	}

	g.metrics.RecordProviderRequest(g.source, string(intent), "ok", time.Since(start))
	res, ok := out.(*finance.Result)
	if !ok || res == nil {
		return nil, NewError(g.source, CodeProviderError, "provider returned no result")
	}
	return res, nil
}

// Breaker state name, exposed for the monitor surface.
func (g *Guard) BreakerState() string { return g.breaker.State().String() }
