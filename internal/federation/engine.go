package federation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tickerlens/tickerlens/internal/cache"
	"github.com/tickerlens/tickerlens/internal/finance"
	"github.com/tickerlens/tickerlens/internal/metrics"
	"github.com/tickerlens/tickerlens/internal/providers"
	"github.com/tickerlens/tickerlens/internal/query"
)

const noProvidersMessage = "No finance providers available"

// Engine dispatches a normalized query across the provider chain. Provider
// failures never escape as errors: they land in the envelope's errors list.
type Engine struct {
	registry *providers.Registry
	cache    *cache.Cache
	metrics  *metrics.Set
	log      zerolog.Logger
}

// New builds an engine. cache and metrics may be nil.
func New(registry *providers.Registry, c *cache.Cache, m *metrics.Set, logger zerolog.Logger) *Engine {
	return &Engine{registry: registry, cache: c, metrics: m, log: logger}
}

// Fetch answers a normalized query, consulting the cache unless the query
// asks for a refresh.
func (e *Engine) Fetch(ctx context.Context, q query.Query) *finance.Result {
	candidates := e.candidates(q)
	if len(candidates) == 0 {
		return finance.Empty(q.Intent, q.Ticker, "none", []string{noProvidersMessage})
	}

	key := q.CacheKey()
	if e.cache != nil && !q.Refresh {
		if cached, ok := e.cache.Get(key); ok {
			e.metrics.RecordCache(string(q.Intent), true)
			return cached
		}
		e.metrics.RecordCache(string(q.Intent), false)
	}

	var res *finance.Result
	if q.Coverage == query.CoverageComprehensive {
		res = e.fetchComprehensive(ctx, q, candidates)
	} else {
		res = e.fetchDefault(ctx, q, candidates)
	}

	if e.cache != nil && res.Source != "none" {
		e.cache.Set(key, q.Intent, res)
	}
	return res
}

// candidates filters providers to supports(intent) AND enabled(), honoring
// a specific requested source.
func (e *Engine) candidates(q query.Query) []providers.Provider {
	if q.Source != "" && q.Source != "auto" {
		p, ok := e.registry.Get(q.Source)
		if !ok || !p.Supports(q.Intent) || !p.Enabled() {
			return nil
		}
		return []providers.Provider{p}
	}
	return e.registry.Eligible(q.Intent)
}

// fetchDefault tries providers in order and returns the first success with
// its errors zeroed.
func (e *Engine) fetchDefault(ctx context.Context, q query.Query, candidates []providers.Provider) *finance.Result {
	var failures []string
	for _, p := range candidates {
		res, err := p.Fetch(ctx, q)
		if err != nil {
			failures = append(failures, failureEntry(p.ID(), err))
			e.log.Debug().Str("provider", p.ID()).Str("ticker", q.Ticker).
				Str("intent", string(q.Intent)).Msg("provider failed, trying next")
			if ctx.Err() != nil {
				break
			}
			continue
		}
		res.Source = p.ID()
		res.Errors = nil
		return res
	}
	return finance.Empty(q.Intent, q.Ticker, "none", failures)
}

// fetchComprehensive folds every provider payload into an accumulator under
// the intent merge policy, stopping early once the completeness oracle is
// satisfied.
func (e *Engine) fetchComprehensive(ctx context.Context, q query.Query, candidates []providers.Provider) *finance.Result {
	var (
		acc          finance.Payload
		contributors []string
		attribution  []finance.Attribution
		failures     []string
		maxStamp     time.Time
	)

	for _, p := range candidates {
		res, err := p.Fetch(ctx, q)
		if err != nil {
			failures = append(failures, failureEntry(p.ID(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		acc = Merge(q.Intent, acc, res.Data, q.Limit)
		e.metrics.RecordMerge(string(q.Intent))
		contributors = append(contributors, p.ID())
		attribution = append(attribution, res.Attribution...)
		if res.Timestamp.After(maxStamp) {
			maxStamp = res.Timestamp
		}

		if IsComplete(q.Intent, acc, q.Limit) {
			break
		}
	}

	if len(contributors) == 0 {
		return finance.Empty(q.Intent, q.Ticker, "none", failures)
	}
	return &finance.Result{
		Source:      strings.Join(contributors, ","),
		Timestamp:   maxStamp,
		Attribution: finance.DedupeAttribution(attribution),
		Data:        acc,
		Errors:      failures,
	}
}

// failureEntry renders one provider failure as "<source>: <message>".
func failureEntry(id string, err error) string {
	var typed *providers.Error
	if errors.As(err, &typed) {
		return fmt.Sprintf("%s: %s", id, typed.Message)
	}
	return fmt.Sprintf("%s: %s", id, err.Error())
}
