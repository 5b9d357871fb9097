// Package quartr adapts the Quartr public API. Quartr covers earnings
// calls and their documents, which surface here as news items.
package quartr

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tickerlens/tickerlens/internal/auth"
	"github.com/tickerlens/tickerlens/internal/finance"
	"github.com/tickerlens/tickerlens/internal/httpx"
	"github.com/tickerlens/tickerlens/internal/providers"
	"github.com/tickerlens/tickerlens/internal/query"
)

const (
	id             = "quartr"
	DefaultBaseURL = "https://api.quartr.com/public/v1"
)

// Provider is the Quartr adapter.
type Provider struct {
	deps    providers.Deps
	guard   *providers.Guard
	baseURL string
	timeout time.Duration
}

// Option customizes the provider.
type Option func(*Provider)

// WithBaseURL points the adapter at a different host, used by tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// WithGuardConfig tunes the rate limiter and breaker.
func WithGuardConfig(cfg providers.GuardConfig) Option {
	return func(p *Provider) {
		p.guard = providers.NewGuard(id, cfg, p.deps.Metrics, p.deps.Logger)
	}
}

// New builds the adapter.
func New(deps providers.Deps, opts ...Option) *Provider {
	p := &Provider{deps: deps, baseURL: DefaultBaseURL, timeout: httpx.DefaultTimeout}
	p.guard = providers.NewGuard(id, providers.GuardConfig{RPS: 1, Burst: 2}, deps.Metrics, deps.Logger)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) ID() string          { return id }
func (p *Provider) DisplayName() string { return "Quartr" }

func (p *Provider) Enabled() bool {
	_, ok := p.deps.Resolver.ResolveProviderAPIKey(auth.ProviderQuartr, true)
	return ok
}

func (p *Provider) Supports(intent finance.Intent) bool {
	return intent == finance.IntentNews
}

func (p *Provider) Fetch(ctx context.Context, q query.Query) (*finance.Result, error) {
	key, ok := p.deps.Resolver.ResolveProviderAPIKey(auth.ProviderQuartr, true)
	if !ok {
		return nil, providers.NewError(id, providers.CodeMissingAuth, "no Quartr API key configured")
	}
	if q.Intent != finance.IntentNews {
		return nil, providers.NewError(id, providers.CodeUnsupported,
			fmt.Sprintf("intent %s not supported", q.Intent))
	}
	return p.guard.Do(ctx, q.Intent, func(ctx context.Context) (*finance.Result, error) {
		return p.fetchNews(ctx, q.Ticker, q.Limit, key)
	})
}

func (p *Provider) headers(key string) map[string]string {
	return map[string]string{"X-Api-Key": key}
}

func (p *Provider) attribution() []finance.Attribution {
	return []finance.Attribution{{
		Publisher: "Quartr",
		Domain:    "quartr.com",
		URL:       "https://quartr.com",
	}}
}

type companyResponse struct {
	Data []struct {
		ID          int64  `json:"id"`
		DisplayName string `json:"displayName"`
	} `json:"data"`
}

type eventsResponse struct {
	Data []struct {
		Title         string `json:"eventTitle"`
		Date          string `json:"eventDate"`
		FiscalPeriod  string `json:"fiscalPeriod"`
		FiscalYear    int    `json:"fiscalYear"`
		EventType     string `json:"eventType"`
		TranscriptURL string `json:"transcriptUrl"`
		ReportURL     string `json:"reportUrl"`
		AudioURL      string `json:"audioUrl"`
	} `json:"data"`
}

func (p *Provider) fetchNews(ctx context.Context, symbol string, limit int, key string) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	lookup := fmt.Sprintf("%s/companies?%s", p.baseURL, url.Values{"ticker": {symbol}}.Encode())
	var companies companyResponse
	if err := httpx.GetJSON(ctx, p.deps.Client, lookup, p.headers(key), &companies); err != nil {
		return nil, err
	}
	if len(companies.Data) == 0 {
		return nil, providers.NewError(id, providers.CodeProviderError,
			fmt.Sprintf("no Quartr company for %s", symbol))
	}
	company := companies.Data[0]

	eventsURL := fmt.Sprintf("%s/companies/%d/events?%s", p.baseURL, company.ID,
		url.Values{"limit": {strconv.Itoa(limit)}, "sort": {"desc"}}.Encode())
	var events eventsResponse
	if err := httpx.GetJSON(ctx, p.deps.Client, eventsURL, p.headers(key), &events); err != nil {
		return nil, err
	}

	out := &finance.News{Symbol: finance.NormalizeSymbol(symbol), Items: []finance.NewsItem{}}
	for _, ev := range events.Data {
		if len(out.Items) >= limit {
			break
		}
		title := ev.Title
		if title == "" && ev.FiscalPeriod != "" {
			title = fmt.Sprintf("%s %s %d %s", company.DisplayName, ev.FiscalPeriod, ev.FiscalYear, eventLabel(ev.EventType))
		}
		link := firstNonEmpty(ev.TranscriptURL, ev.ReportURL, ev.AudioURL)
		out.Items = append(out.Items, finance.NewsItem{
			Title:       strings.TrimSpace(title),
			Source:      "Quartr",
			URL:         link,
			PublishedAt: ev.Date,
			Summary:     eventLabel(ev.EventType),
		})
	}

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution()
	return res, nil
}

func eventLabel(eventType string) string {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "earnings_call", "earnings":
		return "Earnings Call"
	case "capital_markets_day":
		return "Capital Markets Day"
	case "agm", "annual_general_meeting":
		return "Annual General Meeting"
	case "":
		return "Company Event"
	default:
		words := strings.Fields(strings.ReplaceAll(eventType, "_", " "))
		for i, w := range words {
			words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
		}
		return strings.Join(words, " ")
	}
}

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}
