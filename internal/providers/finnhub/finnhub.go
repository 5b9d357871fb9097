// Package finnhub adapts the Finnhub REST API. Quote answers are enriched
// from the metric endpoint because /quote alone carries no 52-week range.
package finnhub

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tickerlens/tickerlens/internal/auth"
	"github.com/tickerlens/tickerlens/internal/finance"
	"github.com/tickerlens/tickerlens/internal/httpx"
	"github.com/tickerlens/tickerlens/internal/providers"
	"github.com/tickerlens/tickerlens/internal/query"
)

const (
	id             = "finnhub"
	DefaultBaseURL = "https://finnhub.io/api/v1"
)

// Provider is the Finnhub adapter.
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
func (p *Provider) DisplayName() string { return "Finnhub" }

func (p *Provider) Enabled() bool {
	_, ok := p.deps.Resolver.ResolveProviderAPIKey(auth.ProviderFinnhub, true)
	return ok
}

func (p *Provider) Supports(intent finance.Intent) bool {
	switch intent {
	case finance.IntentQuote, finance.IntentFundamentals, finance.IntentInsider, finance.IntentNews:
		return true
	}
	return false
}

func (p *Provider) Fetch(ctx context.Context, q query.Query) (*finance.Result, error) {
	key, ok := p.deps.Resolver.ResolveProviderAPIKey(auth.ProviderFinnhub, true)
	if !ok {
		return nil, providers.NewError(id, providers.CodeMissingAuth, "no Finnhub API key configured")
	}
	return p.guard.Do(ctx, q.Intent, func(ctx context.Context) (*finance.Result, error) {
		switch q.Intent {
		case finance.IntentQuote:
			return p.fetchQuote(ctx, q.Ticker, key)
		case finance.IntentFundamentals:
			return p.fetchFundamentals(ctx, q.Ticker, key)
		case finance.IntentInsider:
			return p.fetchInsider(ctx, q.Ticker, q.Limit, key)
		case finance.IntentNews:
			return p.fetchNews(ctx, q.Ticker, q.Limit, key)
		}
		return nil, providers.NewError(id, providers.CodeUnsupported,
			fmt.Sprintf("intent %s not supported", q.Intent))
	})
}

func (p *Provider) attribution(symbol string) []finance.Attribution {
	return []finance.Attribution{{
		Publisher: "Finnhub",
		Domain:    "finnhub.io",
		URL:       "https://finnhub.io/quote/" + url.PathEscape(symbol),
	}}
}

func (p *Provider) endpoint(path, symbol, key string, extra url.Values) string {
	v := url.Values{}
	v.Set("symbol", symbol)
	v.Set("token", key)
	for k, vals := range extra {
		for _, val := range vals {
			v.Add(k, val)
		}
	}
	return fmt.Sprintf("%s%s?%s", p.baseURL, path, v.Encode())
}

type quoteResponse struct {
	Current       *float64 `json:"c"`
	Change        *float64 `json:"d"`
	ChangePercent *float64 `json:"dp"`
	PreviousClose *float64 `json:"pc"`
}

type metricResponse struct {
	Metric map[string]*float64 `json:"metric"`
}

func (p *Provider) fetchQuote(ctx context.Context, symbol, key string) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	var quote quoteResponse
	if err := httpx.GetJSON(ctx, p.deps.Client, p.endpoint("/quote", symbol, key, nil), nil, &quote); err != nil {
		return nil, err
	}
	if quote.Current == nil || *quote.Current == 0 {
		return nil, providers.NewError(id, providers.CodeProviderError,
			fmt.Sprintf("no quote returned for %s", symbol))
	}

	out := &finance.Quote{
		Symbol:        finance.NormalizeSymbol(symbol),
		Currency:      "USD",
		Price:         quote.Current,
		PreviousClose: quote.PreviousClose,
		Change:        quote.Change,
		ChangePercent: quote.ChangePercent,
	}

	// Best effort range enrichment; the quote stands on its own if the
	// metric endpoint is gated.
	var metrics metricResponse
	metricURL := p.endpoint("/stock/metric", symbol, key, url.Values{"metric": {"all"}})
	if err := httpx.GetJSON(ctx, p.deps.Client, metricURL, nil, &metrics); err == nil && metrics.Metric != nil {
		out.High52W = metrics.Metric["52WeekHigh"]
		out.Low52W = metrics.Metric["52WeekLow"]
		out.YTDReturnPercent = metrics.Metric["yearToDatePriceReturnDaily"]
		if mc := metrics.Metric["marketCapitalization"]; mc != nil {
			out.MarketCap = finance.Float(*mc * 1e6)
		}
	}

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(symbol)
	return res, nil
}

type profileResponse struct {
	Name                 string   `json:"name"`
	Country              string   `json:"country"`
	Currency             string   `json:"currency"`
	MarketCapitalization *float64 `json:"marketCapitalization"`
	FinnhubIndustry      string   `json:"finnhubIndustry"`
	WebURL               string   `json:"weburl"`
	Logo                 string   `json:"logo"`
}

func (p *Provider) fetchFundamentals(ctx context.Context, symbol, key string) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	var metrics metricResponse
	metricURL := p.endpoint("/stock/metric", symbol, key, url.Values{"metric": {"all"}})
	if err := httpx.GetJSON(ctx, p.deps.Client, metricURL, nil, &metrics); err != nil {
		return nil, err
	}
	if metrics.Metric == nil {
		return nil, providers.NewError(id, providers.CodeProviderError,
			fmt.Sprintf("no metrics returned for %s", symbol))
	}

	out := &finance.Fundamentals{Symbol: finance.NormalizeSymbol(symbol)}
	ttm := func(v *float64) finance.Metric {
		if v == nil {
			return finance.Metric{}
		}
		return finance.Metric{Value: v, Period: finance.PeriodTTM, Derivation: finance.DerivationReported}
	}
	out.Metrics.Revenue = ttm(metrics.Metric["revenueTTM"])
	out.Metrics.NetIncome = ttm(metrics.Metric["netIncomeTTM"])
	out.Metrics.GrossMarginPct = ttm(metrics.Metric["grossMarginTTM"])
	out.Metrics.OperatingMarginPct = ttm(metrics.Metric["operatingMarginTTM"])
	out.Metrics.ROEPct = ttm(metrics.Metric["roeTTM"])
	if v := metrics.Metric["totalDebt/totalEquityQuarterly"]; v != nil {
		out.Metrics.DebtToEquity = finance.Metric{Value: v, Period: finance.PeriodQ, Derivation: finance.DerivationReported}
	}

	var profile profileResponse
	if err := httpx.GetJSON(ctx, p.deps.Client, p.endpoint("/stock/profile2", symbol, key, nil), nil, &profile); err == nil {
		if profile.MarketCapitalization != nil {
			out.MarketCap = finance.Float(*profile.MarketCapitalization * 1e6)
		}
		out.Sector = profile.FinnhubIndustry
		out.Headquarters = profile.Country
		out.Website = profile.WebURL
		out.IconURL = profile.Logo
	}
	out.RecoarsenPeriod()

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(symbol)
	return res, nil
}

type insiderResponse struct {
	Data []struct {
		Name            string   `json:"name"`
		Share           *float64 `json:"share"`
		Change          *float64 `json:"change"`
		TransactionDate string   `json:"transactionDate"`
		TransactionCode string   `json:"transactionCode"`
	} `json:"data"`
}

func (p *Provider) fetchInsider(ctx context.Context, symbol string, limit int, key string) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	var decoded insiderResponse
	u := p.endpoint("/stock/insider-transactions", symbol, key, nil)
	if err := httpx.GetJSON(ctx, p.deps.Client, u, nil, &decoded); err != nil {
		return nil, err
	}

	out := &finance.Insider{Symbol: finance.NormalizeSymbol(symbol), Entries: []finance.InsiderEntry{}}
	for _, d := range decoded.Data {
		if d.Change == nil {
			continue
		}
		change := *d.Change
		entry := finance.InsiderEntry{
			Owner:           d.Name,
			Date:            d.TransactionDate,
			Shares:          abs(change),
			SharesChange:    change,
			TransactionType: transactionTypeFromCode(d.TransactionCode, change),
			Security:        "Common Stock",
		}
		out.Entries = append(out.Entries, entry)
		if len(out.Entries) >= limit*5 {
			break
		}
	}
	out.RecomputeOwnershipChange()

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(symbol)
	return res, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// transactionTypeFromCode maps SEC Form 4 transaction codes; the sign of
// the share change breaks ties for codes that go either way.
func transactionTypeFromCode(code string, change float64) finance.TransactionType {
	switch strings.ToUpper(code) {
	case "P":
		return finance.TransactionBuy
	case "S":
		return finance.TransactionSell
	case "A", "M":
		if change >= 0 {
			return finance.TransactionBuy
		}
		return finance.TransactionOther
	case "D", "F":
		if change < 0 {
			return finance.TransactionSell
		}
		return finance.TransactionOther
	default:
		return finance.TransactionOther
	}
}

type newsItem struct {
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

func (p *Provider) fetchNews(ctx context.Context, symbol string, limit int, key string) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	extra := url.Values{
		"from": {from.Format("2006-01-02")},
		"to":   {to.Format("2006-01-02")},
	}
	var decoded []newsItem
	if err := httpx.GetJSON(ctx, p.deps.Client, p.endpoint("/company-news", symbol, key, extra), nil, &decoded); err != nil {
		return nil, err
	}

	out := &finance.News{Symbol: finance.NormalizeSymbol(symbol), Items: []finance.NewsItem{}}
	for _, n := range decoded {
		if len(out.Items) >= limit {
			break
		}
		item := finance.NewsItem{
			Title:   n.Headline,
			Source:  n.Source,
			URL:     n.URL,
			Summary: n.Summary,
		}
		if n.Datetime > 0 {
			item.PublishedAt = time.Unix(n.Datetime, 0).UTC().Format(time.RFC3339)
		}
		out.Items = append(out.Items, item)
	}

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(symbol)
	return res, nil
}
