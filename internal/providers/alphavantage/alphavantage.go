// Package alphavantage adapts the Alpha Vantage REST API. Alpha Vantage
// reports errors inside 200 bodies (Note for throttling, Information for
// premium gating), so the adapter inspects payloads before projecting them.
package alphavantage

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
	id             = "alphavantage"
	DefaultBaseURL = "https://www.alphavantage.co"
)

// Provider is the Alpha Vantage adapter.
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
	p.guard = providers.NewGuard(id, providers.GuardConfig{RPS: 0.5, Burst: 1}, deps.Metrics, deps.Logger)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) ID() string          { return id }
func (p *Provider) DisplayName() string { return "Alpha Vantage" }

func (p *Provider) Enabled() bool {
	_, ok := p.deps.Resolver.ResolveProviderAPIKey(auth.ProviderAlphaVantage, true)
	return ok
}

func (p *Provider) Supports(intent finance.Intent) bool {
	switch intent {
	case finance.IntentQuote, finance.IntentFundamentals, finance.IntentNews:
		return true
	}
	return false
}

func (p *Provider) Fetch(ctx context.Context, q query.Query) (*finance.Result, error) {
	key, ok := p.deps.Resolver.ResolveProviderAPIKey(auth.ProviderAlphaVantage, true)
	if !ok {
		return nil, providers.NewError(id, providers.CodeMissingAuth, "no Alpha Vantage API key configured")
	}
	return p.guard.Do(ctx, q.Intent, func(ctx context.Context) (*finance.Result, error) {
		switch q.Intent {
		case finance.IntentQuote:
			return p.fetchQuote(ctx, q.Ticker, key)
		case finance.IntentFundamentals:
			return p.fetchFundamentals(ctx, q.Ticker, key)
		case finance.IntentNews:
			return p.fetchNews(ctx, q.Ticker, q.Limit, key)
		}
		return nil, providers.NewError(id, providers.CodeUnsupported,
			fmt.Sprintf("intent %s not supported", q.Intent))
	})
}

func (p *Provider) attribution(symbol string) []finance.Attribution {
	return []finance.Attribution{{
		Publisher: "Alpha Vantage",
		Domain:    "alphavantage.co",
		URL:       "https://www.alphavantage.co/query?symbol=" + url.QueryEscape(symbol),
	}}
}

// bodyError is the in-band error surface shared by every AV function.
type bodyError struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

func (b bodyError) toError() *providers.Error {
	switch {
	case b.Note != "":
		return providers.NewError(id, providers.CodeRateLimit, b.Note)
	case strings.Contains(strings.ToLower(b.Information), "premium"):
		return providers.NewError(id, providers.CodeTierDenied, b.Information)
	case b.Information != "":
		return providers.NewError(id, providers.CodeProviderError, b.Information)
	case b.ErrorMessage != "":
		return providers.NewError(id, providers.CodeProviderError, b.ErrorMessage)
	}
	return nil
}

// num parses Alpha Vantage's string-encoded numbers. "None" and empty map
// to absent.
func num(s string) *float64 {
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" || strings.EqualFold(s, "none") || s == "-" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return finance.Float(v)
}

type globalQuoteResponse struct {
	bodyError
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		PreviousClose string `json:"08. previous close"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
}

func (p *Provider) fetchQuote(ctx context.Context, symbol, key string) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/query?function=GLOBAL_QUOTE&symbol=%s&apikey=%s",
		p.baseURL, url.QueryEscape(symbol), url.QueryEscape(key))
	var decoded globalQuoteResponse
	if err := httpx.GetJSON(ctx, p.deps.Client, u, nil, &decoded); err != nil {
		return nil, err
	}
	if err := decoded.toError(); err != nil {
		return nil, err
	}
	if decoded.GlobalQuote.Price == "" {
		return nil, providers.NewError(id, providers.CodeProviderError,
			fmt.Sprintf("no quote returned for %s", symbol))
	}

	out := &finance.Quote{
		Symbol:        finance.NormalizeSymbol(symbol),
		Currency:      "USD",
		Price:         num(decoded.GlobalQuote.Price),
		PreviousClose: num(decoded.GlobalQuote.PreviousClose),
		Change:        num(decoded.GlobalQuote.Change),
		ChangePercent: num(decoded.GlobalQuote.ChangePercent),
	}
	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(symbol)
	return res, nil
}

type overviewResponse struct {
	bodyError
	Symbol                  string `json:"Symbol"`
	Sector                  string `json:"Sector"`
	Address                 string `json:"Address"`
	OfficialSite            string `json:"OfficialSite"`
	MarketCapitalization    string `json:"MarketCapitalization"`
	RevenueTTM              string `json:"RevenueTTM"`
	GrossProfitTTM          string `json:"GrossProfitTTM"`
	ProfitMargin            string `json:"ProfitMargin"`
	OperatingMarginTTM      string `json:"OperatingMarginTTM"`
	ReturnOnEquityTTM       string `json:"ReturnOnEquityTTM"`
	LatestQuarter           string `json:"LatestQuarter"`
	AnalystRatingStrongBuy  string `json:"AnalystRatingStrongBuy"`
	AnalystRatingBuy        string `json:"AnalystRatingBuy"`
	AnalystRatingHold       string `json:"AnalystRatingHold"`
	AnalystRatingSell       string `json:"AnalystRatingSell"`
	AnalystRatingStrongSell string `json:"AnalystRatingStrongSell"`
}

func (p *Provider) fetchFundamentals(ctx context.Context, symbol, key string) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/query?function=OVERVIEW&symbol=%s&apikey=%s",
		p.baseURL, url.QueryEscape(symbol), url.QueryEscape(key))
	var decoded overviewResponse
	if err := httpx.GetJSON(ctx, p.deps.Client, u, nil, &decoded); err != nil {
		return nil, err
	}
	if err := decoded.toError(); err != nil {
		return nil, err
	}
	if decoded.Symbol == "" {
		return nil, providers.NewError(id, providers.CodeProviderError,
			fmt.Sprintf("no overview returned for %s", symbol))
	}

	out := &finance.Fundamentals{Symbol: finance.NormalizeSymbol(symbol)}
	revenue := num(decoded.RevenueTTM)
	if revenue != nil {
		out.Metrics.Revenue = finance.Metric{Value: revenue, Period: finance.PeriodTTM, Derivation: finance.DerivationReported}
	}
	out.Metrics.OperatingMarginPct = derivedPct(num(decoded.OperatingMarginTTM))
	out.Metrics.ROEPct = derivedPct(num(decoded.ReturnOnEquityTTM))

	// Overview has no direct net income or gross margin; both derive from
	// the reported TTM revenue.
	if margin := num(decoded.ProfitMargin); margin != nil && finance.IsFinite(revenue) {
		out.Metrics.NetIncome = finance.Metric{
			Value:      finance.Float(*margin * *revenue),
			Period:     finance.PeriodTTM,
			Derivation: finance.DerivationDerived,
		}
	}
	if gross := num(decoded.GrossProfitTTM); gross != nil && finance.IsFinite(revenue) && *revenue != 0 {
		out.Metrics.GrossMarginPct = finance.Metric{
			Value:      finance.Float(*gross / *revenue * 100),
			Period:     finance.PeriodTTM,
			Derivation: finance.DerivationDerived,
		}
	}

	out.MarketCap = num(decoded.MarketCapitalization)
	out.Sector = titleCaseSector(decoded.Sector)
	out.Headquarters = decoded.Address
	out.Website = decoded.OfficialSite
	out.FiscalPeriodEnd = decoded.LatestQuarter
	out.AnalystRatings = finance.AnalystRatings{
		StrongBuy:  num(decoded.AnalystRatingStrongBuy),
		Buy:        num(decoded.AnalystRatingBuy),
		Hold:       num(decoded.AnalystRatingHold),
		Sell:       num(decoded.AnalystRatingSell),
		StrongSell: num(decoded.AnalystRatingStrongSell),
	}
	out.RecoarsenPeriod()

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(symbol)
	return res, nil
}

// derivedPct marks ratio-to-percent conversions as derived.
func derivedPct(v *float64) finance.Metric {
	if v == nil {
		return finance.Metric{}
	}
	return finance.Metric{
		Value:      finance.Float(*v * 100),
		Period:     finance.PeriodTTM,
		Derivation: finance.DerivationDerived,
	}
}

// titleCaseSector normalizes AV's SHOUTED sector names ("TECHNOLOGY").
func titleCaseSector(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

type newsResponse struct {
	bodyError
	Feed []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		TimePublished string `json:"time_published"`
		Source        string `json:"source"`
		Summary       string `json:"summary"`
		Sentiment     string `json:"overall_sentiment_label"`
	} `json:"feed"`
}

func (p *Provider) fetchNews(ctx context.Context, symbol string, limit int, key string) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/query?function=NEWS_SENTIMENT&tickers=%s&limit=%d&apikey=%s",
		p.baseURL, url.QueryEscape(symbol), limit, url.QueryEscape(key))
	var decoded newsResponse
	if err := httpx.GetJSON(ctx, p.deps.Client, u, nil, &decoded); err != nil {
		return nil, err
	}
	if err := decoded.toError(); err != nil {
		return nil, err
	}

	out := &finance.News{Symbol: finance.NormalizeSymbol(symbol), Items: []finance.NewsItem{}}
	for _, n := range decoded.Feed {
		out.Items = append(out.Items, finance.NewsItem{
			Title:       n.Title,
			Source:      n.Source,
			PublishedAt: parseAVTime(n.TimePublished),
			URL:         n.URL,
			Summary:     n.Summary,
			Sentiment:   strings.ToLower(n.Sentiment),
		})
	}

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(symbol)
	return res, nil
}

// parseAVTime converts "20240102T130000" into RFC3339.
func parseAVTime(s string) string {
	t, err := time.Parse("20060102T150405", s)
	if err != nil {
		return s
	}
	return t.UTC().Format(time.RFC3339)
}
