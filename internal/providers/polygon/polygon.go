// Package polygon adapts the Polygon.io REST API.
package polygon

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
	id             = "polygon"
	DefaultBaseURL = "https://api.polygon.io"
)

// Provider is the Polygon.io adapter.
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

// New builds the adapter. Free Polygon keys are capped at 5 requests per
// minute, so the limiter sits well under that.
func New(deps providers.Deps, opts ...Option) *Provider {
	p := &Provider{deps: deps, baseURL: DefaultBaseURL, timeout: httpx.DefaultTimeout}
	p.guard = providers.NewGuard(id, providers.GuardConfig{RPS: 0.08, Burst: 2}, deps.Metrics, deps.Logger)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) ID() string          { return id }
func (p *Provider) DisplayName() string { return "Polygon.io" }

func (p *Provider) Enabled() bool {
	_, ok := p.deps.Resolver.ResolveProviderAPIKey(auth.ProviderPolygon, true)
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
	key, ok := p.deps.Resolver.ResolveProviderAPIKey(auth.ProviderPolygon, true)
	if !ok {
		return nil, providers.NewError(id, providers.CodeMissingAuth, "no Polygon API key configured")
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
		Publisher: "Polygon.io",
		Domain:    "polygon.io",
		URL:       "https://polygon.io/quote/" + url.PathEscape(symbol),
	}}
}

func (p *Provider) endpoint(path, key string, extra url.Values) string {
	v := url.Values{}
	v.Set("apiKey", key)
	for k, vals := range extra {
		for _, val := range vals {
			v.Add(k, val)
		}
	}
	return fmt.Sprintf("%s%s?%s", p.baseURL, path, v.Encode())
}

type sessionBar struct {
	Close *float64 `json:"c"`
	High  *float64 `json:"h"`
	Low   *float64 `json:"l"`
}

type snapshotResponse struct {
	Status string `json:"status"`
	Ticker struct {
		Day          sessionBar `json:"day"`
		PrevDay      sessionBar `json:"prevDay"`
		TodaysChange *float64   `json:"todaysChange"`
		TodaysChFrac *float64   `json:"todaysChangePerc"`
		LastTrade    struct {
			Price *float64 `json:"p"`
		} `json:"lastTrade"`
	} `json:"ticker"`
}

func (p *Provider) fetchQuote(ctx context.Context, symbol, key string) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	var snap snapshotResponse
	path := "/v2/snapshot/locale/us/markets/stocks/tickers/" + url.PathEscape(symbol)
	if err := httpx.GetJSON(ctx, p.deps.Client, p.endpoint(path, key, nil), nil, &snap); err != nil {
		return nil, err
	}

	price := snap.Ticker.LastTrade.Price
	if price == nil || *price == 0 {
		price = snap.Ticker.Day.Close
	}
	if price == nil || *price == 0 {
		return nil, providers.NewError(id, providers.CodeProviderError,
			fmt.Sprintf("no snapshot price for %s", symbol))
	}

	out := &finance.Quote{
		Symbol:        finance.NormalizeSymbol(symbol),
		Currency:      "USD",
		Price:         price,
		PreviousClose: snap.Ticker.PrevDay.Close,
		Change:        snap.Ticker.TodaysChange,
		ChangePercent: snap.Ticker.TodaysChFrac,
	}

	// The ticker overview backfills market cap; the snapshot never
	// carries it.
	if overview, err := p.tickerOverview(ctx, symbol, key); err == nil {
		out.MarketCap = overview.MarketCap
	}

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(symbol)
	return res, nil
}

type tickerOverview struct {
	Name           string   `json:"name"`
	MarketCap      *float64 `json:"market_cap"`
	SICDescription string   `json:"sic_description"`
	HomepageURL    string   `json:"homepage_url"`
	Address        struct {
		City  string `json:"city"`
		State string `json:"state"`
	} `json:"address"`
	Branding struct {
		IconURL string `json:"icon_url"`
	} `json:"branding"`
}

type tickerOverviewResponse struct {
	Results tickerOverview `json:"results"`
}

func (p *Provider) tickerOverview(ctx context.Context, symbol, key string) (*tickerOverview, error) {
	var decoded tickerOverviewResponse
	path := "/v3/reference/tickers/" + url.PathEscape(symbol)
	if err := httpx.GetJSON(ctx, p.deps.Client, p.endpoint(path, key, nil), nil, &decoded); err != nil {
		return nil, err
	}
	return &decoded.Results, nil
}

type financialValue struct {
	Value *float64 `json:"value"`
}

type financialsResponse struct {
	Results []struct {
		FiscalPeriod string `json:"fiscal_period"`
		Financials   struct {
			IncomeStatement struct {
				Revenues        financialValue `json:"revenues"`
				NetIncomeLoss   financialValue `json:"net_income_loss"`
				GrossProfit     financialValue `json:"gross_profit"`
				OperatingIncome financialValue `json:"operating_income_loss"`
			} `json:"income_statement"`
		} `json:"financials"`
	} `json:"results"`
}

func (p *Provider) fetchFundamentals(ctx context.Context, symbol, key string) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	overview, err := p.tickerOverview(ctx, symbol, key)
	if err != nil {
		return nil, err
	}

	out := &finance.Fundamentals{Symbol: finance.NormalizeSymbol(symbol)}
	out.MarketCap = overview.MarketCap
	out.Sector = overview.SICDescription
	out.Headquarters = joinPlace(overview.Address.City, overview.Address.State)
	out.Website = overview.HomepageURL
	out.IconURL = overview.Branding.IconURL

	var fin financialsResponse
	extra := url.Values{"ticker": {symbol}, "limit": {"1"}, "sort": {"period_of_report_date"}}
	if err := httpx.GetJSON(ctx, p.deps.Client, p.endpoint("/vX/reference/financials", key, extra), nil, &fin); err == nil && len(fin.Results) > 0 {
		row := fin.Results[0]
		period := periodFromPolygon(row.FiscalPeriod)
		income := row.Financials.IncomeStatement
		if income.Revenues.Value != nil {
			out.Metrics.Revenue = finance.Metric{Value: income.Revenues.Value, Period: period, Derivation: finance.DerivationReported}
		}
		if income.NetIncomeLoss.Value != nil {
			out.Metrics.NetIncome = finance.Metric{Value: income.NetIncomeLoss.Value, Period: period, Derivation: finance.DerivationReported}
		}
		if gross, rev := income.GrossProfit.Value, income.Revenues.Value; gross != nil && rev != nil && *rev != 0 {
			out.Metrics.GrossMarginPct = finance.Metric{
				Value:      finance.Float(*gross / *rev * 100),
				Period:     period,
				Derivation: finance.DerivationDerived,
			}
		}
		if op, rev := income.OperatingIncome.Value, income.Revenues.Value; op != nil && rev != nil && *rev != 0 {
			out.Metrics.OperatingMarginPct = finance.Metric{
				Value:      finance.Float(*op / *rev * 100),
				Period:     period,
				Derivation: finance.DerivationDerived,
			}
		}
	}
	out.RecoarsenPeriod()

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(symbol)
	return res, nil
}

func joinPlace(parts ...string) string {
	var kept []string
	for _, part := range parts {
		if s := strings.TrimSpace(part); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, ", ")
}

func periodFromPolygon(fiscal string) finance.MetricPeriod {
	switch strings.ToUpper(strings.TrimSpace(fiscal)) {
	case "TTM":
		return finance.PeriodTTM
	case "FY":
		return finance.PeriodFY
	case "Q1", "Q2", "Q3", "Q4":
		return finance.PeriodQ
	default:
		return finance.PeriodUnknown
	}
}

type newsResponse struct {
	Results []struct {
		Title       string `json:"title"`
		ArticleURL  string `json:"article_url"`
		Published   string `json:"published_utc"`
		Description string `json:"description"`
		Publisher   struct {
			Name string `json:"name"`
		} `json:"publisher"`
		Insights []struct {
			Ticker    string `json:"ticker"`
			Sentiment string `json:"sentiment"`
		} `json:"insights"`
	} `json:"results"`
}

func (p *Provider) fetchNews(ctx context.Context, symbol string, limit int, key string) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	extra := url.Values{"ticker": {symbol}, "limit": {strconv.Itoa(limit)}, "order": {"desc"}}
	var decoded newsResponse
	if err := httpx.GetJSON(ctx, p.deps.Client, p.endpoint("/v2/reference/news", key, extra), nil, &decoded); err != nil {
		return nil, err
	}

	out := &finance.News{Symbol: finance.NormalizeSymbol(symbol), Items: []finance.NewsItem{}}
	for _, row := range decoded.Results {
		if len(out.Items) >= limit {
			break
		}
		item := finance.NewsItem{
			Title:       row.Title,
			Source:      row.Publisher.Name,
			URL:         row.ArticleURL,
			Summary:     row.Description,
			PublishedAt: row.Published,
		}
		for _, insight := range row.Insights {
			if strings.EqualFold(insight.Ticker, symbol) {
				item.Sentiment = strings.ToLower(insight.Sentiment)
				break
			}
		}
		out.Items = append(out.Items, item)
	}

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(symbol)
	return res, nil
}
