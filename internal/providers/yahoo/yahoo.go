// Package yahoo adapts the Yahoo Finance query1 API. It needs no API key,
// so it is always enabled and usually leads the federation order. It also
// serves daily adjusted price series to the analytic workflows.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tickerlens/tickerlens/internal/finance"
	"github.com/tickerlens/tickerlens/internal/httpx"
	"github.com/tickerlens/tickerlens/internal/providers"
	"github.com/tickerlens/tickerlens/internal/query"
)

const (
	id             = "yahoo"
	DefaultBaseURL = "https://query1.finance.yahoo.com"
)

// Provider is the Yahoo Finance adapter.
type Provider struct {
	deps    providers.Deps
	guard   *providers.Guard
	baseURL string
	timeout time.Duration

	// ChartFallback permits one retry of a failed quote lookup through the
	// chart endpoint, which tolerates symbols the quote endpoint rejects.
	ChartFallback bool
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
	p := &Provider{
		deps:          deps,
		baseURL:       DefaultBaseURL,
		timeout:       httpx.DefaultTimeout,
		ChartFallback: true,
	}
	p.guard = providers.NewGuard(id, providers.DefaultGuardConfig(), deps.Metrics, deps.Logger)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) ID() string          { return id }
func (p *Provider) DisplayName() string { return "Yahoo Finance" }
func (p *Provider) Enabled() bool       { return true }

func (p *Provider) Supports(intent finance.Intent) bool {
	switch intent {
	case finance.IntentQuote, finance.IntentFundamentals, finance.IntentNews:
		return true
	}
	return false
}

// Fetch dispatches one normalized query.
func (p *Provider) Fetch(ctx context.Context, q query.Query) (*finance.Result, error) {
	return p.guard.Do(ctx, q.Intent, func(ctx context.Context) (*finance.Result, error) {
		switch q.Intent {
		case finance.IntentQuote:
			return p.fetchQuote(ctx, q.Ticker)
		case finance.IntentFundamentals:
			return p.fetchFundamentals(ctx, q.Ticker)
		case finance.IntentNews:
			return p.fetchNews(ctx, q.Ticker, q.Limit)
		}
		return nil, providers.NewError(id, providers.CodeUnsupported,
			fmt.Sprintf("intent %s not supported", q.Intent))
	})
}

func (p *Provider) attribution(symbol string) []finance.Attribution {
	return []finance.Attribution{{
		Publisher: "Yahoo Finance",
		Domain:    "finance.yahoo.com",
		URL:       "https://finance.yahoo.com/quote/" + url.PathEscape(symbol),
	}}
}

// rawNum is Yahoo's {"raw": n, "fmt": "n"} number wrapper.
type rawNum struct {
	Raw *float64 `json:"raw"`
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol                     string   `json:"symbol"`
			Currency                   string   `json:"currency"`
			RegularMarketPrice         *float64 `json:"regularMarketPrice"`
			RegularMarketPreviousClose *float64 `json:"regularMarketPreviousClose"`
			RegularMarketChange        *float64 `json:"regularMarketChange"`
			RegularMarketChangePercent *float64 `json:"regularMarketChangePercent"`
			MarketCap                  *float64 `json:"marketCap"`
			FiftyTwoWeekHigh           *float64 `json:"fiftyTwoWeekHigh"`
			FiftyTwoWeekLow            *float64 `json:"fiftyTwoWeekLow"`
			YTDReturn                  *float64 `json:"ytdReturn"`
		} `json:"result"`
	} `json:"quoteResponse"`
}

func (p *Provider) fetchQuote(ctx context.Context, symbol string) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/v7/finance/quote?symbols=%s", p.baseURL, url.QueryEscape(symbol))
	var decoded quoteResponse
	err := httpx.GetJSON(ctx, p.deps.Client, u, nil, &decoded)
	if err != nil {
		var status *httpx.StatusError
		if p.ChartFallback && errors.As(err, &status) && status.StatusCode >= 400 && status.StatusCode < 500 {
			return p.quoteFromChart(ctx, symbol)
		}
		return nil, err
	}
	if len(decoded.QuoteResponse.Result) == 0 {
		if p.ChartFallback {
			return p.quoteFromChart(ctx, symbol)
		}
		return nil, providers.NewError(id, providers.CodeProviderError,
			fmt.Sprintf("no quote returned for %s", symbol))
	}

	r := decoded.QuoteResponse.Result[0]
	out := &finance.Quote{
		Symbol:           finance.NormalizeSymbol(symbol),
		Price:            r.RegularMarketPrice,
		Currency:         defaultCurrency(r.Currency),
		PreviousClose:    r.RegularMarketPreviousClose,
		Change:           r.RegularMarketChange,
		ChangePercent:    r.RegularMarketChangePercent,
		MarketCap:        r.MarketCap,
		High52W:          r.FiftyTwoWeekHigh,
		Low52W:           r.FiftyTwoWeekLow,
		YTDReturnPercent: scalePercent(r.YTDReturn),
	}
	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(symbol)
	return res, nil
}

// quoteFromChart rebuilds a partial quote from one year of daily bars when
// the quote endpoint rejects the symbol. Single attempt; no further retry.
func (p *Provider) quoteFromChart(ctx context.Context, symbol string) (*finance.Result, error) {
	series, meta, err := p.chart(ctx, symbol, "1y")
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, providers.NewError(id, providers.CodeProviderError,
			fmt.Sprintf("chart fallback returned no bars for %s", symbol))
	}

	out := &finance.Quote{
		Symbol:   finance.NormalizeSymbol(symbol),
		Currency: defaultCurrency(meta.Currency),
	}
	last := series[len(series)-1].AdjustedClose
	out.Price = finance.Float(last)
	if len(series) >= 2 {
		prev := series[len(series)-2].AdjustedClose
		out.PreviousClose = finance.Float(prev)
		out.Change = finance.Float(last - prev)
		if prev != 0 {
			out.ChangePercent = finance.Float((last/prev - 1) * 100)
		}
	}
	high, low := series[0].AdjustedClose, series[0].AdjustedClose
	for _, bar := range series {
		if bar.AdjustedClose > high {
			high = bar.AdjustedClose
		}
		if bar.AdjustedClose < low {
			low = bar.AdjustedClose
		}
	}
	out.High52W = finance.Float(high)
	out.Low52W = finance.Float(low)
	if ytdStart := firstBarOfYear(series); ytdStart > 0 {
		out.YTDReturnPercent = finance.Float((last/ytdStart - 1) * 100)
	}

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(symbol)
	return res, nil
}

func firstBarOfYear(series []finance.PriceBar) float64 {
	year := time.Now().UTC().Format("2006")
	for _, bar := range series {
		if strings.HasPrefix(bar.Date, year) {
			return bar.AdjustedClose
		}
	}
	return 0
}

func defaultCurrency(c string) string {
	if c == "" {
		return "USD"
	}
	return c
}

// scalePercent converts a fractional return into percent.
func scalePercent(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return finance.Float(*v * 100)
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			SummaryProfile *struct {
				Sector  string `json:"sector"`
				City    string `json:"city"`
				State   string `json:"state"`
				Country string `json:"country"`
				Website string `json:"website"`
			} `json:"summaryProfile"`
			FinancialData *struct {
				TotalRevenue     rawNum `json:"totalRevenue"`
				GrossMargins     rawNum `json:"grossMargins"`
				OperatingMargins rawNum `json:"operatingMargins"`
				ReturnOnEquity   rawNum `json:"returnOnEquity"`
				DebtToEquity     rawNum `json:"debtToEquity"`
				FreeCashflow     rawNum `json:"freeCashflow"`
			} `json:"financialData"`
			DefaultKeyStatistics *struct {
				NetIncomeToCommon rawNum `json:"netIncomeToCommon"`
			} `json:"defaultKeyStatistics"`
			Price *struct {
				MarketCap rawNum `json:"marketCap"`
			} `json:"price"`
			RecommendationTrend *struct {
				Trend []struct {
					Period     string   `json:"period"`
					StrongBuy  *float64 `json:"strongBuy"`
					Buy        *float64 `json:"buy"`
					Hold       *float64 `json:"hold"`
					Sell       *float64 `json:"sell"`
					StrongSell *float64 `json:"strongSell"`
				} `json:"trend"`
			} `json:"recommendationTrend"`
			IncomeStatementHistory *struct {
				IncomeStatementHistory []struct {
					EndDate struct {
						Fmt string `json:"fmt"`
					} `json:"endDate"`
				} `json:"incomeStatementHistory"`
			} `json:"incomeStatementHistory"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

func (p *Provider) fetchFundamentals(ctx context.Context, symbol string) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	modules := "summaryProfile,financialData,defaultKeyStatistics,price,recommendationTrend,incomeStatementHistory"
	u := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=%s",
		p.baseURL, url.PathEscape(symbol), url.QueryEscape(modules))

	var decoded quoteSummaryResponse
	if err := httpx.GetJSON(ctx, p.deps.Client, u, nil, &decoded); err != nil {
		return nil, err
	}
	if len(decoded.QuoteSummary.Result) == 0 {
		return nil, providers.NewError(id, providers.CodeProviderError,
			fmt.Sprintf("no fundamentals returned for %s", symbol))
	}
	r := decoded.QuoteSummary.Result[0]

	out := &finance.Fundamentals{Symbol: finance.NormalizeSymbol(symbol)}
	if fd := r.FinancialData; fd != nil {
		out.Metrics.Revenue = reported(fd.TotalRevenue.Raw, finance.PeriodTTM)
		out.Metrics.GrossMarginPct = reportedScaled(fd.GrossMargins.Raw, finance.PeriodTTM)
		out.Metrics.OperatingMarginPct = reportedScaled(fd.OperatingMargins.Raw, finance.PeriodTTM)
		out.Metrics.ROEPct = reportedScaled(fd.ReturnOnEquity.Raw, finance.PeriodTTM)
		out.Metrics.DebtToEquity = reported(fd.DebtToEquity.Raw, finance.PeriodTTM)
		out.Metrics.FreeCashFlow = reported(fd.FreeCashflow.Raw, finance.PeriodTTM)
	}
	if ks := r.DefaultKeyStatistics; ks != nil {
		out.Metrics.NetIncome = reported(ks.NetIncomeToCommon.Raw, finance.PeriodTTM)
	}
	if pr := r.Price; pr != nil {
		out.MarketCap = pr.MarketCap.Raw
	}
	if sp := r.SummaryProfile; sp != nil {
		out.Sector = sp.Sector
		out.Headquarters = joinPlace(sp.City, sp.State, sp.Country)
		out.Website = sp.Website
	}
	if rt := r.RecommendationTrend; rt != nil && len(rt.Trend) > 0 {
		t := rt.Trend[0]
		out.AnalystRatings = finance.AnalystRatings{
			StrongBuy: t.StrongBuy, Buy: t.Buy, Hold: t.Hold,
			Sell: t.Sell, StrongSell: t.StrongSell,
		}
	}
	if ih := r.IncomeStatementHistory; ih != nil && len(ih.IncomeStatementHistory) > 0 {
		out.FiscalPeriodEnd = ih.IncomeStatementHistory[0].EndDate.Fmt
	}
	out.RecoarsenPeriod()

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(symbol)
	return res, nil
}

func reported(v *float64, period finance.MetricPeriod) finance.Metric {
	if v == nil {
		return finance.Metric{}
	}
	return finance.Metric{Value: v, Period: period, Derivation: finance.DerivationReported}
}

// reportedScaled converts Yahoo's fractional ratios to percent, keeping the
// reported derivation since the figure itself is upstream's.
func reportedScaled(v *float64, period finance.MetricPeriod) finance.Metric {
	if v == nil {
		return finance.Metric{}
	}
	return finance.Metric{Value: scalePercent(v), Period: period, Derivation: finance.DerivationReported}
}

func joinPlace(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, strings.TrimSpace(p))
		}
	}
	return strings.Join(kept, ", ")
}

type searchResponse struct {
	News []struct {
		Title               string `json:"title"`
		Publisher           string `json:"publisher"`
		Link                string `json:"link"`
		ProviderPublishTime int64  `json:"providerPublishTime"`
		Summary             string `json:"summary"`
	} `json:"news"`
}

func (p *Provider) fetchNews(ctx context.Context, symbol string, limit int) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/v1/finance/search?q=%s&newsCount=%d&quotesCount=0",
		p.baseURL, url.QueryEscape(symbol), limit)
	var decoded searchResponse
	if err := httpx.GetJSON(ctx, p.deps.Client, u, nil, &decoded); err != nil {
		return nil, err
	}

	out := &finance.News{Symbol: finance.NormalizeSymbol(symbol), Items: []finance.NewsItem{}}
	for _, n := range decoded.News {
		item := finance.NewsItem{
			Title:   n.Title,
			Source:  n.Publisher,
			URL:     n.Link,
			Summary: n.Summary,
		}
		if n.ProviderPublishTime > 0 {
			item.PublishedAt = time.Unix(n.ProviderPublishTime, 0).UTC().Format(time.RFC3339)
		}
		out.Items = append(out.Items, item)
	}

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(symbol)
	return res, nil
}
