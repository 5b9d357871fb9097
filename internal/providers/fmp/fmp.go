// Package fmp adapts Financial Modeling Prep. It is the only upstream
// here that answers all five intents, so it leans on several v3/v4
// endpoints and tolerates partial failures on the ancillary ones.
package fmp

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
	id             = "fmp"
	DefaultBaseURL = "https://financialmodelingprep.com/api"
)

// Provider is the Financial Modeling Prep adapter.
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
	p.guard = providers.NewGuard(id, providers.GuardConfig{RPS: 1, Burst: 3}, deps.Metrics, deps.Logger)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) ID() string          { return id }
func (p *Provider) DisplayName() string { return "Financial Modeling Prep" }

func (p *Provider) Enabled() bool {
	_, ok := p.deps.Resolver.ResolveProviderAPIKey(auth.ProviderFMP, true)
	return ok
}

func (p *Provider) Supports(finance.Intent) bool { return true }

func (p *Provider) Fetch(ctx context.Context, q query.Query) (*finance.Result, error) {
	key, ok := p.deps.Resolver.ResolveProviderAPIKey(auth.ProviderFMP, true)
	if !ok {
		return nil, providers.NewError(id, providers.CodeMissingAuth, "no FMP API key configured")
	}
	return p.guard.Do(ctx, q.Intent, func(ctx context.Context) (*finance.Result, error) {
		switch q.Intent {
		case finance.IntentQuote:
			return p.fetchQuote(ctx, q.Ticker, key)
		case finance.IntentFundamentals:
			return p.fetchFundamentals(ctx, q.Ticker, key)
		case finance.IntentFilings:
			return p.fetchFilings(ctx, q.Ticker, q.Form, q.Limit, key)
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
		Publisher: "Financial Modeling Prep",
		Domain:    "financialmodelingprep.com",
		URL:       "https://site.financialmodelingprep.com/financial-summary/" + url.PathEscape(symbol),
	}}
}

func (p *Provider) endpoint(path, key string, extra url.Values) string {
	v := url.Values{}
	v.Set("apikey", key)
	for k, vals := range extra {
		for _, val := range vals {
			v.Add(k, val)
		}
	}
	return fmt.Sprintf("%s%s?%s", p.baseURL, path, v.Encode())
}

type quoteRow struct {
	Symbol           string   `json:"symbol"`
	Price            *float64 `json:"price"`
	Change           *float64 `json:"change"`
	ChangesPercent   *float64 `json:"changesPercentage"`
	PreviousClose    *float64 `json:"previousClose"`
	YearHigh         *float64 `json:"yearHigh"`
	YearLow          *float64 `json:"yearLow"`
	MarketCap        *float64 `json:"marketCap"`
	SharesOut        *float64 `json:"sharesOutstanding"`
	PriceAvg200      *float64 `json:"priceAvg200"`
	EarningsAnnounce string   `json:"earningsAnnouncement"`
}

func (p *Provider) fetchQuote(ctx context.Context, symbol, key string) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	var rows []quoteRow
	u := p.endpoint("/v3/quote/"+url.PathEscape(symbol), key, nil)
	if err := httpx.GetJSON(ctx, p.deps.Client, u, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, providers.NewError(id, providers.CodeProviderError,
			fmt.Sprintf("no quote returned for %s", symbol))
	}
	row := rows[0]

	out := &finance.Quote{
		Symbol:        finance.NormalizeSymbol(symbol),
		Currency:      "USD",
		Price:         row.Price,
		PreviousClose: row.PreviousClose,
		Change:        row.Change,
		ChangePercent: row.ChangesPercent,
		High52W:       row.YearHigh,
		Low52W:        row.YearLow,
		MarketCap:     row.MarketCap,
	}

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(symbol)
	return res, nil
}

type profileRow struct {
	CompanyName string   `json:"companyName"`
	Currency    string   `json:"currency"`
	Sector      string   `json:"sector"`
	City        string   `json:"city"`
	State       string   `json:"state"`
	Country     string   `json:"country"`
	Website     string   `json:"website"`
	Image       string   `json:"image"`
	MktCap      *float64 `json:"mktCap"`
}

type ratiosRow struct {
	GrossProfitMargin     *float64 `json:"grossProfitMarginTTM"`
	OperatingProfitMargin *float64 `json:"operatingProfitMarginTTM"`
	ReturnOnEquity        *float64 `json:"returnOnEquityTTM"`
	DebtEquityRatio       *float64 `json:"debtEquityRatioTTM"`
}

type incomeRow struct {
	Date      string   `json:"date"`
	Period    string   `json:"period"`
	Revenue   *float64 `json:"revenue"`
	NetIncome *float64 `json:"netIncome"`
}

type cashFlowRow struct {
	FreeCashFlow *float64 `json:"freeCashFlow"`
}

type analystRow struct {
	AnalystRatingsBuy        *float64 `json:"analystRatingsbuy"`
	AnalystRatingsHold       *float64 `json:"analystRatingsHold"`
	AnalystRatingsSell       *float64 `json:"analystRatingsSell"`
	AnalystRatingsStrongBuy  *float64 `json:"analystRatingsStrongBuy"`
	AnalystRatingsStrongSell *float64 `json:"analystRatingsStrongSell"`
}

func (p *Provider) fetchFundamentals(ctx context.Context, symbol, key string) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	esc := url.PathEscape(symbol)
	out := &finance.Fundamentals{Symbol: finance.NormalizeSymbol(symbol)}
	pctTTM := func(v *float64) finance.Metric {
		if v == nil {
			return finance.Metric{}
		}
		scaled := *v * 100
		return finance.Metric{Value: &scaled, Period: finance.PeriodTTM, Derivation: finance.DerivationDerived}
	}

	// The profile is the anchor request; everything after it is best
	// effort because free keys gate some statements endpoints.
	var profiles []profileRow
	if err := httpx.GetJSON(ctx, p.deps.Client, p.endpoint("/v3/profile/"+esc, key, nil), nil, &profiles); err != nil {
		return nil, err
	}
	if len(profiles) > 0 {
		prof := profiles[0]
		out.MarketCap = prof.MktCap
		out.Sector = prof.Sector
		out.Headquarters = joinPlace(prof.City, prof.State, prof.Country)
		out.Website = prof.Website
		out.IconURL = prof.Image
	}

	var ratios []ratiosRow
	if err := httpx.GetJSON(ctx, p.deps.Client, p.endpoint("/v3/ratios-ttm/"+esc, key, nil), nil, &ratios); err == nil && len(ratios) > 0 {
		r := ratios[0]
		out.Metrics.GrossMarginPct = pctTTM(r.GrossProfitMargin)
		out.Metrics.OperatingMarginPct = pctTTM(r.OperatingProfitMargin)
		out.Metrics.ROEPct = pctTTM(r.ReturnOnEquity)
		if r.DebtEquityRatio != nil {
			out.Metrics.DebtToEquity = finance.Metric{Value: r.DebtEquityRatio, Period: finance.PeriodTTM, Derivation: finance.DerivationReported}
		}
	}

	var income []incomeRow
	incomeURL := p.endpoint("/v3/income-statement/"+esc, key, url.Values{"limit": {"1"}})
	if err := httpx.GetJSON(ctx, p.deps.Client, incomeURL, nil, &income); err == nil && len(income) > 0 {
		period := periodFromFMP(income[0].Period)
		if income[0].Revenue != nil {
			out.Metrics.Revenue = finance.Metric{Value: income[0].Revenue, Period: period, Derivation: finance.DerivationReported}
		}
		if income[0].NetIncome != nil {
			out.Metrics.NetIncome = finance.Metric{Value: income[0].NetIncome, Period: period, Derivation: finance.DerivationReported}
		}
	}

	var cash []cashFlowRow
	cashURL := p.endpoint("/v3/cash-flow-statement/"+esc, key, url.Values{"limit": {"1"}})
	if err := httpx.GetJSON(ctx, p.deps.Client, cashURL, nil, &cash); err == nil && len(cash) > 0 && cash[0].FreeCashFlow != nil {
		out.Metrics.FreeCashFlow = finance.Metric{Value: cash[0].FreeCashFlow, Period: finance.PeriodFY, Derivation: finance.DerivationReported}
	}

	var analysts []analystRow
	analystURL := p.endpoint("/v3/analyst-stock-recommendations/"+esc, key, url.Values{"limit": {"1"}})
	if err := httpx.GetJSON(ctx, p.deps.Client, analystURL, nil, &analysts); err == nil && len(analysts) > 0 {
		a := analysts[0]
		out.AnalystRatings = finance.AnalystRatings{
			StrongBuy:  a.AnalystRatingsStrongBuy,
			Buy:        a.AnalystRatingsBuy,
			Hold:       a.AnalystRatingsHold,
			Sell:       a.AnalystRatingsSell,
			StrongSell: a.AnalystRatingsStrongSell,
		}
	}
	out.RecoarsenPeriod()

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(symbol)
	return res, nil
}

func joinPlace(parts ...string) string {
	kept := parts[:0:0]
	for _, part := range parts {
		if s := strings.TrimSpace(part); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, ", ")
}

func periodFromFMP(period string) finance.MetricPeriod {
	switch strings.ToUpper(strings.TrimSpace(period)) {
	case "FY":
		return finance.PeriodFY
	case "Q1", "Q2", "Q3", "Q4":
		return finance.PeriodQ
	case "TTM":
		return finance.PeriodTTM
	default:
		return finance.PeriodUnknown
	}
}

type filingRow struct {
	Type        string `json:"type"`
	FillingDate string `json:"fillingDate"`
	AcceptedAt  string `json:"acceptedDate"`
	Link        string `json:"link"`
	FinalLink   string `json:"finalLink"`
	CIK         string `json:"cik"`
	Accession   string `json:"accessionNumber"`
}

func (p *Provider) fetchFilings(ctx context.Context, symbol, form string, limit int, key string) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	extra := url.Values{"page": {"0"}, "limit": {strconv.Itoa(limit * 2)}}
	if form != "" {
		extra.Set("type", form)
	}
	var rows []filingRow
	u := p.endpoint("/v3/sec_filings/"+url.PathEscape(symbol), key, extra)
	if err := httpx.GetJSON(ctx, p.deps.Client, u, nil, &rows); err != nil {
		return nil, err
	}

	out := &finance.Filings{Symbol: finance.NormalizeSymbol(symbol), Filings: []finance.Filing{}}
	for _, row := range rows {
		if form != "" && !strings.EqualFold(row.Type, form) {
			continue
		}
		link := row.FinalLink
		if link == "" {
			link = row.Link
		}
		out.Filings = append(out.Filings, finance.Filing{
			Form:            row.Type,
			FilingDate:      dateOnly(row.FillingDate),
			AccessionNumber: row.Accession,
			URL:             link,
		})
		if len(out.Filings) >= limit {
			break
		}
	}

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(symbol)
	return res, nil
}

func dateOnly(s string) string {
	if len(s) >= 10 {
		return s[:10]
	}
	return s
}

type insiderRow struct {
	ReporterName    string   `json:"reportingName"`
	TransactionDate string   `json:"transactionDate"`
	TransactionType string   `json:"transactionType"`
	AcqOrDisp       string   `json:"acquistionOrDisposition"`
	SecuritiesOwned *float64 `json:"securitiesOwned"`
	SecuritiesTrans *float64 `json:"securitiesTransacted"`
	SecurityName    string   `json:"securityName"`
}

func (p *Provider) fetchInsider(ctx context.Context, symbol string, limit int, key string) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	extra := url.Values{"symbol": {symbol}, "page": {"0"}}
	var rows []insiderRow
	if err := httpx.GetJSON(ctx, p.deps.Client, p.endpoint("/v4/insider-trading", key, extra), nil, &rows); err != nil {
		return nil, err
	}

	out := &finance.Insider{Symbol: finance.NormalizeSymbol(symbol), Entries: []finance.InsiderEntry{}}
	for _, row := range rows {
		if row.SecuritiesTrans == nil {
			continue
		}
		shares := *row.SecuritiesTrans
		change := shares
		kind := finance.TransactionOther
		switch strings.ToUpper(strings.TrimSpace(row.AcqOrDisp)) {
		case "A":
			kind = finance.TransactionBuy
		case "D":
			kind = finance.TransactionSell
			change = -shares
		}
		security := row.SecurityName
		if security == "" {
			security = "Common Stock"
		}
		out.Entries = append(out.Entries, finance.InsiderEntry{
			Owner:           row.ReporterName,
			Date:            dateOnly(row.TransactionDate),
			Shares:          shares,
			SharesChange:    change,
			TransactionType: kind,
			Security:        security,
		})
		if len(out.Entries) >= limit*5 {
			break
		}
	}
	out.RecomputeOwnershipChange()

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(symbol)
	return res, nil
}

type newsRow struct {
	Title         string `json:"title"`
	PublishedDate string `json:"publishedDate"`
	Site          string `json:"site"`
	Text          string `json:"text"`
	URL           string `json:"url"`
}

func (p *Provider) fetchNews(ctx context.Context, symbol string, limit int, key string) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	extra := url.Values{"tickers": {symbol}, "limit": {strconv.Itoa(limit)}}
	var rows []newsRow
	if err := httpx.GetJSON(ctx, p.deps.Client, p.endpoint("/v3/stock_news", key, extra), nil, &rows); err != nil {
		return nil, err
	}

	out := &finance.News{Symbol: finance.NormalizeSymbol(symbol), Items: []finance.NewsItem{}}
	for _, row := range rows {
		if len(out.Items) >= limit {
			break
		}
		item := finance.NewsItem{
			Title:   row.Title,
			Source:  row.Site,
			URL:     row.URL,
			Summary: row.Text,
		}
		if t, err := time.Parse("2006-01-02 15:04:05", row.PublishedDate); err == nil {
			item.PublishedAt = t.UTC().Format(time.RFC3339)
		} else {
			item.PublishedAt = row.PublishedDate
		}
		out.Items = append(out.Items, item)
	}

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(symbol)
	return res, nil
}
