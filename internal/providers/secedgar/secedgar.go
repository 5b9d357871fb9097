// Package secedgar adapts SEC EDGAR's full-text endpoints. EDGAR needs no
// API key, only a declared operator identity sent as the User-Agent, and
// it is the authoritative source for the filings intent.
package secedgar

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tickerlens/tickerlens/internal/auth"
	"github.com/tickerlens/tickerlens/internal/finance"
	"github.com/tickerlens/tickerlens/internal/httpx"
	"github.com/tickerlens/tickerlens/internal/providers"
	"github.com/tickerlens/tickerlens/internal/query"
)

const (
	id = "secedgar"

	// DefaultDataBaseURL hosts the structured submissions API.
	DefaultDataBaseURL = "https://data.sec.gov"
	// DefaultSiteBaseURL hosts the ticker directory and filing archives.
	DefaultSiteBaseURL = "https://www.sec.gov"
)

// Provider is the SEC EDGAR adapter.
type Provider struct {
	deps     providers.Deps
	guard    *providers.Guard
	dataBase string
	siteBase string
	timeout  time.Duration

	mu   sync.Mutex
	ciks map[string]int64
}

// Option customizes the provider.
type Option func(*Provider)

// WithDataBaseURL redirects the submissions API host, used by tests.
func WithDataBaseURL(u string) Option {
	return func(p *Provider) { p.dataBase = strings.TrimRight(u, "/") }
}

// WithSiteBaseURL redirects the directory and archive host, used by tests.
func WithSiteBaseURL(u string) Option {
	return func(p *Provider) { p.siteBase = strings.TrimRight(u, "/") }
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

// New builds the adapter. EDGAR's published ceiling is 10 requests per
// second; the limiter stays at half that.
func New(deps providers.Deps, opts ...Option) *Provider {
	p := &Provider{
		deps:     deps,
		dataBase: DefaultDataBaseURL,
		siteBase: DefaultSiteBaseURL,
		timeout:  httpx.DefaultTimeout,
	}
	p.guard = providers.NewGuard(id, providers.GuardConfig{RPS: 5, Burst: 5}, deps.Metrics, deps.Logger)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) ID() string          { return id }
func (p *Provider) DisplayName() string { return "SEC EDGAR" }

// Enabled requires a declared operator identity; EDGAR blocks anonymous
// clients, so running without one only produces noise.
func (p *Provider) Enabled() bool {
	_, ok := p.identity()
	return ok
}

func (p *Provider) identity() (string, bool) {
	return p.deps.Resolver.ResolveProviderAPIKey(auth.ProviderSECEdgar, false)
}

func (p *Provider) Supports(intent finance.Intent) bool {
	return intent == finance.IntentFilings
}

func (p *Provider) Fetch(ctx context.Context, q query.Query) (*finance.Result, error) {
	identity, ok := p.identity()
	if !ok {
		return nil, providers.NewError(id, providers.CodeMissingAuth,
			"no EDGAR identity configured; set SEC_EDGAR_IDENTITY to \"Name email\"")
	}
	if q.Intent != finance.IntentFilings {
		return nil, providers.NewError(id, providers.CodeUnsupported,
			fmt.Sprintf("intent %s not supported", q.Intent))
	}
	return p.guard.Do(ctx, q.Intent, func(ctx context.Context) (*finance.Result, error) {
		return p.fetchFilings(ctx, q.Ticker, q.Form, q.Limit, identity)
	})
}

func (p *Provider) headers(identity string) map[string]string {
	return map[string]string{"User-Agent": strings.TrimSpace(identity)}
}

func (p *Provider) attribution(cik int64) []finance.Attribution {
	return []finance.Attribution{{
		Publisher: "U.S. Securities and Exchange Commission",
		Domain:    "sec.gov",
		URL:       fmt.Sprintf("%s/cgi-bin/browse-edgar?action=getcompany&CIK=%010d", p.siteBase, cik),
	}}
}

// tickerEntry is one row of company_tickers.json, which is keyed by
// arbitrary string indices rather than shipped as an array.
type tickerEntry struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// lookupCIK resolves a ticker through the EDGAR company directory. The
// directory is ~18k entries and changes rarely, so it is fetched once per
// process and kept; a failed fetch is retried on the next call.
func (p *Provider) lookupCIK(ctx context.Context, symbol, identity string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ciks == nil {
		var directory map[string]tickerEntry
		u := p.siteBase + "/files/company_tickers.json"
		if err := httpx.GetJSON(ctx, p.deps.Client, u, p.headers(identity), &directory); err != nil {
			return 0, err
		}
		p.ciks = make(map[string]int64, len(directory))
		for _, entry := range directory {
			p.ciks[finance.NormalizeSymbol(entry.Ticker)] = entry.CIK
		}
	}

	cik, ok := p.ciks[finance.NormalizeSymbol(symbol)]
	if !ok {
		return 0, providers.NewError(id, providers.CodeProviderError,
			fmt.Sprintf("no EDGAR registrant for %s", symbol))
	}
	return cik, nil
}

// submissionsResponse mirrors EDGAR's columnar recent-filings layout:
// index i across every slice describes one filing.
type submissionsResponse struct {
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			ReportDate      []string `json:"reportDate"`
			Form            []string `json:"form"`
			PrimaryDocument []string `json:"primaryDocument"`
			PrimaryDocDesc  []string `json:"primaryDocDescription"`
		} `json:"recent"`
	} `json:"filings"`
}

func (p *Provider) fetchFilings(ctx context.Context, symbol, form string, limit int, identity string) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	cik, err := p.lookupCIK(ctx, symbol, identity)
	if err != nil {
		return nil, err
	}

	var decoded submissionsResponse
	u := fmt.Sprintf("%s/submissions/CIK%010d.json", p.dataBase, cik)
	if err := httpx.GetJSON(ctx, p.deps.Client, u, p.headers(identity), &decoded); err != nil {
		return nil, err
	}

	recent := decoded.Filings.Recent
	n := len(recent.AccessionNumber)
	if len(recent.Form) < n {
		n = len(recent.Form)
	}
	if len(recent.FilingDate) < n {
		n = len(recent.FilingDate)
	}

	out := &finance.Filings{Symbol: finance.NormalizeSymbol(symbol), Filings: []finance.Filing{}}
	for i := 0; i < n; i++ {
		if form != "" && !strings.EqualFold(recent.Form[i], form) {
			continue
		}
		filing := finance.Filing{
			Form:            recent.Form[i],
			AccessionNumber: recent.AccessionNumber[i],
			FilingDate:      recent.FilingDate[i],
			URL:             p.archiveURL(cik, recent.AccessionNumber[i], indexOr(recent.PrimaryDocument, i)),
			Summary:         indexOr(recent.PrimaryDocDesc, i),
		}
		if rd := indexOr(recent.ReportDate, i); rd != "" {
			filing.ReportDate = rd
		}
		out.Filings = append(out.Filings, filing)
		if len(out.Filings) >= limit {
			break
		}
	}

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution(cik)
	return res, nil
}

// archiveURL builds the canonical document link. Accession numbers are
// dash-stripped in archive paths and the CIK loses its zero padding.
func (p *Provider) archiveURL(cik int64, accession, primaryDoc string) string {
	folder := strings.ReplaceAll(accession, "-", "")
	if primaryDoc == "" {
		return fmt.Sprintf("%s/Archives/edgar/data/%d/%s/%s-index.htm", p.siteBase, cik, folder, accession)
	}
	return fmt.Sprintf("%s/Archives/edgar/data/%d/%s/%s", p.siteBase, cik, folder, url.PathEscape(primaryDoc))
}

func indexOr(slice []string, i int) string {
	if i < len(slice) {
		return slice[i]
	}
	return ""
}
