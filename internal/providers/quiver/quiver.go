// Package quiver adapts the QuiverQuant beta API. Besides the insider
// intent it exposes raw government-trading and off-exchange rows for the
// backtest, delta and darkpool workflows.
package quiver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tickerlens/tickerlens/internal/auth"
	"github.com/tickerlens/tickerlens/internal/finance"
	"github.com/tickerlens/tickerlens/internal/httpx"
	"github.com/tickerlens/tickerlens/internal/providers"
	"github.com/tickerlens/tickerlens/internal/query"
)

const (
	id             = "quiver"
	DefaultBaseURL = "https://api.quiverquant.com/beta"
)

// Canonical dataset ids. The backtest and delta workflows address Quiver
// endpoints through these rather than raw paths.
const (
	DatasetCongress    = "ticker_congress_trading"
	DatasetSenate      = "ticker_senate_trading"
	DatasetHouse       = "ticker_house_trading"
	DatasetContracts   = "ticker_gov_contracts"
	DatasetLobbying    = "ticker_lobbying"
	DatasetOffExchange = "ticker_off_exchange"
)

// Dataset describes one catalog endpoint. Path gets the ticker appended.
type Dataset struct {
	ID    string
	Label string
	Path  string
	Tier  auth.EndpointTier
}

// Catalog lists every Quiver endpoint the system consumes, in a stable
// order used for fallback summaries.
func Catalog() []Dataset {
	return []Dataset{
		{ID: DatasetCongress, Label: "Congress Trading", Path: "/historical/congresstrading", Tier: auth.EndpointTier1},
		{ID: DatasetSenate, Label: "Senate Trading", Path: "/historical/senatetrading", Tier: auth.EndpointTier1},
		{ID: DatasetHouse, Label: "House Trading", Path: "/historical/housetrading", Tier: auth.EndpointTier1},
		{ID: DatasetContracts, Label: "Government Contracts", Path: "/historical/govcontractsall", Tier: auth.EndpointTier1},
		{ID: DatasetLobbying, Label: "Lobbying", Path: "/historical/lobbying", Tier: auth.EndpointTier1},
		{ID: DatasetOffExchange, Label: "Off-Exchange Volume", Path: "/historical/offexchange", Tier: auth.EndpointTier1},
	}
}

// DatasetByID finds a catalog entry.
func DatasetByID(dsID string) (Dataset, bool) {
	for _, ds := range Catalog() {
		if ds.ID == dsID {
			return ds, true
		}
	}
	return Dataset{}, false
}

// GovTradingDatasets returns the three congressional trading dataset ids
// in canonical order.
func GovTradingDatasets() []string {
	return []string{DatasetCongress, DatasetSenate, DatasetHouse}
}

// Provider is the QuiverQuant adapter.
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
	p.guard = providers.NewGuard(id, providers.GuardConfig{RPS: 2, Burst: 4}, deps.Metrics, deps.Logger)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) ID() string          { return id }
func (p *Provider) DisplayName() string { return "QuiverQuant" }

func (p *Provider) Enabled() bool {
	_, ok := p.deps.Resolver.ResolveQuiverCredential(true)
	return ok
}

func (p *Provider) Supports(intent finance.Intent) bool {
	return intent == finance.IntentInsider
}

// Credential exposes the resolved key and plan tier for workflows that
// report tier context in their artifacts.
func (p *Provider) Credential() (auth.QuiverCredential, bool) {
	return p.deps.Resolver.ResolveQuiverCredential(true)
}

func (p *Provider) Fetch(ctx context.Context, q query.Query) (*finance.Result, error) {
	cred, ok := p.Credential()
	if !ok {
		return nil, providers.NewError(id, providers.CodeMissingAuth, "no QuiverQuant API key configured")
	}
	if q.Intent != finance.IntentInsider {
		return nil, providers.NewError(id, providers.CodeUnsupported,
			fmt.Sprintf("intent %s not supported", q.Intent))
	}
	return p.guard.Do(ctx, q.Intent, func(ctx context.Context) (*finance.Result, error) {
		if auth.TierAllows(auth.EndpointTier2, cred.Tier) {
			return p.fetchLiveInsiders(ctx, q.Ticker, q.Limit, cred)
		}
		return p.fallbackSummary(ctx, q.Ticker, cred)
	})
}

func (p *Provider) headers(key string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + key}
}

func (p *Provider) attribution() []finance.Attribution {
	return []finance.Attribution{{
		Publisher: "QuiverQuant",
		Domain:    "quiverquant.com",
		URL:       "https://www.quiverquant.com",
	}}
}

type liveInsiderRow struct {
	Name             string   `json:"Name"`
	Date             string   `json:"Date"`
	TransactionCode  string   `json:"TransactionCode"`
	AcquiredDisposed string   `json:"AcquiredDisposedCode"`
	Shares           *float64 `json:"Shares"`
}

func (p *Provider) fetchLiveInsiders(ctx context.Context, symbol string, limit int, cred auth.QuiverCredential) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/live/insiders?%s", p.baseURL, url.Values{"ticker": {symbol}}.Encode())
	var rows []liveInsiderRow
	if err := httpx.GetJSON(ctx, p.deps.Client, u, p.headers(cred.Key), &rows); err != nil {
		return nil, err
	}

	out := &finance.Insider{Symbol: finance.NormalizeSymbol(symbol), Entries: []finance.InsiderEntry{}}
	for _, row := range rows {
		if row.Shares == nil {
			continue
		}
		shares := *row.Shares
		if shares < 0 {
			shares = -shares
		}
		change := shares
		kind := finance.TransactionOther
		switch {
		case strings.EqualFold(row.AcquiredDisposed, "A") || strings.EqualFold(row.TransactionCode, "P"):
			kind = finance.TransactionBuy
		case strings.EqualFold(row.AcquiredDisposed, "D") || strings.EqualFold(row.TransactionCode, "S"):
			kind = finance.TransactionSell
			change = -shares
		}
		out.Entries = append(out.Entries, finance.InsiderEntry{
			Owner:           row.Name,
			Date:            trimDate(row.Date),
			Shares:          shares,
			SharesChange:    change,
			TransactionType: kind,
			Security:        "Common Stock",
		})
		if len(out.Entries) >= limit*5 {
			break
		}
	}
	out.RecomputeOwnershipChange()

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution()
	if cred.Inferred && cred.Warning != "" {
		res.Errors = append(res.Errors, cred.Warning)
	}
	return res, nil
}

// fallbackSummary is the sub-tier_2 insider path: every tier-1 endpoint is
// fetched (no pre-gating; a denied plan simply surfaces its refusals) and
// row counts are folded into an advisory summary with zero entries.
func (p *Provider) fallbackSummary(ctx context.Context, symbol string, cred auth.QuiverCredential) (*finance.Result, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	catalog := Catalog()
	counts := make([]int, len(catalog))
	failures := make([]error, len(catalog))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for i, ds := range catalog {
		g.Go(func() error {
			rows, err := p.fetchRows(gctx, ds, symbol, cred.Key)
			if err != nil {
				failures[i] = providers.Classify(id, err)
				return nil
			}
			counts[i] = len(rows)
			return nil
		})
	}
	_ = g.Wait()

	var parts []string
	var errs []string
	total := 0
	for i, ds := range catalog {
		if failures[i] != nil {
			errs = append(errs, fmt.Sprintf("%s: %s", strings.ToLower(ds.Label), errorMessage(failures[i])))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %d rows", ds.Label, counts[i]))
		total += counts[i]
	}

	coverage := "no tier-1 rows reachable"
	if len(parts) > 0 {
		coverage = strings.Join(parts, "; ")
	}
	text := fmt.Sprintf(
		"Live Form-4 insider data requires a Trader plan or higher; current plan is %s. Tier-1 coverage for %s: %s (%d rows total). Record an upgraded plan with: tickerlens auth login --provider quiver --tier <plan>",
		cred.Tier, finance.NormalizeSymbol(symbol), coverage, total)

	out := &finance.Insider{
		Symbol:  finance.NormalizeSymbol(symbol),
		Entries: []finance.InsiderEntry{},
		Summary: &finance.InsiderSummary{Source: id, Text: text},
	}

	res := finance.NewResult(id, out)
	res.Attribution = p.attribution()
	if cred.Inferred && cred.Warning != "" {
		res.Errors = append(res.Errors, cred.Warning)
	}
	res.Errors = append(res.Errors, errs...)
	return res, nil
}

func errorMessage(err error) string {
	var perr *providers.Error
	if errors.As(err, &perr) {
		return perr.Message
	}
	return err.Error()
}

// fetchRows performs one catalog fetch, decoding into loose rows since
// column sets vary per dataset and per plan.
func (p *Provider) fetchRows(ctx context.Context, ds Dataset, symbol, key string) ([]map[string]any, error) {
	u := fmt.Sprintf("%s%s/%s", p.baseURL, ds.Path, url.PathEscape(finance.NormalizeSymbol(symbol)))
	var rows []map[string]any
	if err := httpx.GetJSON(ctx, p.deps.Client, u, p.headers(key), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// GovTrading fetches raw rows for the requested government-trading
// datasets, keyed by dataset id. Unknown ids and upstream failures abort
// the whole call; partial event sets would skew downstream studies.
func (p *Provider) GovTrading(ctx context.Context, symbol string, datasetIDs []string) (map[string][]map[string]any, error) {
	cred, ok := p.Credential()
	if !ok {
		return nil, providers.NewError(id, providers.CodeMissingAuth, "no QuiverQuant API key configured")
	}
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	rowsByDataset := make(map[string][]map[string]any, len(datasetIDs))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)

	for _, dsID := range datasetIDs {
		ds, found := DatasetByID(dsID)
		if !found {
			return nil, providers.NewError(id, providers.CodeUnsupported,
				fmt.Sprintf("unknown dataset %q", dsID))
		}
		g.Go(func() error {
			rows, err := p.fetchRows(gctx, ds, symbol, cred.Key)
			if err != nil {
				return providers.Classify(id, err)
			}
			mu.Lock()
			rowsByDataset[ds.ID] = rows
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rowsByDataset, nil
}

// OffExchange fetches the darkpool share-volume series for a ticker.
func (p *Provider) OffExchange(ctx context.Context, symbol string) ([]map[string]any, error) {
	cred, ok := p.Credential()
	if !ok {
		return nil, providers.NewError(id, providers.CodeMissingAuth, "no QuiverQuant API key configured")
	}
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	ds, _ := DatasetByID(DatasetOffExchange)
	rows, err := p.fetchRows(ctx, ds, symbol, cred.Key)
	if err != nil {
		return nil, providers.Classify(id, err)
	}
	return rows, nil
}

func trimDate(s string) string {
	if len(s) >= 10 {
		return s[:10]
	}
	return s
}
