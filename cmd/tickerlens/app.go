package main

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/tickerlens/tickerlens/internal/auth"
	"github.com/tickerlens/tickerlens/internal/cache"
	"github.com/tickerlens/tickerlens/internal/config"
	"github.com/tickerlens/tickerlens/internal/federation"
	"github.com/tickerlens/tickerlens/internal/httpx"
	"github.com/tickerlens/tickerlens/internal/metrics"
	"github.com/tickerlens/tickerlens/internal/providers"
	"github.com/tickerlens/tickerlens/internal/providers/alphavantage"
	"github.com/tickerlens/tickerlens/internal/providers/finnhub"
	"github.com/tickerlens/tickerlens/internal/providers/fmp"
	"github.com/tickerlens/tickerlens/internal/providers/polygon"
	"github.com/tickerlens/tickerlens/internal/providers/quartr"
	"github.com/tickerlens/tickerlens/internal/providers/quiver"
	"github.com/tickerlens/tickerlens/internal/providers/secedgar"
	"github.com/tickerlens/tickerlens/internal/providers/yahoo"
)

// app wires the provider stack once per invocation. Workflow commands
// reach the concrete Yahoo and Quiver adapters directly; everything else
// goes through the federation engine.
type app struct {
	cfg      *config.Config
	store    *auth.Store
	resolver *auth.Resolver
	metrics  *metrics.Set
	cache    *cache.Cache
	registry *providers.Registry
	engine   *federation.Engine
	yahoo    *yahoo.Provider
	quiver   *quiver.Provider
	log      zerolog.Logger
}

func newApp(configPath string, logger zerolog.Logger) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	dataRoot, err := auth.DefaultDataRoot()
	if err != nil {
		return nil, err
	}
	store := auth.NewStore(dataRoot)
	resolver := auth.NewResolver(store)

	a := &app{
		cfg:      cfg,
		store:    store,
		resolver: resolver,
		metrics:  metrics.NewSet(),
		log:      logger,
	}

	deps := providers.Deps{
		Resolver: resolver,
		Client:   httpx.NewClient(cfg.HTTPTimeout()),
		Metrics:  a.metrics,
		Logger:   logger,
	}
	byID := a.buildProviders(deps)

	var ordered []providers.Provider
	for _, id := range cfg.Federation.Order {
		p, ok := byID[id]
		if !ok {
			logger.Warn().Str("provider", id).Msg("unknown provider in federation order, skipping")
			continue
		}
		if cfg.ProviderFor(id).Disabled {
			continue
		}
		ordered = append(ordered, p)
	}
	a.registry = providers.NewRegistry(ordered...)

	a.cache = cache.NewWithTTLs(cfg.CacheTTLs(cache.DefaultTTLs()))
	a.engine = federation.New(a.registry, a.cache, a.metrics, logger)
	return a, nil
}

func (a *app) buildProviders(deps providers.Deps) map[string]providers.Provider {
	cfg := a.cfg

	guardOverride := func(id string) (providers.GuardConfig, bool) {
		p := cfg.ProviderFor(id)
		if p.RPS == 0 && p.Burst == 0 {
			return providers.GuardConfig{}, false
		}
		return providers.GuardConfig{RPS: p.RPS, Burst: p.Burst}, true
	}
	timeoutOverride := func(id string) time.Duration {
		return cfg.ProviderFor(id).Timeout(0)
	}
	baseURLOverride := func(id string) string {
		return cfg.ProviderFor(id).BaseURL
	}

	byID := map[string]providers.Provider{}

	{
		var opts []yahoo.Option
		if u := baseURLOverride("yahoo"); u != "" {
			opts = append(opts, yahoo.WithBaseURL(u))
		}
		if t := timeoutOverride("yahoo"); t > 0 {
			opts = append(opts, yahoo.WithTimeout(t))
		}
		if g, ok := guardOverride("yahoo"); ok {
			opts = append(opts, yahoo.WithGuardConfig(g))
		}
		a.yahoo = yahoo.New(deps, opts...)
		byID["yahoo"] = a.yahoo
	}
	{
		var opts []alphavantage.Option
		if u := baseURLOverride("alphavantage"); u != "" {
			opts = append(opts, alphavantage.WithBaseURL(u))
		}
		if t := timeoutOverride("alphavantage"); t > 0 {
			opts = append(opts, alphavantage.WithTimeout(t))
		}
		if g, ok := guardOverride("alphavantage"); ok {
			opts = append(opts, alphavantage.WithGuardConfig(g))
		}
		byID["alphavantage"] = alphavantage.New(deps, opts...)
	}
	{
		var opts []finnhub.Option
		if u := baseURLOverride("finnhub"); u != "" {
			opts = append(opts, finnhub.WithBaseURL(u))
		}
		if t := timeoutOverride("finnhub"); t > 0 {
			opts = append(opts, finnhub.WithTimeout(t))
		}
		if g, ok := guardOverride("finnhub"); ok {
			opts = append(opts, finnhub.WithGuardConfig(g))
		}
		byID["finnhub"] = finnhub.New(deps, opts...)
	}
	{
		var opts []fmp.Option
		if u := baseURLOverride("fmp"); u != "" {
			opts = append(opts, fmp.WithBaseURL(u))
		}
		if t := timeoutOverride("fmp"); t > 0 {
			opts = append(opts, fmp.WithTimeout(t))
		}
		if g, ok := guardOverride("fmp"); ok {
			opts = append(opts, fmp.WithGuardConfig(g))
		}
		byID["fmp"] = fmp.New(deps, opts...)
	}
	{
		var opts []polygon.Option
		if u := baseURLOverride("polygon"); u != "" {
			opts = append(opts, polygon.WithBaseURL(u))
		}
		if t := timeoutOverride("polygon"); t > 0 {
			opts = append(opts, polygon.WithTimeout(t))
		}
		if g, ok := guardOverride("polygon"); ok {
			opts = append(opts, polygon.WithGuardConfig(g))
		}
		byID["polygon"] = polygon.New(deps, opts...)
	}
	{
		var opts []quartr.Option
		if u := baseURLOverride("quartr"); u != "" {
			opts = append(opts, quartr.WithBaseURL(u))
		}
		if t := timeoutOverride("quartr"); t > 0 {
			opts = append(opts, quartr.WithTimeout(t))
		}
		if g, ok := guardOverride("quartr"); ok {
			opts = append(opts, quartr.WithGuardConfig(g))
		}
		byID["quartr"] = quartr.New(deps, opts...)
	}
	{
		var opts []secedgar.Option
		if u := baseURLOverride("secedgar"); u != "" {
			opts = append(opts, secedgar.WithDataBaseURL(u))
		}
		if t := timeoutOverride("secedgar"); t > 0 {
			opts = append(opts, secedgar.WithTimeout(t))
		}
		if g, ok := guardOverride("secedgar"); ok {
			opts = append(opts, secedgar.WithGuardConfig(g))
		}
		byID["secedgar"] = secedgar.New(deps, opts...)
	}
	{
		var opts []quiver.Option
		if u := baseURLOverride("quiver"); u != "" {
			opts = append(opts, quiver.WithBaseURL(u))
		}
		if t := timeoutOverride("quiver"); t > 0 {
			opts = append(opts, quiver.WithTimeout(t))
		}
		if g, ok := guardOverride("quiver"); ok {
			opts = append(opts, quiver.WithGuardConfig(g))
		}
		a.quiver = quiver.New(deps, opts...)
		byID["quiver"] = a.quiver
	}
	return byID
}
