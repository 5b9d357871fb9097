package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tickerlens/tickerlens/internal/artifacts"
	"github.com/tickerlens/tickerlens/internal/finance"
)

// PriceSource loads daily adjusted-close series. The Yahoo provider
// satisfies this.
type PriceSource interface {
	DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]finance.PriceBar, error)
}

// EventSource loads raw government-trading rows grouped by dataset id.
// The Quiver provider satisfies this.
type EventSource interface {
	GovTrading(ctx context.Context, symbol string, datasetIDs []string) (map[string][]map[string]any, error)
}

// DefaultDatasets are the three congressional feeds studied by default.
func DefaultDatasets() []string {
	return []string{"ticker_congress_trading", "ticker_senate_trading", "ticker_house_trading"}
}

// DefaultWindows are the forward-return horizons in trading sessions.
func DefaultWindows() []int { return []int{1, 5, 21} }

// Config parameterizes one event study.
type Config struct {
	Ticker        string
	Scope         string
	Datasets      []string
	AnchorMode    AnchorMode
	Windows       []int
	BenchmarkMode BenchmarkMode
	Sector        string
	ReportsRoot   string
}

func (c *Config) setDefaults() error {
	c.Ticker = strings.ToUpper(strings.TrimSpace(c.Ticker))
	if c.Ticker == "" {
		return fmt.Errorf("backtest config: ticker is required")
	}
	if c.Scope == "" {
		c.Scope = strings.ToLower(c.Ticker)
	}
	if len(c.Datasets) == 0 {
		c.Datasets = DefaultDatasets()
	}
	if c.AnchorMode == "" {
		c.AnchorMode = AnchorTransaction
	}
	if len(c.Windows) == 0 {
		c.Windows = DefaultWindows()
	}
	seen := map[int]struct{}{}
	windows := c.Windows[:0]
	for _, w := range c.Windows {
		if w <= 0 {
			return fmt.Errorf("backtest config: window %d must be positive", w)
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		windows = append(windows, w)
	}
	sort.Ints(windows)
	c.Windows = windows
	if c.BenchmarkMode == "" {
		c.BenchmarkMode = BenchmarkSectorIfRelevant
	}
	if c.ReportsRoot == "" {
		c.ReportsRoot = "reports"
	}
	return nil
}

// Assumptions is the assumptions.json artifact.
type Assumptions struct {
	RunID         string        `json:"run_id"`
	GeneratedAt   time.Time     `json:"generated_at"`
	Scope         string        `json:"scope"`
	Ticker        string        `json:"ticker"`
	Datasets      []string      `json:"datasets"`
	AnchorMode    AnchorMode    `json:"anchor_mode"`
	Windows       []int         `json:"windows"`
	BenchmarkMode BenchmarkMode `json:"benchmark_mode"`
	Benchmarks    []string      `json:"benchmarks"`
	Sector        string        `json:"sector,omitempty"`
	PriceFrom     string        `json:"price_from"`
	PriceTo       string        `json:"price_to"`
	EventCount    int           `json:"event_count"`
	AnchorCount   int           `json:"anchor_count"`
}

// RunResult holds everything a completed study produced.
type RunResult struct {
	OutDir          string
	Assumptions     Assumptions
	Events          []Event
	WindowReturns   []WindowReturn
	RelativeReturns []RelativeReturn
	Aggregates      []AggregateRow
	Comparison      Comparison
}

// Runner executes event studies end to end.
type Runner struct {
	prices PriceSource
	events EventSource
	host   artifacts.Host
	clock  artifacts.Clock
	log    zerolog.Logger
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithHost installs the permission collaborator for artifact writes.
func WithHost(h artifacts.Host) RunnerOption {
	return func(r *Runner) { r.host = h }
}

// WithClock injects a clock, used by tests.
func WithClock(c artifacts.Clock) RunnerOption {
	return func(r *Runner) { r.clock = c }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) RunnerOption {
	return func(r *Runner) { r.log = log }
}

// NewRunner builds a runner over the given sources.
func NewRunner(prices PriceSource, events EventSource, opts ...RunnerOption) *Runner {
	r := &Runner{
		prices: prices,
		events: events,
		host:   artifacts.AutoApprove{},
		clock:  artifacts.SystemClock(),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the study and persists its artifacts. Any failure leaves
// no partial run directory behind since all writes happen at the end.
func (r *Runner) Run(ctx context.Context, cfg Config) (*RunResult, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	now := r.clock.Now().UTC()

	rows, err := r.events.GovTrading(ctx, cfg.Ticker, cfg.Datasets)
	if err != nil {
		return nil, err
	}
	events, err := NormalizeEvents(cfg.Ticker, rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, errf(CodeNoEvents, "no government-trading events for %s across %s",
			cfg.Ticker, strings.Join(cfg.Datasets, ", "))
	}

	anchors, err := ResolveAnchors(events, cfg.AnchorMode)
	if err != nil {
		return nil, err
	}
	benchmarks, err := BenchmarkSymbols(cfg.BenchmarkMode, cfg.Sector)
	if err != nil {
		return nil, err
	}

	from, to := priceRange(anchors, cfg.Windows, now)
	symbols := append([]string{cfg.Ticker}, benchmarks...)
	series, err := r.loadSeries(ctx, symbols, from, to)
	if err != nil {
		return nil, err
	}

	allBars := make([][]finance.PriceBar, 0, len(series))
	for _, sym := range symbols {
		allBars = append(allBars, series[sym])
	}
	calendar := NewCalendar(allBars...)
	closes := closesBySymbol(series)

	windowReturns, relativeReturns, err := r.measure(anchors, cfg, benchmarks, calendar, closes)
	if err != nil {
		return nil, err
	}
	aggregates := Aggregate(relativeReturns)

	asm := Assumptions{
		RunID:         uuid.NewString(),
		GeneratedAt:   now,
		Scope:         cfg.Scope,
		Ticker:        cfg.Ticker,
		Datasets:      cfg.Datasets,
		AnchorMode:    cfg.AnchorMode,
		Windows:       cfg.Windows,
		BenchmarkMode: cfg.BenchmarkMode,
		Benchmarks:    benchmarks,
		Sector:        cfg.Sector,
		PriceFrom:     from.Format("2006-01-02"),
		PriceTo:       to.Format("2006-01-02"),
		EventCount:    len(events),
		AnchorCount:   len(anchors),
	}

	outDir := filepath.Join(cfg.ReportsRoot, "political-backtest", cfg.Scope, now.Format("2006-01-02"))
	priorRuns, err := DiscoverRuns(cfg.ReportsRoot, cfg.Scope, outDir)
	if err != nil {
		return nil, fmt.Errorf("discover prior runs: %w", err)
	}
	ids := make([]string, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	sort.Strings(ids)
	current := RunSummary{Dir: outDir, GeneratedAt: now, EventIDs: ids, Aggregates: aggregates}
	var baseline *RunSummary
	if len(priorRuns) > 0 {
		baseline = &priorRuns[len(priorRuns)-1]
	}
	comparison := CompareRuns(current, baseline)

	result := &RunResult{
		OutDir:          outDir,
		Assumptions:     asm,
		Events:          events,
		WindowReturns:   windowReturns,
		RelativeReturns: relativeReturns,
		Aggregates:      aggregates,
		Comparison:      comparison,
	}
	if err := r.persist(ctx, result); err != nil {
		return nil, err
	}
	r.log.Info().
		Str("ticker", cfg.Ticker).
		Int("events", len(events)).
		Int("anchors", len(anchors)).
		Str("out", outDir).
		Msg("backtest complete")
	return result, nil
}

// priceRange pads the anchor span so the widest window plus alignment
// shifts stay inside the loaded series.
func priceRange(anchors []Anchor, windows []int, now time.Time) (time.Time, time.Time) {
	minDate, maxDate := anchors[0].Date, anchors[0].Date
	for _, a := range anchors[1:] {
		if a.Date < minDate {
			minDate = a.Date
		}
		if a.Date > maxDate {
			maxDate = a.Date
		}
	}
	maxWindow := windows[len(windows)-1]

	from, _ := time.Parse("2006-01-02", minDate)
	to, _ := time.Parse("2006-01-02", maxDate)
	from = from.AddDate(0, 0, -7)
	to = to.AddDate(0, 0, maxWindow*2+14)
	if to.After(now) {
		to = now
	}
	return from, to
}

// loadSeries fetches every symbol's bars in parallel; the series count is
// small (ticker plus one or two benchmarks), so no limit is set.
func (r *Runner) loadSeries(ctx context.Context, symbols []string, from, to time.Time) (map[string][]finance.PriceBar, error) {
	series := make(map[string][]finance.PriceBar, len(symbols))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, sym := range symbols {
		g.Go(func() error {
			bars, err := r.prices.DailyBars(gctx, sym, from, to)
			if err != nil {
				return errf(CodeMissingPriceData, "load %s: %v", sym, err)
			}
			if len(bars) == 0 {
				return errf(CodeMissingPriceData, "no price bars for %s in %s..%s",
					sym, from.Format("2006-01-02"), to.Format("2006-01-02"))
			}
			mu.Lock()
			series[sym] = bars
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return series, nil
}

func closesBySymbol(series map[string][]finance.PriceBar) map[string]map[string]float64 {
	closes := make(map[string]map[string]float64, len(series))
	for sym, bars := range series {
		m := make(map[string]float64, len(bars))
		for _, bar := range bars {
			m[bar.Date] = bar.AdjustedClose
		}
		closes[sym] = m
	}
	return closes
}

// measure walks every (anchor, window, benchmark) cell; any gap fails the
// whole study rather than silently thinning the sample.
func (r *Runner) measure(anchors []Anchor, cfg Config, benchmarks []string, calendar *Calendar, closes map[string]map[string]float64) ([]WindowReturn, []RelativeReturn, error) {
	var windowReturns []WindowReturn
	var relativeReturns []RelativeReturn

	closeAt := func(symbol, date string) (float64, error) {
		if v, ok := closes[symbol][date]; ok {
			return v, nil
		}
		return 0, errf(CodeWindowOutOfRange, "no %s close on %s", symbol, date)
	}

	for _, anchor := range anchors {
		aligned, shifted, err := calendar.AlignNextSession(anchor.Date)
		if err != nil {
			return nil, nil, err
		}
		for _, w := range cfg.Windows {
			end, ok := calendar.Offset(aligned, w)
			if !ok {
				return nil, nil, errf(CodeWindowOutOfRange,
					"window %d from %s leaves the loaded price window", w, aligned)
			}
			startClose, err := closeAt(cfg.Ticker, aligned)
			if err != nil {
				return nil, nil, err
			}
			endClose, err := closeAt(cfg.Ticker, end)
			if err != nil {
				return nil, nil, err
			}
			forward := forwardReturnPct(startClose, endClose)
			windowReturns = append(windowReturns, WindowReturn{
				EventID:        anchor.EventID,
				AnchorKind:     anchor.Kind,
				AnchorDate:     anchor.Date,
				AlignedDate:    aligned,
				Shifted:        shifted,
				WindowSessions: w,
				StartClose:     startClose,
				EndClose:       endClose,
				ForwardPct:     forward,
			})

			for _, bench := range benchmarks {
				benchStart, err := closeAt(bench, aligned)
				if err != nil {
					return nil, nil, err
				}
				benchEnd, err := closeAt(bench, end)
				if err != nil {
					return nil, nil, err
				}
				benchForward := forwardReturnPct(benchStart, benchEnd)
				relativeReturns = append(relativeReturns, RelativeReturn{
					EventID:        anchor.EventID,
					AnchorKind:     anchor.Kind,
					AlignedDate:    aligned,
					WindowSessions: w,
					Benchmark:      bench,
					ForwardPct:     forward,
					BenchmarkPct:   benchForward,
					ExcessPct:      round(forward-benchForward, 6),
					RelativePct:    relativeReturnPct(forward, benchForward),
				})
			}
		}
	}
	return windowReturns, relativeReturns, nil
}

// persist writes the eight run artifacts through the permission-gated
// writer.
func (r *Runner) persist(ctx context.Context, res *RunResult) error {
	files := map[string][]byte{}
	for name, v := range map[string]any{
		"assumptions.json":                res.Assumptions,
		"events.json":                     res.Events,
		"event-window-returns.json":       res.WindowReturns,
		"benchmark-relative-returns.json": res.RelativeReturns,
		"aggregate-results.json":          res.Aggregates,
		"comparison.json":                 res.Comparison,
	} {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		files[name] = append(data, '\n')
	}
	files["report.md"] = renderReport(res)
	files["dashboard.md"] = renderDashboard(res)

	writer := artifacts.NewWriter(res.OutDir, r.host,
		artifacts.WithClock(r.clock), artifacts.WithLogger(r.log))
	return writer.WriteAll(ctx, files)
}
