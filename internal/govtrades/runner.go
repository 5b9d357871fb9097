package govtrades

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tickerlens/tickerlens/internal/artifacts"
	"github.com/tickerlens/tickerlens/internal/backtest"
)

// EventSource supplies raw government-trading rows grouped by dataset.
type EventSource interface {
	GovTrading(ctx context.Context, symbol string, datasetIDs []string) (map[string][]map[string]any, error)
}

// Config drives one delta run.
type Config struct {
	Ticker      string
	Scope       string
	Datasets    []string
	ReportsRoot string
}

func (c *Config) setDefaults() error {
	c.Ticker = strings.ToUpper(strings.TrimSpace(c.Ticker))
	if c.Ticker == "" {
		return fmt.Errorf("ticker is required")
	}
	if c.Scope == "" {
		c.Scope = strings.ToLower(c.Ticker)
	}
	if len(c.Datasets) == 0 {
		c.Datasets = backtest.DefaultDatasets()
	}
	if c.ReportsRoot == "" {
		c.ReportsRoot = "reports"
	}
	return nil
}

// DeltaDocument is the persisted delta.json payload.
type DeltaDocument struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Ticker      string             `json:"ticker"`
	Scope       string             `json:"scope"`
	RunID       string             `json:"run_id"`
	RunUUID     string             `json:"run_uuid"`
	BaselineRun string             `json:"baseline_run,omitempty"`
	FirstRun    bool               `json:"first_run"`
	Counts      map[DeltaClass]int `json:"counts"`
	Delta       Delta              `json:"delta"`
}

// PersistenceDocument is the persisted persistence.json payload.
type PersistenceDocument struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Ticker      string             `json:"ticker"`
	TotalRuns   int                `json:"total_runs"`
	Trends      []PersistenceTrend `json:"trends"`
}

// RunResult reports one completed delta run.
type RunResult struct {
	OutDir      string
	RunID       string
	Events      []backtest.Event
	Delta       DeltaDocument
	Persistence PersistenceDocument
}

// Runner fetches disclosures, diffs them against history, and persists
// the run.
type Runner struct {
	events EventSource
	host   artifacts.Host
	clock  artifacts.Clock
	log    zerolog.Logger
}

// RunnerOption adjusts runner wiring.
type RunnerOption func(*Runner)

// WithHost routes artifact writes through a permission gate.
func WithHost(h artifacts.Host) RunnerOption {
	return func(r *Runner) { r.host = h }
}

// WithClock overrides run timestamps.
func WithClock(c artifacts.Clock) RunnerOption {
	return func(r *Runner) { r.clock = c }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) RunnerOption {
	return func(r *Runner) { r.log = log }
}

// NewRunner wires a delta runner around a disclosure source.
func NewRunner(events EventSource, opts ...RunnerOption) *Runner {
	r := &Runner{
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

// Run fetches the ticker's disclosures, classifies them against the most
// recent prior run, computes persistence trends over the whole history,
// and persists events.json, delta.json, persistence.json, and report.md.
func (r *Runner) Run(ctx context.Context, cfg Config) (*RunResult, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	rows, err := r.events.GovTrading(ctx, cfg.Ticker, cfg.Datasets)
	if err != nil {
		return nil, fmt.Errorf("fetch government trading rows: %w", err)
	}
	events, err := backtest.NormalizeEvents(cfg.Ticker, rows)
	if err != nil {
		return nil, err
	}
	events = DedupeByIdentity(events)

	now := r.clock.Now().UTC()
	runID := now.Format("2006-01-02")
	outDir := filepath.Join(cfg.ReportsRoot, "government-trades", cfg.Scope, runID)

	priors := r.priorRuns(cfg.ReportsRoot, cfg.Scope, outDir)
	priorEvents := make([][]backtest.Event, 0, len(priors))
	for _, p := range priors {
		priorEvents = append(priorEvents, p.events)
	}

	var baseline []backtest.Event
	baselineRun := ""
	if len(priors) > 0 {
		baseline = priors[len(priors)-1].events
		baselineRun = priors[len(priors)-1].runID
	}

	deltaDoc := DeltaDocument{
		GeneratedAt: now,
		Ticker:      cfg.Ticker,
		Scope:       cfg.Scope,
		RunID:       runID,
		RunUUID:     uuid.NewString(),
		BaselineRun: baselineRun,
		FirstRun:    len(priors) == 0,
		Delta:       ComputeDelta(events, baseline),
	}
	deltaDoc.Counts = deltaDoc.Delta.Counts()

	persistenceDoc := PersistenceDocument{
		GeneratedAt: now,
		Ticker:      cfg.Ticker,
		TotalRuns:   len(priors) + 1,
		Trends:      PersistenceTrends(events, priorEvents),
	}

	res := &RunResult{
		OutDir:      outDir,
		RunID:       runID,
		Events:      events,
		Delta:       deltaDoc,
		Persistence: persistenceDoc,
	}
	if err := r.persist(ctx, res); err != nil {
		return nil, err
	}

	r.log.Info().
		Str("ticker", cfg.Ticker).
		Int("events", len(events)).
		Int("new", len(deltaDoc.Delta.New)).
		Int("updated", len(deltaDoc.Delta.Updated)).
		Int("removed", len(deltaDoc.Delta.NoLongerPresent)).
		Str("dir", outDir).
		Msg("government trading delta run complete")
	return res, nil
}

type storedRun struct {
	runID  string
	events []backtest.Event
}

// priorRuns loads every prior run's events.json under the scope, ordered
// by run id so the newest run is last.
func (r *Runner) priorRuns(reportsRoot, scope, exclude string) []storedRun {
	scopeDir := filepath.Join(reportsRoot, "government-trades", scope)
	entries, err := os.ReadDir(scopeDir)
	if err != nil {
		return nil
	}

	var runs []storedRun
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(scopeDir, entry.Name())
		if sameDir(dir, exclude) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, "events.json"))
		if err != nil {
			continue
		}
		var events []backtest.Event
		if err := json.Unmarshal(raw, &events); err != nil {
			r.log.Warn().Str("dir", dir).Err(err).Msg("skipping unreadable events file")
			continue
		}
		runs = append(runs, storedRun{runID: entry.Name(), events: events})
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].runID < runs[j].runID })
	return runs
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}

func (r *Runner) persist(ctx context.Context, res *RunResult) error {
	files := map[string][]byte{}
	for name, v := range map[string]any{
		"events.json":      res.Events,
		"delta.json":       res.Delta,
		"persistence.json": res.Persistence,
	} {
		raw, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		files[name] = append(raw, '\n')
	}
	files["report.md"] = []byte(renderReport(res))

	writer := artifacts.NewWriter(res.OutDir, r.host,
		artifacts.WithClock(r.clock),
		artifacts.WithLogger(r.log),
	)
	return writer.WriteAll(ctx, files)
}
