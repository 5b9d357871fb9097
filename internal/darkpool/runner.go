package darkpool

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
	"golang.org/x/sync/errgroup"

	"github.com/tickerlens/tickerlens/internal/artifacts"
)

const fetchConcurrency = 4

// Source supplies raw off-exchange rows per ticker.
type Source interface {
	OffExchange(ctx context.Context, symbol string) ([]map[string]any, error)
}

// Config drives one detection run.
type Config struct {
	Tickers      []string
	LookbackDays int
	MinSamples   int
	Significance float64
	MediumZ      float64
	HighZ        float64
	Tier         string
	ReportsRoot  string
}

func (c *Config) setDefaults() error {
	if len(c.Tickers) == 0 {
		return fmt.Errorf("at least one ticker is required")
	}
	for i, t := range c.Tickers {
		c.Tickers[i] = strings.ToUpper(strings.TrimSpace(t))
		if c.Tickers[i] == "" {
			return fmt.Errorf("ticker %d is empty", i+1)
		}
	}
	if c.LookbackDays == 0 {
		c.LookbackDays = 30
	}
	if c.MinSamples == 0 {
		c.MinSamples = 5
	}
	if c.Significance == 0 {
		c.Significance = 2.5
	}
	if c.Tier == "" {
		c.Tier = "unknown"
	}
	if c.ReportsRoot == "" {
		c.ReportsRoot = "reports"
	}
	return nil
}

func (c Config) mode() string {
	if len(c.Tickers) > 1 {
		return "portfolio"
	}
	return "single"
}

func (c Config) scope() string {
	if len(c.Tickers) > 1 {
		return "portfolio"
	}
	return strings.ToLower(c.Tickers[0])
}

// Assumptions records the inputs a run was produced under.
type Assumptions struct {
	RunID        string     `json:"run_id"`
	GeneratedAt  time.Time  `json:"generated_at"`
	Mode         string     `json:"mode"`
	Tier         string     `json:"tier"`
	Tickers      []string   `json:"tickers"`
	LookbackDays int        `json:"lookback_days"`
	MinSamples   int        `json:"min_samples"`
	Thresholds   Thresholds `json:"thresholds"`
}

// Evidence is the machine-readable artifact later runs diff against.
type Evidence struct {
	GeneratedAt  time.Time       `json:"generated_at"`
	Mode         string          `json:"mode"`
	Tier         string          `json:"tier"`
	LookbackDays int             `json:"lookback_days"`
	MinSamples   int             `json:"min_samples"`
	Threshold    float64         `json:"threshold"`
	Tickers      []string        `json:"tickers"`
	Anomalies    []Anomaly       `json:"anomalies"`
	Transitions  []Transition    `json:"transitions"`
	Historical   []HistoricalRun `json:"historical"`
}

// HistoricalRun summarizes one prior evidence file.
type HistoricalRun struct {
	GeneratedAt time.Time `json:"generated_at"`
	Dir         string    `json:"dir"`
	Anomalies   int       `json:"anomalies"`
	Significant int       `json:"significant"`
}

// RunResult reports where artifacts landed and what they hold.
type RunResult struct {
	OutDir      string
	Assumptions Assumptions
	Evidence    Evidence
}

// Runner fetches, scores, and persists anomaly evidence for a set of
// tickers.
type Runner struct {
	source Source
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

// NewRunner wires a detection runner around an off-exchange source.
func NewRunner(source Source, opts ...RunnerOption) *Runner {
	r := &Runner{
		source: source,
		host:   artifacts.AutoApprove{},
		clock:  artifacts.SystemClock(),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run fetches every ticker's off-exchange series, scores the latest
// observation of each, diffs against the prior run's evidence, and
// persists the artifact set. Any per-ticker failure aborts the run so a
// partial evidence file never lands on disk.
func (r *Runner) Run(ctx context.Context, cfg Config) (*RunResult, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	thresholds, err := NewThresholds(cfg.Significance, cfg.MediumZ, cfg.HighZ)
	if err != nil {
		return nil, err
	}
	detector, err := NewDetector(cfg.LookbackDays, cfg.MinSamples, thresholds)
	if err != nil {
		return nil, err
	}

	now := r.clock.Now().UTC()
	outDir := filepath.Join(cfg.ReportsRoot, cfg.scope(), now.Format("2006-01-02"), "darkpool-anomaly")

	anomalies := make([]Anomaly, len(cfg.Tickers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, ticker := range cfg.Tickers {
		g.Go(func() error {
			rows, err := r.source.OffExchange(gctx, ticker)
			if err != nil {
				return fmt.Errorf("fetch off-exchange rows for %s: %w", ticker, err)
			}
			metricKey, observations, err := ParseDataset(rows)
			if err != nil {
				return fmt.Errorf("%s: %w", ticker, err)
			}
			anomaly, err := detector.Analyze(ticker, metricKey, observations)
			if err != nil {
				return err
			}
			anomalies[i] = anomaly
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	prior := r.priorRuns(cfg.ReportsRoot, cfg.scope(), outDir)
	var previous []Anomaly
	historical := make([]HistoricalRun, 0, len(prior))
	for _, run := range prior {
		historical = append(historical, run.summary())
	}
	if len(prior) > 0 {
		previous = prior[len(prior)-1].evidence.Anomalies
	}
	transitions := ClassifyTransitions(anomalies, previous)

	assumptions := Assumptions{
		RunID:        uuid.NewString(),
		GeneratedAt:  now,
		Mode:         cfg.mode(),
		Tier:         cfg.Tier,
		Tickers:      cfg.Tickers,
		LookbackDays: cfg.LookbackDays,
		MinSamples:   cfg.MinSamples,
		Thresholds:   thresholds,
	}
	evidence := Evidence{
		GeneratedAt:  now,
		Mode:         cfg.mode(),
		Tier:         cfg.Tier,
		LookbackDays: cfg.LookbackDays,
		MinSamples:   cfg.MinSamples,
		Threshold:    thresholds.Significance,
		Tickers:      cfg.Tickers,
		Anomalies:    anomalies,
		Transitions:  transitions,
		Historical:   historical,
	}

	res := &RunResult{OutDir: outDir, Assumptions: assumptions, Evidence: evidence}
	if err := r.persist(ctx, res); err != nil {
		return nil, err
	}

	significant := 0
	for _, a := range anomalies {
		if a.Significant {
			significant++
		}
	}
	r.log.Info().
		Str("scope", cfg.scope()).
		Int("tickers", len(cfg.Tickers)).
		Int("significant", significant).
		Int("transitions", len(transitions)).
		Str("dir", outDir).
		Msg("darkpool anomaly run complete")
	return res, nil
}

type priorRun struct {
	dir      string
	evidence Evidence
}

func (p priorRun) summary() HistoricalRun {
	significant := 0
	for _, a := range p.evidence.Anomalies {
		if a.Significant {
			significant++
		}
	}
	return HistoricalRun{
		GeneratedAt: p.evidence.GeneratedAt,
		Dir:         p.dir,
		Anomalies:   len(p.evidence.Anomalies),
		Significant: significant,
	}
}

// priorRuns loads every readable evidence.json under the scope except the
// current output directory, oldest first.
func (r *Runner) priorRuns(reportsRoot, scope, exclude string) []priorRun {
	scopeDir := filepath.Join(reportsRoot, scope)
	entries, err := os.ReadDir(scopeDir)
	if err != nil {
		return nil
	}

	var runs []priorRun
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(scopeDir, entry.Name(), "darkpool-anomaly")
		if sameDir(dir, exclude) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, "evidence.json"))
		if err != nil {
			continue
		}
		var ev Evidence
		if err := json.Unmarshal(raw, &ev); err != nil {
			r.log.Warn().Str("dir", dir).Err(err).Msg("skipping unreadable evidence file")
			continue
		}
		runs = append(runs, priorRun{dir: dir, evidence: ev})
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].evidence.GeneratedAt.Equal(runs[j].evidence.GeneratedAt) {
			return runs[i].evidence.GeneratedAt.Before(runs[j].evidence.GeneratedAt)
		}
		return runs[i].dir < runs[j].dir
	})
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
		"assumptions.json": res.Assumptions,
		"evidence.json":    res.Evidence,
	} {
		raw, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		files[name] = append(raw, '\n')
	}
	files["report.md"] = []byte(renderReport(res))
	files["dashboard.md"] = []byte(renderDashboard(res))
	files["evidence.md"] = []byte(renderEvidence(res))

	writer := artifacts.NewWriter(res.OutDir, r.host,
		artifacts.WithClock(r.clock),
		artifacts.WithLogger(r.log),
	)
	return writer.WriteAll(ctx, files)
}
