package backtest

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// RunSummary is one persisted run re-read from disk. Baselines are always
// reconstructed from artifacts, never from in-memory session state.
type RunSummary struct {
	Dir         string
	GeneratedAt time.Time
	EventIDs    []string
	Aggregates  []AggregateRow
}

type runAssumptions struct {
	GeneratedAt time.Time `json:"generated_at"`
}

// DiscoverRuns scans reportsRoot/political-backtest/<scopeKey>/ for run
// directories holding the three required artifacts, sorted by generation
// time ascending. The exclude directory (the in-progress run) is skipped.
func DiscoverRuns(reportsRoot, scopeKey, exclude string) ([]RunSummary, error) {
	scopeDir := filepath.Join(reportsRoot, "political-backtest", scopeKey)
	entries, err := os.ReadDir(scopeDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var runs []RunSummary
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(scopeDir, entry.Name())
		if sameDir(dir, exclude) {
			continue
		}
		if summary, ok := loadRun(dir); ok {
			runs = append(runs, summary)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].GeneratedAt.Equal(runs[j].GeneratedAt) {
			return runs[i].GeneratedAt.Before(runs[j].GeneratedAt)
		}
		return runs[i].Dir < runs[j].Dir
	})
	return runs, nil
}

// loadRun reads a run directory; directories missing any required artifact
// or holding unparseable JSON are not runs and are skipped silently.
func loadRun(dir string) (RunSummary, bool) {
	var asm runAssumptions
	if !readJSON(filepath.Join(dir, "assumptions.json"), &asm) {
		return RunSummary{}, false
	}
	var aggregates []AggregateRow
	if !readJSON(filepath.Join(dir, "aggregate-results.json"), &aggregates) {
		return RunSummary{}, false
	}
	var events []Event
	if !readJSON(filepath.Join(dir, "events.json"), &events) {
		return RunSummary{}, false
	}

	ids := make([]string, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	sort.Strings(ids)

	return RunSummary{Dir: dir, GeneratedAt: asm.GeneratedAt, EventIDs: ids, Aggregates: aggregates}, true
}

func readJSON(path string, out any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func sameDir(a, b string) bool {
	if b == "" {
		return false
	}
	pa, err1 := filepath.Abs(a)
	pb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return pa == pb
}

// EventSample compares event-id sets between runs.
type EventSample struct {
	Current       int      `json:"current"`
	Baseline      int      `json:"baseline"`
	NewEvents     []string `json:"new_events"`
	RemovedEvents []string `json:"removed_events"`
}

// DriftRow is the per-group delta between runs, current minus baseline.
type DriftRow struct {
	AnchorKind      string  `json:"anchor_kind"`
	WindowSessions  int     `json:"window_sessions"`
	Benchmark       string  `json:"benchmark"`
	SampleDelta     int     `json:"sample_delta"`
	HitRateDelta    float64 `json:"hit_rate_delta"`
	MeanDelta       float64 `json:"mean_forward_delta"`
	MedianDelta     float64 `json:"median_forward_delta"`
	MeanExcessDelta float64 `json:"mean_excess_delta"`
}

// ConclusionChange flags a group whose mean-excess sign flipped.
type ConclusionChange struct {
	AnchorKind     string `json:"anchor_kind"`
	WindowSessions int    `json:"window_sessions"`
	Benchmark      string `json:"benchmark"`
	Baseline       string `json:"baseline"`
	Current        string `json:"current"`
}

// Comparison is the comparison.json artifact.
type Comparison struct {
	FirstRun          bool               `json:"first_run"`
	BaselineDir       string             `json:"baseline_dir,omitempty"`
	EventSample       EventSample        `json:"event_sample"`
	AggregateDrift    []DriftRow         `json:"aggregate_drift"`
	ConclusionChanges []ConclusionChange `json:"conclusion_changes"`
}

// CompareRuns diffs the current run against a baseline; a nil baseline
// marks the first run for the scope.
func CompareRuns(current RunSummary, baseline *RunSummary) Comparison {
	cmp := Comparison{
		FirstRun:          baseline == nil,
		AggregateDrift:    []DriftRow{},
		ConclusionChanges: []ConclusionChange{},
	}
	cmp.EventSample.Current = len(current.EventIDs)
	cmp.EventSample.NewEvents = []string{}
	cmp.EventSample.RemovedEvents = []string{}

	if baseline == nil {
		cmp.EventSample.NewEvents = append(cmp.EventSample.NewEvents, current.EventIDs...)
		sort.Strings(cmp.EventSample.NewEvents)
		return cmp
	}

	cmp.BaselineDir = baseline.Dir
	cmp.EventSample.Baseline = len(baseline.EventIDs)

	curSet := stringSet(current.EventIDs)
	baseSet := stringSet(baseline.EventIDs)
	for id := range curSet {
		if _, ok := baseSet[id]; !ok {
			cmp.EventSample.NewEvents = append(cmp.EventSample.NewEvents, id)
		}
	}
	for id := range baseSet {
		if _, ok := curSet[id]; !ok {
			cmp.EventSample.RemovedEvents = append(cmp.EventSample.RemovedEvents, id)
		}
	}
	sort.Strings(cmp.EventSample.NewEvents)
	sort.Strings(cmp.EventSample.RemovedEvents)

	baseRows := map[aggregateKey]AggregateRow{}
	for _, row := range baseline.Aggregates {
		baseRows[aggregateKey{kind: row.AnchorKind, window: row.WindowSessions, bench: row.Benchmark}] = row
	}
	for _, cur := range current.Aggregates {
		base, ok := baseRows[aggregateKey{kind: cur.AnchorKind, window: cur.WindowSessions, bench: cur.Benchmark}]
		if !ok {
			continue
		}
		cmp.AggregateDrift = append(cmp.AggregateDrift, DriftRow{
			AnchorKind:      cur.AnchorKind,
			WindowSessions:  cur.WindowSessions,
			Benchmark:       cur.Benchmark,
			SampleDelta:     cur.Sample - base.Sample,
			HitRateDelta:    round(cur.HitRate-base.HitRate, 4),
			MeanDelta:       round(cur.MeanForward-base.MeanForward, 6),
			MedianDelta:     round(cur.MedianForward-base.MedianForward, 6),
			MeanExcessDelta: round(cur.MeanExcess-base.MeanExcess, 6),
		})
		baseLabel := conclusionLabel(base.MeanExcess)
		curLabel := conclusionLabel(cur.MeanExcess)
		if baseLabel != curLabel {
			cmp.ConclusionChanges = append(cmp.ConclusionChanges, ConclusionChange{
				AnchorKind:     cur.AnchorKind,
				WindowSessions: cur.WindowSessions,
				Benchmark:      cur.Benchmark,
				Baseline:       baseLabel,
				Current:        curLabel,
			})
		}
	}
	return cmp
}

func conclusionLabel(meanExcess float64) string {
	if math.Abs(meanExcess) < 1e-9 {
		return "flat"
	}
	if meanExcess > 0 {
		return "outperform"
	}
	return "underperform"
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
