package backtest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAggregates(meanExcess float64) []AggregateRow {
	return []AggregateRow{{
		AnchorKind:     "transaction",
		WindowSessions: 5,
		Benchmark:      "SPY",
		Sample:         4,
		HitRate:        0.75,
		MeanForward:    1.2,
		MedianForward:  1.0,
		MeanExcess:     meanExcess,
	}}
}

func TestCompareRuns_FirstRun(t *testing.T) {
	current := RunSummary{EventIDs: []string{"b", "a"}, Aggregates: sampleAggregates(0.5)}

	cmp := CompareRuns(current, nil)

	assert.True(t, cmp.FirstRun)
	assert.Empty(t, cmp.BaselineDir)
	assert.Equal(t, []string{"a", "b"}, cmp.EventSample.NewEvents)
	assert.Empty(t, cmp.EventSample.RemovedEvents)
	assert.Empty(t, cmp.AggregateDrift)
	assert.Empty(t, cmp.ConclusionChanges)
}

func TestCompareRuns_IdenticalRunsShowZeroDrift(t *testing.T) {
	run := RunSummary{Dir: "r1", EventIDs: []string{"a", "b"}, Aggregates: sampleAggregates(0.5)}

	cmp := CompareRuns(run, &run)

	assert.False(t, cmp.FirstRun)
	assert.Equal(t, "r1", cmp.BaselineDir)
	assert.Empty(t, cmp.EventSample.NewEvents)
	assert.Empty(t, cmp.EventSample.RemovedEvents)
	require.Len(t, cmp.AggregateDrift, 1)
	assert.Zero(t, cmp.AggregateDrift[0].SampleDelta)
	assert.Zero(t, cmp.AggregateDrift[0].HitRateDelta)
	assert.Zero(t, cmp.AggregateDrift[0].MeanDelta)
	assert.Empty(t, cmp.ConclusionChanges)
}

func TestCompareRuns_EventSetDiff(t *testing.T) {
	baseline := RunSummary{Dir: "r1", EventIDs: []string{"a", "b", "c"}}
	current := RunSummary{Dir: "r2", EventIDs: []string{"b", "c", "d", "e"}}

	cmp := CompareRuns(current, &baseline)

	assert.Equal(t, 4, cmp.EventSample.Current)
	assert.Equal(t, 3, cmp.EventSample.Baseline)
	assert.Equal(t, []string{"d", "e"}, cmp.EventSample.NewEvents)
	assert.Equal(t, []string{"a"}, cmp.EventSample.RemovedEvents)
}

func TestCompareRuns_ConclusionFlip(t *testing.T) {
	baseline := RunSummary{Dir: "r1", Aggregates: sampleAggregates(-0.4)}
	current := RunSummary{Dir: "r2", Aggregates: sampleAggregates(0.6)}

	cmp := CompareRuns(current, &baseline)

	require.Len(t, cmp.ConclusionChanges, 1)
	change := cmp.ConclusionChanges[0]
	assert.Equal(t, "underperform", change.Baseline)
	assert.Equal(t, "outperform", change.Current)
	assert.Equal(t, "transaction", change.AnchorKind)

	require.Len(t, cmp.AggregateDrift, 1)
	assert.Equal(t, 1.0, cmp.AggregateDrift[0].MeanExcessDelta)
}

func TestCompareRuns_NewGroupsProduceNoDrift(t *testing.T) {
	baseline := RunSummary{Dir: "r1", Aggregates: sampleAggregates(0.5)}
	current := RunSummary{Dir: "r2", Aggregates: []AggregateRow{{
		AnchorKind: "report", WindowSessions: 21, Benchmark: "XLK", MeanExcess: 2,
	}}}

	cmp := CompareRuns(current, &baseline)
	assert.Empty(t, cmp.AggregateDrift, "groups absent from the baseline are not comparable")
}

func writeRun(t *testing.T, scopeDir, name string, generatedAt time.Time, eventIDs []string, aggregates []AggregateRow) string {
	t.Helper()
	dir := filepath.Join(scopeDir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	events := make([]Event, len(eventIDs))
	for i, id := range eventIDs {
		events[i] = Event{ID: id, Ticker: "AAPL", DatasetID: "ticker_congress_trading",
			Actor: "Jane Roe", TransactionDate: "2024-03-05"}
	}
	for file, v := range map[string]any{
		"assumptions.json":       runAssumptions{GeneratedAt: generatedAt},
		"events.json":            events,
		"aggregate-results.json": aggregates,
	} {
		blob, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, file), blob, 0o644))
	}
	return dir
}

func TestDiscoverRuns(t *testing.T) {
	root := t.TempDir()
	scopeDir := filepath.Join(root, "political-backtest", "aapl")

	newer := writeRun(t, scopeDir, "2024-04-02",
		time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC), []string{"x"}, sampleAggregates(0.1))
	older := writeRun(t, scopeDir, "2024-04-01",
		time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), []string{"x"}, sampleAggregates(0.2))

	// A directory missing its artifacts is not a run.
	require.NoError(t, os.MkdirAll(filepath.Join(scopeDir, "scratch"), 0o755))

	runs, err := DiscoverRuns(root, "aapl", "")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, older, runs[0].Dir, "runs sort by generation time ascending")
	assert.Equal(t, newer, runs[1].Dir)
	assert.Equal(t, []string{"x"}, runs[0].EventIDs)

	excluded, err := DiscoverRuns(root, "aapl", newer)
	require.NoError(t, err)
	require.Len(t, excluded, 1)
	assert.Equal(t, older, excluded[0].Dir)
}

func TestDiscoverRuns_MissingScopeIsEmpty(t *testing.T) {
	runs, err := DiscoverRuns(t.TempDir(), "msft", "")
	require.NoError(t, err)
	assert.Empty(t, runs)
}
