package darkpool

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClock struct{ at time.Time }

func (c stubClock) Now() time.Time { return c.at }

type stubSource struct {
	rows map[string][]map[string]any
	errs map[string]error
}

func (s stubSource) OffExchange(_ context.Context, symbol string) ([]map[string]any, error) {
	if err := s.errs[symbol]; err != nil {
		return nil, err
	}
	return s.rows[symbol], nil
}

// offExchangeRows builds one raw row per calendar day starting at start.
func offExchangeRows(t *testing.T, start string, values ...float64) []map[string]any {
	t.Helper()
	day, err := time.Parse("2006-01-02", start)
	require.NoError(t, err)

	rows := make([]map[string]any, len(values))
	for i, v := range values {
		rows[i] = map[string]any{
			"Date":              day.AddDate(0, 0, i).Format("2006-01-02"),
			"OffExchangeVolume": v,
		}
	}
	return rows
}

func spikeSeries() []float64 {
	return []float64{100, 98, 101, 99, 102, 100, 97, 103, 100, 190}
}

func quietSeries() []float64 {
	return []float64{100, 98, 101, 99, 102, 100, 97, 103, 100, 101}
}

func TestRunner_EndToEndSingleTicker(t *testing.T) {
	root := t.TempDir()
	src := stubSource{rows: map[string][]map[string]any{
		"AAPL": offExchangeRows(t, "2024-03-01", spikeSeries()...),
	}}
	runAt := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)

	runner := NewRunner(src, WithClock(stubClock{at: runAt}))
	res, err := runner.Run(context.Background(), Config{
		Tickers:     []string{"aapl"},
		ReportsRoot: root,
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "aapl", "2024-04-01", "darkpool-anomaly"), res.OutDir)

	a := res.Assumptions
	assert.NotEmpty(t, a.RunID)
	assert.Equal(t, runAt, a.GeneratedAt)
	assert.Equal(t, "single", a.Mode)
	assert.Equal(t, "unknown", a.Tier)
	assert.Equal(t, []string{"AAPL"}, a.Tickers)
	assert.Equal(t, 30, a.LookbackDays)
	assert.Equal(t, 5, a.MinSamples)
	assert.Equal(t, Thresholds{Significance: 2.5, Medium: 3.75, High: 5}, a.Thresholds)

	require.Len(t, res.Evidence.Anomalies, 1)
	anomaly := res.Evidence.Anomalies[0]
	assert.Equal(t, "AAPL", anomaly.Ticker)
	assert.Equal(t, "OffExchangeVolume", anomaly.MetricKey)
	assert.InDelta(t, 60.704168, anomaly.Z, 1e-6)
	assert.Equal(t, SeverityHigh, anomaly.Severity)

	require.Len(t, res.Evidence.Transitions, 1)
	assert.Equal(t, TransitionNew, res.Evidence.Transitions[0].State)
	assert.Empty(t, res.Evidence.Historical)

	for _, name := range []string{
		"assumptions.json", "evidence.json", "report.md", "dashboard.md", "evidence.md",
	} {
		_, err := os.Stat(filepath.Join(res.OutDir, name))
		assert.NoError(t, err, name)
	}

	raw, err := os.ReadFile(filepath.Join(res.OutDir, "evidence.json"))
	require.NoError(t, err)
	var stored Evidence
	require.NoError(t, json.Unmarshal(raw, &stored))
	require.Len(t, stored.Anomalies, 1)
	assert.Equal(t, "AAPL", stored.Anomalies[0].Ticker)
	assert.Equal(t, 2.5, stored.Threshold)

	report, err := os.ReadFile(filepath.Join(res.OutDir, "report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "# Darkpool Anomaly Report: AAPL")
	assert.Contains(t, string(report), "| AAPL | OffExchangeVolume |")

	dashboard, err := os.ReadFile(filepath.Join(res.OutDir, "dashboard.md"))
	require.NoError(t, err)
	assert.Contains(t, string(dashboard), "1 of 1 tickers flag a significant off-exchange move.")
	assert.Contains(t, string(dashboard), "First run for this scope; transition history starts here.")

	trail, err := os.ReadFile(filepath.Join(res.OutDir, "evidence.md"))
	require.NoError(t, err)
	assert.Contains(t, string(trail), "Verdict: significant, severity high")
}

func TestRunner_SecondRunDiffsAgainstPrior(t *testing.T) {
	root := t.TempDir()
	cfg := Config{Tickers: []string{"AAPL"}, ReportsRoot: root}

	firstSrc := stubSource{rows: map[string][]map[string]any{
		"AAPL": offExchangeRows(t, "2024-03-01", spikeSeries()...),
	}}
	first, err := NewRunner(firstSrc,
		WithClock(stubClock{at: time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)}),
	).Run(context.Background(), cfg)
	require.NoError(t, err)

	// One more session lands; the spike is still the latest print and
	// still far outside the baseline.
	secondSrc := stubSource{rows: map[string][]map[string]any{
		"AAPL": offExchangeRows(t, "2024-03-01", append(spikeSeries(), 190)...),
	}}
	second, err := NewRunner(secondSrc,
		WithClock(stubClock{at: time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)}),
	).Run(context.Background(), Config{Tickers: []string{"AAPL"}, ReportsRoot: root})
	require.NoError(t, err)

	assert.NotEqual(t, first.OutDir, second.OutDir)

	require.Len(t, second.Evidence.Transitions, 1)
	tr := second.Evidence.Transitions[0]
	assert.Equal(t, TransitionPersisted, tr.State)
	assert.Equal(t, SeverityHigh, tr.PreviousSeverity)
	assert.Equal(t, SeverityHigh, tr.CurrentSeverity)

	require.Len(t, second.Evidence.Historical, 1)
	hist := second.Evidence.Historical[0]
	assert.Equal(t, first.OutDir, hist.Dir)
	assert.Equal(t, 1, hist.Anomalies)
	assert.Equal(t, 1, hist.Significant)

	dashboard, err := os.ReadFile(filepath.Join(second.OutDir, "dashboard.md"))
	require.NoError(t, err)
	assert.Contains(t, string(dashboard),
		"Since last run: 0 new, 1 persisted, 0 severity changes, 0 resolved.")
}

func TestRunner_PortfolioScope(t *testing.T) {
	root := t.TempDir()
	src := stubSource{rows: map[string][]map[string]any{
		"AAPL": offExchangeRows(t, "2024-03-01", spikeSeries()...),
		"MSFT": offExchangeRows(t, "2024-03-01", quietSeries()...),
	}}

	res, err := NewRunner(src,
		WithClock(stubClock{at: time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)}),
	).Run(context.Background(), Config{
		Tickers:     []string{"aapl", "msft"},
		ReportsRoot: root,
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "portfolio", "2024-04-01", "darkpool-anomaly"), res.OutDir)
	assert.Equal(t, "portfolio", res.Assumptions.Mode)

	require.Len(t, res.Evidence.Anomalies, 2)
	assert.Equal(t, "AAPL", res.Evidence.Anomalies[0].Ticker)
	assert.True(t, res.Evidence.Anomalies[0].Significant)
	assert.Equal(t, "MSFT", res.Evidence.Anomalies[1].Ticker)
	assert.False(t, res.Evidence.Anomalies[1].Significant)

	dashboard, err := os.ReadFile(filepath.Join(res.OutDir, "dashboard.md"))
	require.NoError(t, err)
	assert.Contains(t, string(dashboard), "1 of 2 tickers flag a significant off-exchange move.")
}

func TestRunner_PerTickerFailureAbortsRun(t *testing.T) {
	root := t.TempDir()
	src := stubSource{
		rows: map[string][]map[string]any{
			"AAPL": offExchangeRows(t, "2024-03-01", spikeSeries()...),
		},
		errs: map[string]error{"MSFT": errors.New("quiver returned 502")},
	}

	_, err := NewRunner(src).Run(context.Background(), Config{
		Tickers:     []string{"AAPL", "MSFT"},
		ReportsRoot: root,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch off-exchange rows for MSFT")

	_, statErr := os.Stat(filepath.Join(root, "portfolio"))
	assert.True(t, os.IsNotExist(statErr), "failed run must not leave artifacts behind")
}

func TestRunner_ParseFailureNamesTicker(t *testing.T) {
	src := stubSource{rows: map[string][]map[string]any{
		"AAPL": {{"Date": "2024-03-01", "Comment": "nothing numeric here"}},
	}}

	_, err := NewRunner(src).Run(context.Background(), Config{
		Tickers:     []string{"AAPL"},
		ReportsRoot: t.TempDir(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AAPL: no off-exchange metric column")
}

func TestRunner_ShortSeriesFails(t *testing.T) {
	src := stubSource{rows: map[string][]map[string]any{
		"AAPL": offExchangeRows(t, "2024-03-01", 100, 101, 99),
	}}

	_, err := NewRunner(src).Run(context.Background(), Config{
		Tickers:     []string{"AAPL"},
		ReportsRoot: t.TempDir(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Insufficient off-exchange sample count for AAPL")
}

func TestRunner_ConfigValidation(t *testing.T) {
	src := stubSource{}

	_, err := NewRunner(src).Run(context.Background(), Config{ReportsRoot: t.TempDir()})
	require.ErrorContains(t, err, "at least one ticker is required")

	_, err = NewRunner(src).Run(context.Background(), Config{
		Tickers:     []string{"  "},
		ReportsRoot: t.TempDir(),
	})
	require.ErrorContains(t, err, "ticker 1 is empty")

	_, err = NewRunner(src).Run(context.Background(), Config{
		Tickers:      []string{"AAPL"},
		Significance: 3,
		MediumZ:      2,
		ReportsRoot:  t.TempDir(),
	})
	require.ErrorContains(t, err, "must be non-decreasing")
}
