package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tickerlens/tickerlens/internal/backtest"
)

const workflowTimeout = 5 * time.Minute

// datasetAliases maps the CLI short names onto Quiver dataset ids. Full
// ids pass through untouched.
var datasetAliases = map[string]string{
	"congress": "ticker_congress_trading",
	"senate":   "ticker_senate_trading",
	"house":    "ticker_house_trading",
}

func parseDatasets(csv string) ([]string, error) {
	var ids []string
	for _, raw := range strings.Split(csv, ",") {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if id, ok := datasetAliases[name]; ok {
			ids = append(ids, id)
			continue
		}
		if strings.HasPrefix(name, "ticker_") {
			ids = append(ids, name)
			continue
		}
		return nil, fmt.Errorf("unknown dataset %q (want congress, senate or house)", raw)
	}
	return ids, nil
}

func parseWindows(csv string) ([]int, error) {
	var windows []int
	for _, raw := range strings.Split(csv, ",") {
		field := strings.TrimSpace(raw)
		if field == "" {
			continue
		}
		w, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid window %q: %w", raw, err)
		}
		windows = append(windows, w)
	}
	return windows, nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ticker, _ := cmd.Flags().GetString("ticker")
	datasetsCSV, _ := cmd.Flags().GetString("datasets")
	windowsCSV, _ := cmd.Flags().GetString("windows")
	anchor, _ := cmd.Flags().GetString("anchor")
	benchmark, _ := cmd.Flags().GetString("benchmark")
	sector, _ := cmd.Flags().GetString("sector")
	reportsRoot, _ := cmd.Flags().GetString("reports-root")

	datasets, err := parseDatasets(datasetsCSV)
	if err != nil {
		return err
	}
	windows, err := parseWindows(windowsCSV)
	if err != nil {
		return err
	}
	anchorMode, err := backtest.ParseAnchorMode(anchor)
	if err != nil {
		return err
	}
	benchmarkMode, err := backtest.ParseBenchmarkMode(benchmark)
	if err != nil {
		return err
	}

	a, err := newApp(configPath(cmd), log.Logger)
	if err != nil {
		return err
	}
	if reportsRoot == "" {
		reportsRoot = a.cfg.Reports.Root
	}

	runner := backtest.NewRunner(a.yahoo, a.quiver, backtest.WithLogger(log.Logger))

	ctx, cancel := context.WithTimeout(cmd.Context(), workflowTimeout)
	defer cancel()

	res, err := runner.Run(ctx, backtest.Config{
		Ticker:        ticker,
		Datasets:      datasets,
		AnchorMode:    anchorMode,
		Windows:       windows,
		BenchmarkMode: benchmarkMode,
		Sector:        sector,
		ReportsRoot:   reportsRoot,
	})
	if err != nil {
		a.metrics.RecordWorkflow("backtest", "error")
		return err
	}
	a.metrics.RecordWorkflow("backtest", "ok")

	fmt.Printf("Backtest complete: %d events, %d anchor dates, benchmarks %s\n",
		res.Assumptions.EventCount, res.Assumptions.AnchorCount,
		strings.Join(res.Assumptions.Benchmarks, ", "))
	for _, row := range res.Aggregates {
		fmt.Printf("  %s %2dd vs %-4s  n=%-3d hit %.1f%%  mean fwd %+.2f%%  mean excess %+.2f%%\n",
			row.AnchorKind, row.WindowSessions, strings.ToUpper(row.Benchmark),
			row.Sample, row.HitRate*100, row.MeanForward, row.MeanExcess)
	}
	fmt.Printf("Artifacts written to %s\n", res.OutDir)
	return nil
}
