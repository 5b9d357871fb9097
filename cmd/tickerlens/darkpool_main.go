package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tickerlens/tickerlens/internal/darkpool"
)

func runDarkpool(cmd *cobra.Command, args []string) error {
	tickersCSV, _ := cmd.Flags().GetString("tickers")
	lookback, _ := cmd.Flags().GetInt("lookback")
	minSamples, _ := cmd.Flags().GetInt("min-samples")
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	mediumZ, _ := cmd.Flags().GetFloat64("medium-z")
	highZ, _ := cmd.Flags().GetFloat64("high-z")
	reportsRoot, _ := cmd.Flags().GetString("reports-root")

	var tickers []string
	for _, raw := range strings.Split(tickersCSV, ",") {
		if t := strings.TrimSpace(raw); t != "" {
			tickers = append(tickers, t)
		}
	}
	if len(tickers) == 0 {
		return fmt.Errorf("at least one ticker is required (--tickers AAPL,MSFT)")
	}

	a, err := newApp(configPath(cmd), log.Logger)
	if err != nil {
		return err
	}
	if reportsRoot == "" {
		reportsRoot = a.cfg.Reports.Root
	}

	tier := "unknown"
	if cred, ok := a.resolver.ResolveQuiverCredential(true); ok {
		tier = strings.ToLower(cred.Tier.String())
		if cred.Warning != "" {
			log.Warn().Msg(cred.Warning)
		}
	}

	runner := darkpool.NewRunner(a.quiver, darkpool.WithLogger(log.Logger))

	ctx, cancel := context.WithTimeout(cmd.Context(), workflowTimeout)
	defer cancel()

	res, err := runner.Run(ctx, darkpool.Config{
		Tickers:      tickers,
		LookbackDays: lookback,
		MinSamples:   minSamples,
		Significance: threshold,
		MediumZ:      mediumZ,
		HighZ:        highZ,
		Tier:         tier,
		ReportsRoot:  reportsRoot,
	})
	if err != nil {
		a.metrics.RecordWorkflow("darkpool", "error")
		return err
	}
	a.metrics.RecordWorkflow("darkpool", "ok")

	significant := 0
	for _, anomaly := range res.Evidence.Anomalies {
		marker := " "
		if anomaly.Significant {
			marker = "!"
			significant++
		}
		fmt.Printf("%s %-6s %-24s z=%+.2f (%s, %s)\n",
			marker, anomaly.Ticker, anomaly.MetricKey, anomaly.Z,
			anomaly.Severity, anomaly.DispersionMethod)
	}
	fmt.Printf("Darkpool scan complete: %d of %d tickers significant, %d transitions\n",
		significant, len(res.Evidence.Anomalies), len(res.Evidence.Transitions))
	fmt.Printf("Artifacts written to %s\n", res.OutDir)
	return nil
}
