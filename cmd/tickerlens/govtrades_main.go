package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tickerlens/tickerlens/internal/govtrades"
)

func runGovtrades(cmd *cobra.Command, args []string) error {
	ticker, _ := cmd.Flags().GetString("ticker")
	datasetsCSV, _ := cmd.Flags().GetString("datasets")
	reportsRoot, _ := cmd.Flags().GetString("reports-root")

	datasets, err := parseDatasets(datasetsCSV)
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

	runner := govtrades.NewRunner(a.quiver, govtrades.WithLogger(log.Logger))

	ctx, cancel := context.WithTimeout(cmd.Context(), workflowTimeout)
	defer cancel()

	res, err := runner.Run(ctx, govtrades.Config{
		Ticker:      ticker,
		Datasets:    datasets,
		ReportsRoot: reportsRoot,
	})
	if err != nil {
		a.metrics.RecordWorkflow("govtrades", "error")
		return err
	}
	a.metrics.RecordWorkflow("govtrades", "ok")

	counts := res.Delta.Counts
	fmt.Printf("Government trading run %s: %d events\n", res.RunID, len(res.Events))
	if res.Delta.FirstRun {
		fmt.Println("First run for this scope; every event is new.")
	} else {
		fmt.Printf("Versus %s: %d new, %d updated, %d unchanged, %d no longer present\n",
			res.Delta.BaselineRun,
			counts[govtrades.DeltaNew], counts[govtrades.DeltaUpdated],
			counts[govtrades.DeltaUnchanged], counts[govtrades.DeltaNoLongerPresent])
	}
	fmt.Printf("Artifacts written to %s\n", res.OutDir)
	return nil
}
