package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "tickerlens"
	version = "v1.1.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Federated equity research from the command line",
		Version: version,
		Long: `tickerlens answers one question per invocation about one US equity:
quotes, fundamentals, SEC filings, insider activity or news, federated
across free-tier market data providers with caching and rate limiting.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Local .env keys are a convenience; absence is normal.
			godotenv.Load()

			raw, _ := cmd.Flags().GetString("log-level")
			level, err := zerolog.ParseLevel(raw)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", raw, err)
			}
			zerolog.SetGlobalLevel(level)
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "config/providers.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace|debug|info|warn|error)")

	queryCmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Fetch one intent for one ticker",
		Long:  "Resolve free text and flags against the provider chain, with cache and federation",
		RunE:  runQuery,
	}

	progress := progressValue("auto")
	queryCmd.Flags().String("ticker", "", "Ticker symbol (required)")
	queryCmd.Flags().String("intent", "quote", "Intent (quote|fundamentals|filings|insider|news)")
	queryCmd.Flags().String("form", "", "SEC form filter for filings (e.g. 10-K, 8-K)")
	queryCmd.Flags().String("coverage", "default", "Coverage mode (default|comprehensive)")
	queryCmd.Flags().Int("limit", 0, "Maximum items for list intents (1-50, 0 = default)")
	queryCmd.Flags().String("source", "auto", "Pin a single provider instead of federating")
	queryCmd.Flags().Bool("refresh", false, "Bypass the cache for this invocation")
	queryCmd.Flags().Bool("json", false, "Emit the raw result envelope as JSON")
	queryCmd.Flags().Var(&progress, "progress", "Progress output mode (auto|plain|json)")

	backtestCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run the political trading event study",
		Long:  "Align government trading disclosures with forward returns and write run artifacts",
		RunE:  runBacktest,
	}

	backtestCmd.Flags().String("ticker", "", "Ticker symbol (required)")
	backtestCmd.Flags().String("datasets", "congress,senate,house", "Comma-separated disclosure datasets")
	backtestCmd.Flags().String("windows", "1,5,21", "Comma-separated forward windows in sessions")
	backtestCmd.Flags().String("anchor", "transaction", "Event anchor (transaction|report|both)")
	backtestCmd.Flags().String("benchmark", "spy_plus_sector_if_relevant", "Benchmark mode (spy_only|spy_plus_sector_if_relevant|spy_plus_sector_required)")
	backtestCmd.Flags().String("sector", "", "Sector name for benchmark ETF mapping")
	backtestCmd.Flags().String("reports-root", "", "Artifact root (defaults to reports config)")

	darkpoolCmd := &cobra.Command{
		Use:   "darkpool",
		Short: "Detect off-exchange volume anomalies",
		Long:  "Score the latest off-exchange observation against a robust baseline and track transitions",
		RunE:  runDarkpool,
	}

	darkpoolCmd.Flags().String("tickers", "", "Comma-separated ticker symbols (required)")
	darkpoolCmd.Flags().Int("lookback", 30, "Baseline window in calendar days")
	darkpoolCmd.Flags().Int("min-samples", 5, "Minimum baseline observations")
	darkpoolCmd.Flags().Float64("threshold", 2.5, "Significance threshold in robust z units")
	darkpoolCmd.Flags().Float64("medium-z", 0, "Medium severity band (0 = 1.5x threshold)")
	darkpoolCmd.Flags().Float64("high-z", 0, "High severity band (0 = 2x threshold)")
	darkpoolCmd.Flags().String("reports-root", "", "Artifact root (defaults to reports config)")

	govtradesCmd := &cobra.Command{
		Use:   "govtrades",
		Short: "Track government trading disclosures across runs",
		Long:  "Snapshot congressional trading events, classify deltas against the prior run and measure persistence",
		RunE:  runGovtrades,
	}

	govtradesCmd.Flags().String("ticker", "", "Ticker symbol (required)")
	govtradesCmd.Flags().String("datasets", "congress,senate,house", "Comma-separated disclosure datasets")
	govtradesCmd.Flags().String("reports-root", "", "Artifact root (defaults to reports config)")

	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider credentials",
		Long:  "Store, inspect and remove per-provider API keys and plan tiers",
	}

	authLoginCmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API key for a provider",
		RunE:  runAuthLogin,
	}

	authLoginCmd.Flags().String("provider", "", "Provider id (required)")
	authLoginCmd.Flags().String("key", "", "API key (required)")
	authLoginCmd.Flags().String("tier", "", "Plan tier for providers that gate by plan (quiver)")

	authStatusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show credential resolution per provider",
		RunE:  runAuthStatus,
	}

	authRemoveCmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a stored credential",
		RunE:  runAuthRemove,
	}

	authRemoveCmd.Flags().String("provider", "", "Provider id (required)")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRemoveCmd)

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Start the read-only status server",
		Long:  "Serves /health, /providers and /metrics for the running configuration",
		RunE:  runMonitor,
	}

	monitorCmd.Flags().String("addr", "", "Listen address (defaults to monitor config)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version)
		},
	}

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(backtestCmd)
	rootCmd.AddCommand(darkpoolCmd)
	rootCmd.AddCommand(govtradesCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
