package backtest

import (
	"fmt"
	"strings"
)

const maxReportEvents = 25

// renderReport builds the long-form report.md narrative.
func renderReport(res *RunResult) []byte {
	var b strings.Builder
	asm := res.Assumptions

	fmt.Fprintf(&b, "# Political Trading Backtest: %s\n\n", asm.Ticker)
	fmt.Fprintf(&b, "Generated: %s\n\n", asm.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"))

	b.WriteString("## Assumptions\n\n")
	fmt.Fprintf(&b, "- Scope: `%s`\n", asm.Scope)
	fmt.Fprintf(&b, "- Datasets: %s\n", strings.Join(asm.Datasets, ", "))
	fmt.Fprintf(&b, "- Anchor mode: %s\n", asm.AnchorMode)
	fmt.Fprintf(&b, "- Windows: %s sessions\n", joinInts(asm.Windows))
	fmt.Fprintf(&b, "- Benchmarks: %s (mode %s)\n", strings.Join(asm.Benchmarks, ", "), asm.BenchmarkMode)
	if asm.Sector != "" {
		fmt.Fprintf(&b, "- Sector: %s\n", asm.Sector)
	}
	fmt.Fprintf(&b, "- Price window: %s .. %s\n\n", asm.PriceFrom, asm.PriceTo)

	fmt.Fprintf(&b, "## Events (%d)\n\n", len(res.Events))
	b.WriteString("| Transaction | Reported | Dataset | Actor | Side | Amount |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for i, ev := range res.Events {
		if i == maxReportEvents {
			fmt.Fprintf(&b, "\n_%d further events omitted; see events.json._\n", len(res.Events)-maxReportEvents)
			break
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			ev.TransactionDate, orDash(ev.ReportDate), ev.DatasetID, ev.Actor, ev.Side, orDash(ev.Amount))
	}
	b.WriteString("\n")

	b.WriteString("## Aggregate results\n\n")
	b.WriteString("| Anchor | Window | Benchmark | n | Hit rate | Mean fwd % | Median fwd % | Stdev % | Mean excess % | Mean rel % |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|---|\n")
	for _, row := range res.Aggregates {
		fmt.Fprintf(&b, "| %s | %d | %s | %d | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f |\n",
			row.AnchorKind, row.WindowSessions, row.Benchmark, row.Sample,
			row.HitRate, row.MeanForward, row.MedianForward, row.StdevForward,
			row.MeanExcess, row.MeanRelative)
	}
	b.WriteString("\n")

	b.WriteString("## Comparison with prior run\n\n")
	writeComparison(&b, res.Comparison)

	return []byte(b.String())
}

// renderDashboard builds the at-a-glance dashboard.md.
func renderDashboard(res *RunResult) []byte {
	var b strings.Builder
	asm := res.Assumptions

	fmt.Fprintf(&b, "# Backtest Dashboard: %s (%s)\n\n", asm.Ticker, asm.GeneratedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "%d events, %d anchors (%s mode)\n\n", asm.EventCount, asm.AnchorCount, asm.AnchorMode)

	b.WriteString("| Anchor | Window | Benchmark | Hit rate | Mean excess % | Signal |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, row := range res.Aggregates {
		fmt.Fprintf(&b, "| %s | %d | %s | %.2f%% | %+.4f | %s |\n",
			row.AnchorKind, row.WindowSessions, row.Benchmark,
			row.HitRate*100, row.MeanExcess, conclusionLabel(row.MeanExcess))
	}
	b.WriteString("\n")

	cmp := res.Comparison
	if cmp.FirstRun {
		b.WriteString("First recorded run for this scope.\n")
	} else {
		fmt.Fprintf(&b, "Since last run: %d new events, %d removed, %d conclusion flips.\n",
			len(cmp.EventSample.NewEvents), len(cmp.EventSample.RemovedEvents), len(cmp.ConclusionChanges))
	}
	return []byte(b.String())
}

func writeComparison(b *strings.Builder, cmp Comparison) {
	if cmp.FirstRun {
		b.WriteString("First recorded run for this scope; no baseline to compare against.\n")
		return
	}
	fmt.Fprintf(b, "Baseline: `%s`\n\n", cmp.BaselineDir)
	fmt.Fprintf(b, "- Events: %d current vs %d baseline (%d new, %d removed)\n",
		cmp.EventSample.Current, cmp.EventSample.Baseline,
		len(cmp.EventSample.NewEvents), len(cmp.EventSample.RemovedEvents))

	if len(cmp.AggregateDrift) > 0 {
		b.WriteString("\n| Anchor | Window | Benchmark | Δn | Δhit rate | Δmean fwd | Δmean excess |\n")
		b.WriteString("|---|---|---|---|---|---|---|\n")
		for _, d := range cmp.AggregateDrift {
			fmt.Fprintf(b, "| %s | %d | %s | %+d | %+.4f | %+.4f | %+.4f |\n",
				d.AnchorKind, d.WindowSessions, d.Benchmark,
				d.SampleDelta, d.HitRateDelta, d.MeanDelta, d.MeanExcessDelta)
		}
	}

	if len(cmp.ConclusionChanges) == 0 {
		b.WriteString("\nNo conclusion changes.\n")
		return
	}
	b.WriteString("\n### Conclusion changes\n\n")
	for _, change := range cmp.ConclusionChanges {
		fmt.Fprintf(b, "- %s w%d vs %s: %s -> %s\n",
			change.AnchorKind, change.WindowSessions, change.Benchmark,
			change.Baseline, change.Current)
	}
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
