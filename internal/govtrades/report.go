package govtrades

import (
	"fmt"
	"strings"

	"github.com/tickerlens/tickerlens/internal/backtest"
)

const maxReportRows = 25

func renderReport(res *RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Government Trading Delta: %s\n\n", res.Delta.Ticker)
	fmt.Fprintf(&b, "Run %s, generated %s\n\n", res.RunID, res.Delta.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	if res.Delta.FirstRun {
		b.WriteString("First recorded run for this scope; every disclosure below is new.\n\n")
	} else {
		fmt.Fprintf(&b, "Baseline run: %s\n\n", res.Delta.BaselineRun)
	}

	counts := res.Delta.Counts
	fmt.Fprintf(&b, "| New | Updated | Unchanged | No longer present |\n")
	fmt.Fprintf(&b, "|-----|---------|-----------|-------------------|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d |\n\n",
		counts[DeltaNew], counts[DeltaUpdated], counts[DeltaUnchanged], counts[DeltaNoLongerPresent])

	writeBucket(&b, "New disclosures", res.Delta.Delta.New)
	writeBucket(&b, "Updated disclosures", res.Delta.Delta.Updated)
	writeBucket(&b, "No longer present", res.Delta.Delta.NoLongerPresent)

	b.WriteString("## Persistence\n\n")
	if len(res.Persistence.Trends) == 0 {
		b.WriteString("No current disclosures to trend.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%d runs on record.\n\n", res.Persistence.TotalRuns)
	b.WriteString("| Actor | Transaction | Side | Streak | Ratio |\n")
	b.WriteString("|-------|-------------|------|--------|-------|\n")
	rows := res.Persistence.Trends
	truncated := false
	if len(rows) > maxReportRows {
		rows, truncated = rows[:maxReportRows], true
	}
	for _, t := range rows {
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %.4f |\n",
			t.Identity.Actor, t.Identity.TransactionDate, t.Identity.TransactionType,
			t.ConsecutiveRunStreak, t.PersistenceRatio)
	}
	if truncated {
		fmt.Fprintf(&b, "\nShowing %d of %d trends.\n", maxReportRows, len(res.Persistence.Trends))
	}
	return b.String()
}

func writeBucket(b *strings.Builder, title string, entries []DeltaEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	b.WriteString("| Actor | Transaction | Side | Amount | Dataset |\n")
	b.WriteString("|-------|-------------|------|--------|---------|\n")
	rows := entries
	truncated := false
	if len(rows) > maxReportRows {
		rows, truncated = rows[:maxReportRows], true
	}
	for _, e := range rows {
		ev := e.Event
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s |\n",
			ev.Actor, ev.TransactionDate, ev.Side, amountCell(ev), ev.DatasetID)
	}
	if truncated {
		fmt.Fprintf(b, "\nShowing %d of %d entries.\n", maxReportRows, len(entries))
	}
	b.WriteString("\n")
}

func amountCell(ev backtest.Event) string {
	if ev.Amount != "" {
		return ev.Amount
	}
	if ev.Shares != nil {
		return fmt.Sprintf("%.0f shares", *ev.Shares)
	}
	return "-"
}
