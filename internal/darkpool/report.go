package darkpool

import (
	"fmt"
	"strings"
)

func renderReport(res *RunResult) string {
	a := res.Assumptions
	var b strings.Builder
	fmt.Fprintf(&b, "# Darkpool Anomaly Report: %s\n\n", strings.Join(a.Tickers, ", "))
	fmt.Fprintf(&b, "Generated %s\n\n", a.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	b.WriteString("## Assumptions\n\n")
	fmt.Fprintf(&b, "- Mode: %s\n", a.Mode)
	fmt.Fprintf(&b, "- Plan tier: %s\n", a.Tier)
	fmt.Fprintf(&b, "- Lookback: %d days\n", a.LookbackDays)
	fmt.Fprintf(&b, "- Minimum baseline samples: %d\n", a.MinSamples)
	fmt.Fprintf(&b, "- Z-score thresholds: significant %.2f, medium %.2f, high %.2f\n\n",
		a.Thresholds.Significance, a.Thresholds.Medium, a.Thresholds.High)

	b.WriteString("## Latest observations\n\n")
	b.WriteString("| Ticker | Metric | Date | Current | Baseline median | Dispersion | Z | Severity |\n")
	b.WriteString("|--------|--------|------|---------|-----------------|------------|---|----------|\n")
	for _, an := range res.Evidence.Anomalies {
		fmt.Fprintf(&b, "| %s | %s | %s | %.4f | %.4f | %.4f (%s) | %+.2f | %s |\n",
			an.Ticker, an.MetricKey, an.Date, an.Current, an.Center,
			an.Dispersion, an.DispersionMethod, an.Z, severityCell(an))
	}
	b.WriteString("\n")

	b.WriteString("## Transitions since prior run\n\n")
	if len(res.Evidence.Transitions) == 0 {
		b.WriteString("No prior run to compare against.\n")
	} else {
		b.WriteString("| Key | State | Previous | Current |\n")
		b.WriteString("|-----|-------|----------|--------|\n")
		for _, t := range res.Evidence.Transitions {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				t.Key, t.State, orDash(string(t.PreviousSeverity)), orDash(string(t.CurrentSeverity)))
		}
	}
	return b.String()
}

func renderDashboard(res *RunResult) string {
	a := res.Assumptions
	var b strings.Builder
	fmt.Fprintf(&b, "# Darkpool Dashboard: %s (%s)\n\n",
		strings.Join(a.Tickers, ", "), a.GeneratedAt.Format("2006-01-02"))

	significant := 0
	for _, an := range res.Evidence.Anomalies {
		if an.Significant {
			significant++
		}
	}
	fmt.Fprintf(&b, "%d of %d tickers flag a significant off-exchange move.\n\n",
		significant, len(res.Evidence.Anomalies))

	b.WriteString("| Ticker | Z | Direction | Severity |\n")
	b.WriteString("|--------|---|-----------|----------|\n")
	for _, an := range res.Evidence.Anomalies {
		fmt.Fprintf(&b, "| %s | %+.2f | %s | %s |\n", an.Ticker, an.Z, an.Direction, severityCell(an))
	}
	b.WriteString("\n")

	counts := map[TransitionState]int{}
	for _, t := range res.Evidence.Transitions {
		counts[t.State]++
	}
	if len(res.Evidence.Historical) == 0 {
		b.WriteString("First run for this scope; transition history starts here.\n")
	} else {
		fmt.Fprintf(&b, "Since last run: %d new, %d persisted, %d severity changes, %d resolved.\n",
			counts[TransitionNew], counts[TransitionPersisted],
			counts[TransitionSeverityChange], counts[TransitionResolved])
	}
	return b.String()
}

func renderEvidence(res *RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Evidence Trail: %s\n\n", strings.Join(res.Assumptions.Tickers, ", "))

	for _, an := range res.Evidence.Anomalies {
		fmt.Fprintf(&b, "## %s %s on %s\n\n", an.Ticker, an.MetricKey, an.Date)
		fmt.Fprintf(&b, "- Current value: %.6f\n", an.Current)
		fmt.Fprintf(&b, "- Baseline: median %.6f over %d samples\n", an.Center, an.SampleSize)
		fmt.Fprintf(&b, "- Dispersion: %.6f via %s\n", an.Dispersion, an.DispersionMethod)
		fmt.Fprintf(&b, "- Z-score: %+.4f (%s)\n", an.Z, an.Direction)
		if an.Significant {
			fmt.Fprintf(&b, "- Verdict: significant, severity %s\n\n", an.Severity)
		} else {
			b.WriteString("- Verdict: within baseline range\n\n")
		}
	}

	if len(res.Evidence.Historical) > 0 {
		b.WriteString("## Prior runs\n\n")
		for _, h := range res.Evidence.Historical {
			fmt.Fprintf(&b, "- %s: %d anomalies (%d significant) in %s\n",
				h.GeneratedAt.Format("2006-01-02 15:04"), h.Anomalies, h.Significant, h.Dir)
		}
	}
	return b.String()
}

func severityCell(a Anomaly) string {
	if !a.Significant {
		return "none"
	}
	return string(a.Severity)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
