package backtest

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// AggregateRow summarizes one (anchor_kind, window, benchmark) group.
// StdevForward is the sample standard deviation and is zero below n=2.
type AggregateRow struct {
	AnchorKind     string  `json:"anchor_kind"`
	WindowSessions int     `json:"window_sessions"`
	Benchmark      string  `json:"benchmark"`
	Sample         int     `json:"sample"`
	HitRate        float64 `json:"hit_rate"`
	MeanForward    float64 `json:"mean_forward_percent"`
	MedianForward  float64 `json:"median_forward_percent"`
	StdevForward   float64 `json:"stdev_forward_percent"`
	MeanExcess     float64 `json:"mean_excess_percent"`
	MeanRelative   float64 `json:"mean_relative_percent"`
}

type aggregateKey struct {
	kind   string
	window int
	bench  string
}

// Aggregate groups relative returns and computes the summary statistics,
// sorted by anchor kind, then window, then benchmark.
func Aggregate(rows []RelativeReturn) []AggregateRow {
	groups := map[aggregateKey][]RelativeReturn{}
	for _, r := range rows {
		k := aggregateKey{kind: r.AnchorKind, window: r.WindowSessions, bench: r.Benchmark}
		groups[k] = append(groups[k], r)
	}

	out := make([]AggregateRow, 0, len(groups))
	for k, group := range groups {
		forwards := make([]float64, len(group))
		hits := 0
		var excessSum, relativeSum float64
		for i, r := range group {
			forwards[i] = r.ForwardPct
			if r.ExcessPct > 0 {
				hits++
			}
			excessSum += r.ExcessPct
			relativeSum += r.RelativePct
		}

		n := float64(len(group))
		row := AggregateRow{
			AnchorKind:     k.kind,
			WindowSessions: k.window,
			Benchmark:      k.bench,
			Sample:         len(group),
			HitRate:        round(float64(hits)/n, 4),
			MeanForward:    round(stat.Mean(forwards, nil), 6),
			MedianForward:  round(median(forwards), 6),
			MeanExcess:     round(excessSum/n, 6),
			MeanRelative:   round(relativeSum/n, 6),
		}
		if len(group) >= 2 {
			row.StdevForward = round(stat.StdDev(forwards, nil), 6)
		}
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AnchorKind != b.AnchorKind {
			return a.AnchorKind < b.AnchorKind
		}
		if a.WindowSessions != b.WindowSessions {
			return a.WindowSessions < b.WindowSessions
		}
		return a.Benchmark < b.Benchmark
	})
	return out
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
