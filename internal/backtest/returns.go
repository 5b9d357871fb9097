package backtest

import "math"

// round keeps the artifact numbers reproducible across platforms.
func round(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}

// forwardReturnPct is ((end/start) - 1) x 100, rounded to 6 decimals.
func forwardReturnPct(start, end float64) float64 {
	return round((end/start-1)*100, 6)
}

// relativeReturnPct compounds the two percentage returns instead of
// subtracting them, so large benchmark moves do not distort the spread.
func relativeReturnPct(forward, benchmark float64) float64 {
	return round(((1+forward/100)/(1+benchmark/100)-1)*100, 6)
}

// WindowReturn is one (anchor, window) forward return on the event ticker.
type WindowReturn struct {
	EventID        string  `json:"event_id"`
	AnchorKind     string  `json:"anchor_kind"`
	AnchorDate     string  `json:"anchor_date"`
	AlignedDate    string  `json:"aligned_anchor_date"`
	Shifted        bool    `json:"shifted"`
	WindowSessions int     `json:"window_sessions"`
	StartClose     float64 `json:"start_close"`
	EndClose       float64 `json:"end_close"`
	ForwardPct     float64 `json:"forward_return_percent"`
}

// RelativeReturn extends a WindowReturn with one benchmark's figures.
type RelativeReturn struct {
	EventID        string  `json:"event_id"`
	AnchorKind     string  `json:"anchor_kind"`
	AlignedDate    string  `json:"aligned_anchor_date"`
	WindowSessions int     `json:"window_sessions"`
	Benchmark      string  `json:"benchmark"`
	ForwardPct     float64 `json:"forward_return_percent"`
	BenchmarkPct   float64 `json:"benchmark_forward_return_percent"`
	ExcessPct      float64 `json:"excess_return_percent"`
	RelativePct    float64 `json:"relative_return_percent"`
}
