package darkpool

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Severity buckets a significant z-score by magnitude.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Thresholds holds the absolute z-score cutoffs for significance and the
// severity bands above it.
type Thresholds struct {
	Significance float64 `json:"significance"`
	Medium       float64 `json:"medium"`
	High         float64 `json:"high"`
}

// NewThresholds fills unset severity bands from the significance cutoff
// (medium at 1.5x, high at 2x) and rejects non-monotonic configurations.
func NewThresholds(significance, medium, high float64) (Thresholds, error) {
	if significance <= 0 {
		return Thresholds{}, fmt.Errorf("significance threshold must be positive, got %v", significance)
	}
	if medium == 0 {
		medium = significance * 1.5
	}
	if high == 0 {
		high = significance * 2
	}
	if medium < significance || high < medium {
		return Thresholds{}, fmt.Errorf("severity thresholds must be non-decreasing: significance %v, medium %v, high %v",
			significance, medium, high)
	}
	return Thresholds{Significance: significance, Medium: medium, High: high}, nil
}

func (t Thresholds) severity(absZ float64) Severity {
	switch {
	case absZ >= t.High:
		return SeverityHigh
	case absZ >= t.Medium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Anomaly is the verdict for one ticker metric on its latest observation.
type Anomaly struct {
	Ticker           string   `json:"ticker"`
	MetricKey        string   `json:"metric_key"`
	Date             string   `json:"date"`
	Current          float64  `json:"current"`
	Center           float64  `json:"center"`
	Dispersion       float64  `json:"dispersion"`
	DispersionMethod string   `json:"dispersion_method"`
	Z                float64  `json:"z"`
	Direction        string   `json:"direction"`
	Significant      bool     `json:"significant"`
	Severity         Severity `json:"severity"`
	SampleSize       int      `json:"sample_size"`
}

// Key identifies the anomaly across runs.
func (a Anomaly) Key() string {
	return a.Ticker + ":" + a.MetricKey
}

// Detector scores the latest observation of a series against a trailing
// baseline window.
type Detector struct {
	lookbackDays int
	minSamples   int
	thresholds   Thresholds
}

// NewDetector validates the window parameters once so every Analyze call
// works with a coherent configuration.
func NewDetector(lookbackDays, minSamples int, thresholds Thresholds) (*Detector, error) {
	if lookbackDays <= 0 {
		return nil, fmt.Errorf("lookback days must be positive, got %d", lookbackDays)
	}
	if minSamples < 2 {
		return nil, fmt.Errorf("min samples must be at least 2, got %d", minSamples)
	}
	return &Detector{lookbackDays: lookbackDays, minSamples: minSamples, thresholds: thresholds}, nil
}

// Thresholds reports the configured cutoffs.
func (d *Detector) Thresholds() Thresholds { return d.thresholds }

// Analyze scores the most recent observation against the in-window
// baseline that precedes it. The window spans lookbackDays calendar days
// ending on the latest observed date and must hold at least minSamples
// baseline points plus the current one.
func (d *Detector) Analyze(ticker, metricKey string, observations []Observation) (Anomaly, error) {
	inRange := d.window(observations)
	if len(inRange) < d.minSamples+1 {
		return Anomaly{}, fmt.Errorf("Insufficient off-exchange sample count for %s: have %d in the last %d days, need %d",
			ticker, len(inRange), d.lookbackDays, d.minSamples+1)
	}

	current := inRange[len(inRange)-1]
	baseline := make([]float64, 0, len(inRange)-1)
	for _, obs := range inRange[:len(inRange)-1] {
		baseline = append(baseline, obs.Value)
	}

	center := median(baseline)
	dispersion, method, err := resolveDispersion(baseline, center)
	if err != nil {
		return Anomaly{}, fmt.Errorf("%s %s: %w", ticker, metricKey, err)
	}

	z := (current.Value - center) / dispersion
	direction := "positive"
	if z < 0 {
		direction = "negative"
	}
	absZ := math.Abs(z)
	significant := absZ >= d.thresholds.Significance

	severity := SeverityLow
	if significant {
		severity = d.thresholds.severity(absZ)
	}

	return Anomaly{
		Ticker:           strings.ToUpper(ticker),
		MetricKey:        metricKey,
		Date:             current.Date,
		Current:          current.Value,
		Center:           center,
		Dispersion:       dispersion,
		DispersionMethod: method,
		Z:                round6(z),
		Direction:        direction,
		Significant:      significant,
		Severity:         severity,
		SampleSize:       len(baseline),
	}, nil
}

// window keeps observations dated within lookbackDays of the latest one.
func (d *Detector) window(observations []Observation) []Observation {
	if len(observations) == 0 {
		return nil
	}
	latest, err := time.Parse("2006-01-02", observations[len(observations)-1].Date)
	if err != nil {
		return nil
	}
	cutoff := latest.AddDate(0, 0, -d.lookbackDays).Format("2006-01-02")
	start := 0
	for start < len(observations) && observations[start].Date < cutoff {
		start++
	}
	return observations[start:]
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
