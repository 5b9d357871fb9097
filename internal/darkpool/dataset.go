// Package darkpool detects off-exchange volume anomalies from loose
// upstream rows using robust statistics, and classifies how anomalies
// evolve between runs.
package darkpool

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Observation is one dated metric sample after per-date collapsing.
type Observation struct {
	Date     string  `json:"date"`
	Value    float64 `json:"value"`
	RowCount int     `json:"row_count"`
}

var preferredDateName = regexp.MustCompile(`(?i)^(date|datetime|timestamp|reportdate|report_date|trade_date|tradedate|asof|as_of)$`)

// metricPatterns score candidate metric columns; first match wins per
// column, so the specific patterns come before the generic ones.
var metricPatterns = []struct {
	re    *regexp.Regexp
	score int
}{
	{regexp.MustCompile(`(?i)off.?exchange.*(ratio|share|pct|percent)`), 600},
	{regexp.MustCompile(`(?i)dark.?pool.*(ratio|share|pct|percent)`), 600},
	{regexp.MustCompile(`(?i)off.?exchange.*(volume|shares|qty|quantity)`), 500},
	{regexp.MustCompile(`(?i)dark.?pool.*(volume|shares|qty|quantity)`), 500},
	{regexp.MustCompile(`(?i)(off.?exchange|dark.?pool|otc|dpi)`), 400},
	{regexp.MustCompile(`(?i)(volume|amount|ratio|percent|pct|shares)`), 150},
}

var observationDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// ParseDataset detects the date and metric columns of a loose row set and
// collapses it into a chronological series. Multiple rows on one date
// average into a single observation.
func ParseDataset(rows []map[string]any) (metricKey string, observations []Observation, err error) {
	if len(rows) == 0 {
		return "", nil, fmt.Errorf("off-exchange dataset is empty")
	}

	dateCol, err := detectDateColumn(rows)
	if err != nil {
		return "", nil, err
	}
	metricKey, err = detectMetricColumn(rows, dateCol)
	if err != nil {
		return "", nil, err
	}

	type bucket struct {
		sum   float64
		count int
	}
	byDate := map[string]*bucket{}
	for _, row := range rows {
		date, ok := parseObservationDate(row[dateCol])
		if !ok {
			continue
		}
		value, ok := numericValue(row[metricKey])
		if !ok {
			continue
		}
		b := byDate[date]
		if b == nil {
			b = &bucket{}
			byDate[date] = b
		}
		b.sum += value
		b.count++
	}
	if len(byDate) == 0 {
		return "", nil, fmt.Errorf("no dated %s observations in off-exchange dataset", metricKey)
	}

	observations = make([]Observation, 0, len(byDate))
	for date, b := range byDate {
		observations = append(observations, Observation{
			Date:     date,
			Value:    b.sum / float64(b.count),
			RowCount: b.count,
		})
	}
	sort.Slice(observations, func(i, j int) bool { return observations[i].Date < observations[j].Date })
	return metricKey, observations, nil
}

// detectDateColumn picks the column with the most parseable dates;
// preferred names win ties, then lexical order keeps it deterministic.
func detectDateColumn(rows []map[string]any) (string, error) {
	counts := map[string]int{}
	for _, row := range rows {
		for col, v := range row {
			if _, ok := parseObservationDate(v); ok {
				counts[col]++
			}
		}
	}

	best, bestCount := "", 0
	for _, col := range sortedKeys(counts) {
		count := counts[col]
		switch {
		case count > bestCount:
			best, bestCount = col, count
		case count == bestCount && preferredDateName.MatchString(col) && !preferredDateName.MatchString(best):
			best = col
		}
	}
	if bestCount == 0 {
		return "", fmt.Errorf("no date column detected in off-exchange dataset")
	}
	return best, nil
}

// detectMetricColumn scores column names and breaks ties by how many rows
// hold a numeric value. A zero top score is a hard failure.
func detectMetricColumn(rows []map[string]any, dateCol string) (string, error) {
	type candidate struct {
		score   int
		numeric int
	}
	candidates := map[string]*candidate{}
	for _, row := range rows {
		for col, v := range row {
			if col == dateCol {
				continue
			}
			c := candidates[col]
			if c == nil {
				c = &candidate{score: nameScore(col)}
				candidates[col] = c
			}
			if _, ok := numericValue(v); ok {
				c.numeric++
			}
		}
	}

	best := ""
	var bestC candidate
	for _, col := range sortedKeys(candidates) {
		c := *candidates[col]
		if c.numeric == 0 {
			continue
		}
		if c.score > bestC.score || (c.score == bestC.score && c.numeric > bestC.numeric) {
			best, bestC = col, c
		}
	}
	if best == "" || bestC.score == 0 {
		return "", fmt.Errorf("no off-exchange metric column detected")
	}
	return best, nil
}

func nameScore(col string) int {
	for _, p := range metricPatterns {
		if p.re.MatchString(col) {
			return p.score
		}
	}
	return 0
}

func parseObservationDate(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range observationDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format("2006-01-02"), true
		}
	}
	return "", false
}

func numericValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		cleaned := strings.NewReplacer("%", "", ",", "", "$", "").Replace(strings.TrimSpace(t))
		if cleaned == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		return f, err == nil
	}
	return 0, false
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
