package govtrades

import (
	"math"

	"github.com/tickerlens/tickerlens/internal/backtest"
)

// PersistenceTrend measures how consistently one identity shows up
// across the run history.
type PersistenceTrend struct {
	Key                  string   `json:"key"`
	Identity             Identity `json:"identity"`
	SeenInPrior          int      `json:"seen_in_prior"`
	ConsecutiveRunStreak int      `json:"consecutive_run_streak"`
	PersistenceRatio     float64  `json:"persistence_ratio"`
}

// PersistenceTrends computes per-event trends for the current run given
// prior runs ordered oldest to newest. The streak counts the longest
// suffix of prior runs containing the identity, plus one for the current
// run; the ratio divides total sightings by total runs, both including
// the current run, rounded to 4 decimals.
func PersistenceTrends(current []backtest.Event, priorRuns [][]backtest.Event) []PersistenceTrend {
	current = DedupeByIdentity(current)

	priorKeys := make([]map[string]bool, len(priorRuns))
	for i, run := range priorRuns {
		keys := make(map[string]bool, len(run))
		for _, ev := range run {
			keys[IdentityOf(ev).Key()] = true
		}
		priorKeys[i] = keys
	}

	totalRuns := len(priorRuns) + 1
	trends := make([]PersistenceTrend, 0, len(current))
	for _, ev := range current {
		id := IdentityOf(ev)
		key := id.Key()

		seenInPrior := 0
		for _, keys := range priorKeys {
			if keys[key] {
				seenInPrior++
			}
		}

		streak := 1
		for i := len(priorKeys) - 1; i >= 0; i-- {
			if !priorKeys[i][key] {
				break
			}
			streak++
		}

		ratio := float64(seenInPrior+1) / float64(totalRuns)
		trends = append(trends, PersistenceTrend{
			Key:                  key,
			Identity:             id,
			SeenInPrior:          seenInPrior,
			ConsecutiveRunStreak: streak,
			PersistenceRatio:     math.Round(ratio*1e4) / 1e4,
		})
	}
	return trends
}
