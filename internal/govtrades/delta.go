package govtrades

import (
	"github.com/tickerlens/tickerlens/internal/backtest"
)

// DeltaClass labels how an identity moved between the baseline run and
// the current one.
type DeltaClass string

const (
	DeltaNew             DeltaClass = "new"
	DeltaUpdated         DeltaClass = "updated"
	DeltaUnchanged       DeltaClass = "unchanged"
	DeltaNoLongerPresent DeltaClass = "no_longer_present"
)

// DeltaEntry pairs an event with its classification. Updated entries
// carry the baseline version so reports can show what changed.
type DeltaEntry struct {
	Key      string          `json:"key"`
	Class    DeltaClass      `json:"class"`
	Event    backtest.Event  `json:"event"`
	Previous *backtest.Event `json:"previous,omitempty"`
}

// Delta buckets the current event set against a baseline run.
type Delta struct {
	New             []DeltaEntry `json:"new"`
	Updated         []DeltaEntry `json:"updated"`
	Unchanged       []DeltaEntry `json:"unchanged"`
	NoLongerPresent []DeltaEntry `json:"no_longer_present"`
}

// Counts reports bucket sizes keyed by class.
func (d Delta) Counts() map[DeltaClass]int {
	return map[DeltaClass]int{
		DeltaNew:             len(d.New),
		DeltaUpdated:         len(d.Updated),
		DeltaUnchanged:       len(d.Unchanged),
		DeltaNoLongerPresent: len(d.NoLongerPresent),
	}
}

// ComputeDelta classifies current events against the baseline by
// identity. Identities present in both runs count as updated when any
// non-identity field (dataset, report date, shares) moved, otherwise
// unchanged. Both inputs are deduped by identity first.
func ComputeDelta(current, baseline []backtest.Event) Delta {
	current = DedupeByIdentity(current)
	baseline = DedupeByIdentity(baseline)

	prior := make(map[string]backtest.Event, len(baseline))
	for _, ev := range baseline {
		prior[IdentityOf(ev).Key()] = ev
	}

	var delta Delta
	seen := make(map[string]bool, len(current))
	for _, ev := range current {
		key := IdentityOf(ev).Key()
		seen[key] = true
		prev, ok := prior[key]
		switch {
		case !ok:
			delta.New = append(delta.New, DeltaEntry{Key: key, Class: DeltaNew, Event: ev})
		case eventDetailsEqual(ev, prev):
			delta.Unchanged = append(delta.Unchanged, DeltaEntry{Key: key, Class: DeltaUnchanged, Event: ev})
		default:
			p := prev
			delta.Updated = append(delta.Updated, DeltaEntry{Key: key, Class: DeltaUpdated, Event: ev, Previous: &p})
		}
	}

	for _, ev := range baseline {
		key := IdentityOf(ev).Key()
		if seen[key] {
			continue
		}
		delta.NoLongerPresent = append(delta.NoLongerPresent, DeltaEntry{Key: key, Class: DeltaNoLongerPresent, Event: ev})
	}
	return delta
}

// eventDetailsEqual compares the fields outside the identity tuple.
func eventDetailsEqual(a, b backtest.Event) bool {
	if a.DatasetID != b.DatasetID || a.ReportDate != b.ReportDate {
		return false
	}
	switch {
	case a.Shares == nil && b.Shares == nil:
		return true
	case a.Shares == nil || b.Shares == nil:
		return false
	default:
		return *a.Shares == *b.Shares
	}
}
