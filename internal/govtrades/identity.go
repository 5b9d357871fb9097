// Package govtrades tracks government-trading disclosures across runs:
// which trades are new, which changed, and how long each one persists.
package govtrades

import (
	"strings"

	"github.com/tickerlens/tickerlens/internal/backtest"
)

// Identity is the canonical across-run key for a disclosure. It is
// deliberately independent of the event id, which also hashes fields
// that upstream restatements routinely revise.
type Identity struct {
	Actor           string `json:"actor"`
	Ticker          string `json:"ticker"`
	TransactionDate string `json:"transaction_date"`
	TransactionType string `json:"transaction_type"`
	Amount          string `json:"amount,omitempty"`
}

// IdentityOf projects an event onto its identity tuple.
func IdentityOf(ev backtest.Event) Identity {
	return Identity{
		Actor:           ev.Actor,
		Ticker:          ev.Ticker,
		TransactionDate: ev.TransactionDate,
		TransactionType: ev.Side,
		Amount:          ev.Amount,
	}
}

// Key renders the tuple as a stable map key. The separator cannot occur
// in upstream field values.
func (id Identity) Key() string {
	return strings.Join([]string{id.Actor, id.Ticker, id.TransactionDate, id.TransactionType, id.Amount}, "\x1f")
}

// DedupeByIdentity keeps the first event per identity, preserving input
// order. Input is expected in canonical event order, so duplicates from
// overlapping datasets resolve deterministically.
func DedupeByIdentity(events []backtest.Event) []backtest.Event {
	seen := make(map[string]bool, len(events))
	out := make([]backtest.Event, 0, len(events))
	for _, ev := range events {
		key := IdentityOf(ev).Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ev)
	}
	return out
}
