package govtrades

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickerlens/tickerlens/internal/backtest"
)

func TestComputeDelta_Buckets(t *testing.T) {
	jane := withShares(trade("Jane Roe", "2024-03-05", "buy", "$1,001 - $15,000"), 100)
	john := trade("John Doe", "2024-03-06", "sell", "")
	alex := trade("Alex Poe", "2024-03-04", "buy", "")
	baseline := []backtest.Event{alex, jane, john}

	janeRestated := withShares(trade("Jane Roe", "2024-03-05", "buy", "$1,001 - $15,000"), 200)
	mary := trade("Mary Sue", "2024-03-07", "buy", "")
	current := []backtest.Event{janeRestated, john, mary}

	delta := ComputeDelta(current, baseline)

	assert.Equal(t, map[DeltaClass]int{
		DeltaNew:             1,
		DeltaUpdated:         1,
		DeltaUnchanged:       1,
		DeltaNoLongerPresent: 1,
	}, delta.Counts())

	require.Len(t, delta.New, 1)
	assert.Equal(t, "Mary Sue", delta.New[0].Event.Actor)
	assert.Equal(t, DeltaNew, delta.New[0].Class)
	assert.Nil(t, delta.New[0].Previous)

	require.Len(t, delta.Updated, 1)
	updated := delta.Updated[0]
	assert.Equal(t, IdentityOf(janeRestated).Key(), updated.Key)
	require.NotNil(t, updated.Event.Shares)
	assert.Equal(t, 200.0, *updated.Event.Shares)
	require.NotNil(t, updated.Previous)
	require.NotNil(t, updated.Previous.Shares)
	assert.Equal(t, 100.0, *updated.Previous.Shares)

	require.Len(t, delta.Unchanged, 1)
	assert.Equal(t, "John Doe", delta.Unchanged[0].Event.Actor)

	require.Len(t, delta.NoLongerPresent, 1)
	assert.Equal(t, "Alex Poe", delta.NoLongerPresent[0].Event.Actor)
	assert.Equal(t, DeltaNoLongerPresent, delta.NoLongerPresent[0].Class)
}

func TestComputeDelta_DetailComparison(t *testing.T) {
	base := trade("Jane Roe", "2024-03-05", "buy", "")
	keep := func(ev backtest.Event) backtest.Event { return ev }

	tests := []struct {
		name     string
		previous func(backtest.Event) backtest.Event
		current  func(backtest.Event) backtest.Event
		want     DeltaClass
	}{
		{
			name:     "identical_is_unchanged",
			previous: keep,
			current:  keep,
			want:     DeltaUnchanged,
		},
		{
			name:     "report_date_change_is_updated",
			previous: keep,
			current: func(ev backtest.Event) backtest.Event {
				ev.ReportDate = "2024-03-11"
				return ev
			},
			want: DeltaUpdated,
		},
		{
			name:     "dataset_change_is_updated",
			previous: keep,
			current: func(ev backtest.Event) backtest.Event {
				ev.DatasetID = "ticker_house_trading"
				return ev
			},
			want: DeltaUpdated,
		},
		{
			name:     "shares_filled_in_is_updated",
			previous: keep,
			current:  func(ev backtest.Event) backtest.Event { return withShares(ev, 100) },
			want:     DeltaUpdated,
		},
		{
			name:     "same_shares_is_unchanged",
			previous: func(ev backtest.Event) backtest.Event { return withShares(ev, 100) },
			current:  func(ev backtest.Event) backtest.Event { return withShares(ev, 100) },
			want:     DeltaUnchanged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta := ComputeDelta(
				[]backtest.Event{tt.current(base)},
				[]backtest.Event{tt.previous(base)},
			)
			assert.Equal(t, 1, delta.Counts()[tt.want])
		})
	}
}

func TestComputeDelta_FirstRunIsAllNew(t *testing.T) {
	current := []backtest.Event{
		trade("Jane Roe", "2024-03-05", "buy", ""),
		trade("John Doe", "2024-03-06", "sell", ""),
	}

	delta := ComputeDelta(current, nil)
	assert.Len(t, delta.New, 2)
	assert.Empty(t, delta.Updated)
	assert.Empty(t, delta.Unchanged)
	assert.Empty(t, delta.NoLongerPresent)
}

func TestComputeDelta_DedupesBothSides(t *testing.T) {
	ev := trade("Jane Roe", "2024-03-05", "buy", "")
	dup := ev
	dup.DatasetID = "ticker_house_trading"

	delta := ComputeDelta([]backtest.Event{ev, dup}, []backtest.Event{ev, dup})
	counts := delta.Counts()
	assert.Equal(t, 1, counts[DeltaUnchanged])
	assert.Zero(t, counts[DeltaNew])
	assert.Zero(t, counts[DeltaUpdated])
	assert.Zero(t, counts[DeltaNoLongerPresent])
}
