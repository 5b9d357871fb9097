package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickerlens/tickerlens/internal/finance"
)

func bars(symbol string, dates ...string) []finance.PriceBar {
	out := make([]finance.PriceBar, len(dates))
	for i, d := range dates {
		out[i] = finance.PriceBar{Symbol: symbol, Date: d, AdjustedClose: 100}
	}
	return out
}

func TestNewCalendar_UnionsSeries(t *testing.T) {
	c := NewCalendar(
		bars("AAPL", "2024-03-05", "2024-03-04", "2024-03-06"),
		bars("SPY", "2024-03-06", "2024-03-07"),
	)

	assert.Equal(t, []string{"2024-03-04", "2024-03-05", "2024-03-06", "2024-03-07"}, c.Sessions())
	assert.Equal(t, 4, c.Len())
}

func TestCalendar_AlignNextSession(t *testing.T) {
	c := NewCalendar(bars("AAPL", "2024-03-04", "2024-03-05", "2024-03-08", "2024-03-11"))

	t.Run("exact_session", func(t *testing.T) {
		aligned, shifted, err := c.AlignNextSession("2024-03-05")
		require.NoError(t, err)
		assert.Equal(t, "2024-03-05", aligned)
		assert.False(t, shifted)
	})

	t.Run("weekend_shifts_forward", func(t *testing.T) {
		aligned, shifted, err := c.AlignNextSession("2024-03-09")
		require.NoError(t, err)
		assert.Equal(t, "2024-03-11", aligned)
		assert.True(t, shifted)
	})

	t.Run("beyond_window_fails", func(t *testing.T) {
		_, _, err := c.AlignNextSession("2024-03-12")
		requireCode(t, err, CodeAnchorOutOfRange)
	})
}

func TestCalendar_Offset(t *testing.T) {
	c := NewCalendar(bars("AAPL", "2024-03-04", "2024-03-05", "2024-03-06"))

	end, ok := c.Offset("2024-03-04", 2)
	require.True(t, ok)
	assert.Equal(t, "2024-03-06", end)

	_, ok = c.Offset("2024-03-05", 2)
	assert.False(t, ok, "stepping past the last session fails")

	_, ok = c.Offset("2024-03-09", 1)
	assert.False(t, ok, "unknown session fails")

	same, ok := c.Offset("2024-03-05", 0)
	require.True(t, ok)
	assert.Equal(t, "2024-03-05", same)
}
