package darkpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataset_DetectsColumnsAndCollapses(t *testing.T) {
	rows := []map[string]any{
		{"Ticker": "AAPL", "Date": "2024-03-04", "OffExchangeVolume": 120.0},
		{"Ticker": "AAPL", "Date": "2024-03-05", "OffExchangeVolume": 80.0},
		{"Ticker": "AAPL", "Date": "2024-03-05", "OffExchangeVolume": 100.0},
		{"Ticker": "AAPL", "Date": "2024-03-03", "OffExchangeVolume": 90.0},
	}

	metricKey, obs, err := ParseDataset(rows)
	require.NoError(t, err)

	assert.Equal(t, "OffExchangeVolume", metricKey)
	require.Len(t, obs, 3)
	assert.Equal(t, Observation{Date: "2024-03-03", Value: 90, RowCount: 1}, obs[0])
	assert.Equal(t, Observation{Date: "2024-03-04", Value: 120, RowCount: 1}, obs[1])
	assert.Equal(t, Observation{Date: "2024-03-05", Value: 90, RowCount: 2}, obs[2],
		"same-date rows average into one observation")
}

func TestParseDataset_MetricPriority(t *testing.T) {
	tests := []struct {
		name string
		row  map[string]any
		want string
	}{
		{
			name: "ratio_beats_volume_and_generic",
			row: map[string]any{
				"Date":                  "2024-03-04",
				"OffExchangeShortRatio": 0.42,
				"OffExchangeVolume":     120.0,
				"Volume":                90000.0,
			},
			want: "OffExchangeShortRatio",
		},
		{
			name: "darkpool_volume_beats_plain_volume",
			row: map[string]any{
				"Date":            "2024-03-04",
				"DarkPoolShares":  5000.0,
				"Volume":          90000.0,
				"ClosingComments": "quiet session",
			},
			want: "DarkPoolShares",
		},
		{
			name: "dpi_beats_generic_amount",
			row: map[string]any{
				"Date":   "2024-03-04",
				"DPI":    0.51,
				"Amount": 12.0,
			},
			want: "DPI",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metricKey, _, err := ParseDataset([]map[string]any{tt.row})
			require.NoError(t, err)
			assert.Equal(t, tt.want, metricKey)
		})
	}
}

func TestParseDataset_PreferredDateNameWinsTies(t *testing.T) {
	// Both columns parse as dates in every row; the canonical name wins
	// over the lexically earlier one.
	rows := []map[string]any{
		{"Created": "2024-03-01", "Date": "2024-03-04", "OffExchangeVolume": 10.0},
		{"Created": "2024-03-02", "Date": "2024-03-05", "OffExchangeVolume": 20.0},
	}

	_, obs, err := ParseDataset(rows)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, "2024-03-04", obs[0].Date)
	assert.Equal(t, "2024-03-05", obs[1].Date)
}

func TestParseDataset_NumericStrings(t *testing.T) {
	rows := []map[string]any{
		{"Date": "2024-03-04", "OffExchangePct": "45.2%"},
		{"Date": "2024-03-05", "OffExchangePct": "1,250"},
	}

	_, obs, err := ParseDataset(rows)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, 45.2, obs[0].Value)
	assert.Equal(t, 1250.0, obs[1].Value)
}

func TestParseDataset_SkipsUnusableRows(t *testing.T) {
	rows := []map[string]any{
		{"Date": "2024-03-04", "OffExchangeVolume": 100.0},
		{"Date": "not a date", "OffExchangeVolume": 50.0},
		{"Date": "2024-03-05", "OffExchangeVolume": "n/a"},
		{"Date": "2024-03-06", "OffExchangeVolume": 110.0},
	}

	_, obs, err := ParseDataset(rows)
	require.NoError(t, err)
	require.Len(t, obs, 2, "rows without a parseable date or value drop out")
	assert.Equal(t, "2024-03-04", obs[0].Date)
	assert.Equal(t, "2024-03-06", obs[1].Date)
}

func TestParseDataset_Errors(t *testing.T) {
	t.Run("empty_dataset", func(t *testing.T) {
		_, _, err := ParseDataset(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dataset is empty")
	})

	t.Run("no_date_column", func(t *testing.T) {
		_, _, err := ParseDataset([]map[string]any{{"OffExchangeVolume": 10.0}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no date column")
	})

	t.Run("no_metric_column", func(t *testing.T) {
		_, _, err := ParseDataset([]map[string]any{
			{"Date": "2024-03-04", "Comment": "42"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no off-exchange metric column")
	})
}
