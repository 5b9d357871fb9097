package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickerlens/tickerlens/internal/finance"
)

func quoteResult(symbol string) *finance.Result {
	return finance.NewResult("yahoo", &finance.Quote{
		Symbol:   symbol,
		Price:    finance.Float(100),
		Currency: "USD",
	})
}

func TestCache_GetSetRoundtrip(t *testing.T) {
	c := New()

	_, ok := c.Get("AAPL:quote:default:auto::10")
	require.False(t, ok)

	res := quoteResult("AAPL")
	c.Set("AAPL:quote:default:auto::10", finance.IntentQuote, res)

	got, ok := c.Get("AAPL:quote:default:auto::10")
	require.True(t, ok)
	assert.Same(t, res, got)
}

func TestCache_ExpiryByIntentTTL(t *testing.T) {
	tests := []struct {
		name   string
		intent finance.Intent
		ttl    time.Duration
	}{
		{name: "quote_300s", intent: finance.IntentQuote, ttl: 300 * time.Second},
		{name: "fundamentals_3600s", intent: finance.IntentFundamentals, ttl: 3600 * time.Second},
		{name: "filings_43200s", intent: finance.IntentFilings, ttl: 43200 * time.Second},
		{name: "insider_43200s", intent: finance.IntentInsider, ttl: 43200 * time.Second},
		{name: "news_600s", intent: finance.IntentNews, ttl: 600 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
			c.SetClock(func() time.Time { return now })

			c.Set("key", tt.intent, quoteResult("AAPL"))

			now = now.Add(tt.ttl - time.Second)
			_, ok := c.Get("key")
			assert.True(t, ok, "entry should be fresh one second before expiry")

			now = now.Add(2 * time.Second)
			_, ok = c.Get("key")
			assert.False(t, ok, "entry should be gone after TTL")
		})
	}
}

func TestCache_ExpiredEntryDeletedLazily(t *testing.T) {
	c := New()
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	c.Set("key", finance.IntentQuote, quoteResult("AAPL"))
	require.Equal(t, 1, c.Stats().Entries)

	now = now.Add(10 * time.Minute)
	_, ok := c.Get("key")
	require.False(t, ok)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestCache_SetOverwrites(t *testing.T) {
	c := New()

	first := quoteResult("AAPL")
	second := quoteResult("AAPL")
	c.Set("key", finance.IntentQuote, first)
	c.Set("key", finance.IntentQuote, second)

	got, ok := c.Get("key")
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestCache_CleanExpired(t *testing.T) {
	c := New()
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	c.Set("quote", finance.IntentQuote, quoteResult("AAPL"))
	c.Set("news", finance.IntentNews, quoteResult("AAPL"))
	c.Set("filings", finance.IntentFilings, quoteResult("AAPL"))

	now = now.Add(15 * time.Minute)
	removed := c.CleanExpired()

	assert.Equal(t, 2, removed, "quote and news expire inside 15 minutes")
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestCache_DeleteAndClear(t *testing.T) {
	c := New()
	c.Set("a", finance.IntentQuote, quoteResult("AAPL"))
	c.Set("b", finance.IntentQuote, quoteResult("MSFT"))

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestCache_StatsHitRatio(t *testing.T) {
	c := New()
	c.Set("key", finance.IntentQuote, quoteResult("AAPL"))

	c.Get("key")
	c.Get("key")
	c.Get("absent")

	s := c.Stats()
	assert.Equal(t, uint64(2), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.InDelta(t, 2.0/3.0, s.HitRatio, 1e-9)
}

func TestCache_UnknownIntentFallbackTTL(t *testing.T) {
	c := NewWithTTLs(map[finance.Intent]time.Duration{})
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	c.Set("key", finance.IntentQuote, quoteResult("AAPL"))

	now = now.Add(299 * time.Second)
	_, ok := c.Get("key")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("key")
	assert.False(t, ok, "fallback TTL is 300s")
}
