// Package cache provides the in-memory TTL cache for federation envelopes.
// Entries live until TTL expiry or process end; there is no persistence.
package cache

import (
	"sync"
	"time"

	"github.com/tickerlens/tickerlens/internal/finance"
)

// DefaultTTLs returns the per-intent entry lifetimes.
func DefaultTTLs() map[finance.Intent]time.Duration {
	return map[finance.Intent]time.Duration{
		finance.IntentQuote:        300 * time.Second,
		finance.IntentFundamentals: 3600 * time.Second,
		finance.IntentFilings:      43200 * time.Second,
		finance.IntentInsider:      43200 * time.Second,
		finance.IntentNews:         600 * time.Second,
	}
}

type entry struct {
	result    *finance.Result
	storedAt  time.Time
	expiresAt time.Time
}

// Cache is a mutex-guarded TTL cache keyed by the normalized query key.
// Concurrent readers never observe torn entries; writes to the same key are
// last-writer-wins.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttls    map[finance.Intent]time.Duration
	now     func() time.Time

	hits   uint64
	misses uint64
}

// New builds a cache with the default per-intent TTLs.
func New() *Cache {
	return NewWithTTLs(DefaultTTLs())
}

// NewWithTTLs builds a cache with explicit TTLs, for tests and tuning.
func NewWithTTLs(ttls map[finance.Intent]time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttls:    ttls,
		now:     time.Now,
	}
}

// SetClock injects a time source. Tests use this to step through expiry
// without sleeping.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the cached envelope when present and fresh. Expired entries
// are deleted lazily on access.
func (c *Cache) Get(key string) (*finance.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return e.result, true
}

// Set stores an envelope under key with the intent's TTL, unconditionally
// overwriting any existing entry.
func (c *Cache) Set(key string, intent finance.Intent, res *finance.Result) {
	ttl, ok := c.ttls[intent]
	if !ok {
		ttl = 300 * time.Second
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = entry{result: res, storedAt: now, expiresAt: now.Add(ttl)}
}

// Delete removes a single entry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// CleanExpired removes every expired entry and reports how many were
// dropped.
func (c *Cache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Stats reports cache occupancy and hit ratio for the monitor surface.
type Stats struct {
	Entries  int     `json:"entries"`
	Hits     uint64  `json:"hits"`
	Misses   uint64  `json:"misses"`
	HitRatio float64 `json:"hitRatio"`
}

// Stats snapshots counters under the lock.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
	if total := c.hits + c.misses; total > 0 {
		s.HitRatio = float64(c.hits) / float64(total)
	}
	return s
}
