package perf

import (
	"sync"
	"time"
)

// Kind selects the TTL bucket a cached value belongs to.
type Kind string

const (
	KindTicker     Kind = "ticker"
	KindOrderBook  Kind = "order_book"
	KindOHLCV      Kind = "ohlcv"
	KindATR        Kind = "atr"
	KindVolatility Kind = "volatility"
)

// Default TTLs per kind. Market reads go stale fast; derived volatility
// values are allowed to age up to three minutes.
var defaultTTLs = map[Kind]time.Duration{
	KindTicker:     1 * time.Second,
	KindOrderBook:  2 * time.Second,
	KindOHLCV:      60 * time.Second,
	KindATR:        180 * time.Second,
	KindVolatility: 180 * time.Second,
}

type cacheEntry struct {
	value      any
	insertedAt time.Time
}

// Cache is a TTL-bucketed in-memory cache. Entries past their kind's TTL
// are treated as absent and evicted lazily on lookup. Safe for use from
// the concurrent fetch goroutines of a cycle.
type Cache struct {
	mu      sync.Mutex
	entries map[Kind]map[string]cacheEntry
	ttls    map[Kind]time.Duration
	hits    int64
	misses  int64
	now     func() time.Time
}

func NewCache() *Cache {
	ttls := make(map[Kind]time.Duration, len(defaultTTLs))
	for k, ttl := range defaultTTLs {
		ttls[k] = ttl
	}
	return &Cache{
		entries: make(map[Kind]map[string]cacheEntry),
		ttls:    ttls,
		now:     time.Now,
	}
}

// Get returns the cached value for (kind, key), or false if the entry is
// missing or expired. Expired entries are removed on the spot.
func (c *Cache) Get(kind Kind, key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.entries[kind]
	if !ok {
		c.misses++
		return nil, false
	}
	entry, ok := bucket[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().Sub(entry.insertedAt) >= c.ttls[kind] {
		delete(bucket, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.value, true
}

// Put stores a value under (kind, key), stamping it with the current time.
func (c *Cache) Put(kind Kind, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.entries[kind]
	if !ok {
		bucket = make(map[string]cacheEntry)
		c.entries[kind] = bucket
	}
	bucket[key] = cacheEntry{value: value, insertedAt: c.now()}
}

// Clear drops all cached entries. Hit/miss counters survive so the stats
// stay meaningful across periodic cache hygiene.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Kind]map[string]cacheEntry)
}

// HitRate returns the cache hit rate in percent.
func (c *Cache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total) * 100
}

// Size returns the total number of live entries across all kinds.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, bucket := range c.entries {
		n += len(bucket)
	}
	return n
}
