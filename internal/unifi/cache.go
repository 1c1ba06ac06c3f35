package unifi

import (
	"strings"
	"sync"
	"time"
)

// cacheEntry holds a cached payload and when it was fetched. Entries
// are always fully-formed snapshots; a concurrent reader either sees
// the whole value or a miss, never a partial write.
type cacheEntry struct {
	value     any
	fetchedAt time.Time
}

// Cache is a TTL read cache keyed by resource-family prefixes such as
// "devices_default" or "networks_default". It exists purely to absorb
// repeated list fetches within a short window; any mutation on a
// resource family drops every key with that family's prefix, trading
// extra re-fetches for never serving stale post-write data.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time // overridable for tests
}

// NewCache creates a cache with the given entry lifetime.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// GetCached returns the cached value for key if it is younger than the
// TTL. The second return is false on a miss or an expired entry.
func (c *Cache) GetCached(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		cacheMisses.Inc()
		return nil, false
	}
	if c.now().Sub(e.fetchedAt) >= c.ttl {
		delete(c.entries, key)
		cacheMisses.Inc()
		return nil, false
	}
	cacheHits.Inc()
	return e.value, true
}

// UpdateCache stores value under key with the current fetch timestamp.
func (c *Cache) UpdateCache(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, fetchedAt: c.now()}
}

// InvalidateCache drops every key that starts with prefix. An empty
// prefix drops everything. Always invalidates the whole family, never
// a single key, so a resource family is either fully cached or fully
// refetched.
func (c *Cache) InvalidateCache(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prefix == "" {
		c.entries = make(map[string]cacheEntry)
		return
	}
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of live entries, expired or not. Used by
// status reporting.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
