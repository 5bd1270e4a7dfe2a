// pkg/analytics/cache.go
package analytics

import (
	"strings"
	"sync"
	"time"
)

// cacheEntry is a cached query result
type cacheEntry struct {
	value      interface{}
	generation string
	lastUsed   time.Time
}

// CacheStats describes the query cache
type CacheStats struct {
	Entries  int     `json:"entries"`
	MaxSize  int     `json:"max_size"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRatio float64 `json:"hit_ratio"`
}

// queryCache holds query results of one or more snapshot generations.
// Entries never expire on their own; they are purged when the snapshot
// changes, and the least recently used one makes room when the cache is full.
type queryCache struct {
	mu        sync.Mutex
	entries   map[string]cacheEntry
	maxSize   int
	hitCount  int64
	missCount int64

	now func() time.Time
}

func newQueryCache(maxSize int) *queryCache {
	return &queryCache{
		entries: make(map[string]cacheEntry),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// cacheKey joins the query name, its canonical parameters and the snapshot generation
func cacheKey(name, params, generation string) string {
	return strings.Join([]string{name, params, generation}, "\x00")
}

func (c *queryCache) get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.missCount++
		return nil, false
	}

	entry.lastUsed = c.now()
	c.entries[key] = entry
	c.hitCount++

	return entry.value, true
}

func (c *queryCache) set(key, generation string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize <= 0 {
		return
	}

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLeastRecentlyUsed()
	}

	c.entries[key] = cacheEntry{
		value:      value,
		generation: generation,
		lastUsed:   c.now(),
	}
}

// purge drops every entry that does not belong to generation and returns how many were dropped
func (c *queryCache) purge(generation string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for key, entry := range c.entries {
		if entry.generation != generation {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

func (c *queryCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hitCount + c.missCount
	ratio := float64(0)
	if total > 0 {
		ratio = float64(c.hitCount) / float64(total)
	}

	return CacheStats{
		Entries:  len(c.entries),
		MaxSize:  c.maxSize,
		Hits:     c.hitCount,
		Misses:   c.missCount,
		HitRatio: ratio,
	}
}

func (c *queryCache) evictLeastRecentlyUsed() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.lastUsed.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastUsed
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
