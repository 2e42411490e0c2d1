package grading

import (
	"sync"

	"github.com/mockmate/mockmate/internal/domain"
)

// defaultCacheCapacity bounds the completed-verdict cache. Eviction is FIFO
// by insertion order; the cache is a duplicate-suppression aid, not a store
// of record, so evicting an old entry only costs a redundant oracle call.
const defaultCacheCapacity = 200

// verdictCache is a bounded FIFO cache of terminal verdicts keyed by task
// dedup key. Safe for concurrent use.
type verdictCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]domain.GradingVerdict
	order    []string
}

func newVerdictCache(capacity int) *verdictCache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &verdictCache{
		capacity: capacity,
		entries:  make(map[string]domain.GradingVerdict, capacity),
	}
}

// get returns a copy of the cached verdict for the key, if present.
func (c *verdictCache) get(key string) (domain.GradingVerdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries[key]
	return v, ok
}

// put stores a terminal verdict, evicting the oldest entry when full.
// Re-storing an existing key refreshes the value without growing the cache.
func (c *verdictCache) put(key string, v domain.GradingVerdict) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = v
		return
	}

	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = v
	c.order = append(c.order, key)
}

// len reports the number of cached verdicts.
func (c *verdictCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
