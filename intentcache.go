package segue

import "sync"

// intentCache is a bounded insertion-ordered map with FIFO eviction.
// A ring buffer of keys plus a hash map; no LRU bookkeeping is needed
// because classification results never change for a given input.
// Safe for concurrent use by the orchestrator's request handlers.
type intentCache struct {
	mu      sync.Mutex
	entries map[string]IntentDecision
	ring    []string
	head    int // next slot to overwrite once full
	size    int
	cap     int
}

// newIntentCache creates a cache holding at most capacity entries.
func newIntentCache(capacity int) *intentCache {
	if capacity <= 0 {
		capacity = defaultIntentCacheSize
	}
	return &intentCache{
		entries: make(map[string]IntentDecision, capacity),
		ring:    make([]string, capacity),
		cap:     capacity,
	}
}

// get returns the cached decision for key, if present.
func (c *intentCache) get(key string) (IntentDecision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.entries[key]
	return d, ok
}

// put inserts a decision, evicting the oldest entry when full.
// Re-inserting an existing key updates the value without consuming a slot.
func (c *intentCache) put(key string, d IntentDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = d
		return
	}
	if c.size == c.cap {
		delete(c.entries, c.ring[c.head])
	} else {
		c.size++
	}
	c.ring[c.head] = key
	c.head = (c.head + 1) % c.cap
	c.entries[key] = d
}

// len returns the current number of entries.
func (c *intentCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}
