package engine

import "sync"

type cacheKey struct {
	registryID string
	field      string
	key        string
}

// lookupCache remembers which entity a (registry, field, key) resolved to.
// Only single matches and created orphans are cached; misses and
// multi-matches are always re-queried.
type lookupCache struct {
	mu      sync.Mutex
	entries map[cacheKey]string
	hits    int
	misses  int
}

func newLookupCache() *lookupCache {
	return &lookupCache{entries: make(map[cacheKey]string)}
}

func (c *lookupCache) get(k cacheKey) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.entries[k]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return id, ok
}

func (c *lookupCache) put(k cacheKey, entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[k] = entityID
}

func (c *lookupCache) stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *lookupCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]string)
	c.hits = 0
	c.misses = 0
}
