package cache

import (
	"context"
	"sync"
)

// MemCache is an in-memory backend. It exists for tests and for embedding
// scenarios where no filesystem is available; entries do not survive the
// process.
type MemCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemCache creates an empty in-memory cache.
func NewMemCache() *MemCache {
	return &MemCache{entries: make(map[string]*Entry)}
}

// Restore implements Cache.
func (c *MemCache) Restore(ctx context.Context, fingerprint string) (*Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[fingerprint]
	return entry, ok, nil
}

// Store implements Cache. First producer wins.
func (c *MemCache) Store(ctx context.Context, entry *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[entry.Fingerprint]; ok {
		return nil
	}
	c.entries[entry.Fingerprint] = entry
	return nil
}

// Len returns the number of stored entries.
func (c *MemCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
