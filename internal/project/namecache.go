package project

import (
	"context"
	"sync"
)

// NameCache memoizes project-name lookups by sequence number. Entries are
// write-once: a key is immutable after its first successful population, so
// concurrent reads need no further coordination beyond the map lock.
type NameCache struct {
	lookup func(ctx context.Context, seq int64) (string, error)

	mu    sync.RWMutex
	names map[int64]string
}

// NewNameCache constructs a NameCache over the given lookup.
func NewNameCache(lookup func(ctx context.Context, seq int64) (string, error)) *NameCache {
	return &NameCache{
		lookup: lookup,
		names:  make(map[int64]string),
	}
}

// Get returns the project's name, populating the cache set-if-absent on miss.
// Lookup failures are not cached.
func (c *NameCache) Get(ctx context.Context, seq int64) (string, error) {
	c.mu.RLock()
	name, ok := c.names[seq]
	c.mu.RUnlock()
	if ok {
		return name, nil
	}

	name, err := c.lookup(ctx, seq)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if existing, ok := c.names[seq]; ok {
		name = existing
	} else {
		c.names[seq] = name
	}
	c.mu.Unlock()
	return name, nil
}
