package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process cache bounded by TTL and entry count. When
// full, the oldest entry is evicted.
type MemoryCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryCache creates a MemoryCache. ttl <= 0 disables expiry and
// maxEntries <= 0 disables the size bound.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	return &MemoryCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]Entry),
	}
}

func (c *MemoryCache) expired(e Entry) bool {
	return c.ttl > 0 && c.now().Sub(e.CreatedAt) > c.ttl
}

func (c *MemoryCache) Get(_ context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if c.expired(e) {
		delete(c.entries, key)
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (c *MemoryCache) Set(_ context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = c.now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[entry.Key]; !exists && c.maxEntries > 0 {
		c.purgeExpiredLocked()
		for len(c.entries) >= c.maxEntries {
			c.evictOldestLocked()
		}
	}
	c.entries[entry.Key] = entry
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) Close() error { return nil }

func (c *MemoryCache) purgeExpiredLocked() {
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
		}
	}
}

func (c *MemoryCache) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.CreatedAt.Before(oldestAt) {
			oldestKey, oldestAt, found = k, e.CreatedAt, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}
