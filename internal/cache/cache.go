// SPDX-License-Identifier: MIT

// Package cache provides a small in-memory cache with TTL and a size bound.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/vodplayer/internal/clock"
)

// Stats holds cache performance counters.
type Stats struct {
	Hits        int64 // Number of successful Get operations
	Misses      int64 // Number of failed Get operations (not found or expired)
	Sets        int64 // Number of Set operations
	Evictions   int64 // Entries dropped for expiry or size
	CurrentSize int   // Current number of cached entries
}

type entry[V any] struct {
	value      V
	expiration time.Time
	inserted   uint64
}

// Memory is a thread-safe TTL cache. When full, the oldest insert is evicted.
type Memory[V any] struct {
	mu      sync.Mutex
	clk     clock.Clock
	max     int
	seq     uint64
	entries map[string]*entry[V]

	hits, misses, sets, evictions atomic.Int64
}

// NewMemory creates a cache holding at most maxEntries values (0 = unbounded).
func NewMemory[V any](maxEntries int, clk clock.Clock) *Memory[V] {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Memory[V]{
		clk:     clk,
		max:     maxEntries,
		entries: make(map[string]*entry[V]),
	}
}

// Get retrieves a value. Expired entries are removed on access.
func (c *Memory[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, found := c.entries[key]
	if !found {
		c.misses.Add(1)
		return zero, false
	}
	if c.clk.Now().After(e.expiration) {
		delete(c.entries, key)
		c.evictions.Add(1)
		c.misses.Add(1)
		return zero, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Set stores a value with the given TTL.
func (c *Memory[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	if _, exists := c.entries[key]; !exists && c.max > 0 && len(c.entries) >= c.max {
		c.evictOldestLocked()
	}
	c.entries[key] = &entry[V]{value: value, expiration: c.clk.Now().Add(ttl), inserted: c.seq}
	c.sets.Add(1)
}

func (c *Memory[V]) evictOldestLocked() {
	var oldestKey string
	var oldest uint64
	for k, e := range c.entries {
		if oldestKey == "" || e.inserted < oldest {
			oldestKey, oldest = k, e.inserted
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.evictions.Add(1)
	}
}

// Delete removes a value.
func (c *Memory[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all values.
func (c *Memory[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
}

// Stats returns cache statistics.
func (c *Memory[V]) Stats() Stats {
	c.mu.Lock()
	size := len(c.entries)
	c.mu.Unlock()
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Sets:        c.sets.Load(),
		Evictions:   c.evictions.Load(),
		CurrentSize: size,
	}
}
