// Package factorstore persists and queries dated factor snapshots. A
// small in-process TTL cache fronts the SQLite repositories; the daily
// pipeline invalidates it per trade date on completion.
package factorstore

import (
	"strings"
	"sync"
	"time"
)

// memCache is a bounded keyed TTL cache. The working set is one trade
// date per instrument kind, so eviction just drops the oldest expiry
// when the bound is hit; LRU precision buys nothing here.
type memCache struct {
	mu       sync.Mutex
	entries  map[string]memEntry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

type memEntry struct {
	value     interface{}
	expiresAt time.Time
}

func newMemCache(capacity int, ttl time.Duration) *memCache {
	if capacity <= 0 {
		capacity = 256
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &memCache{
		entries:  make(map[string]memEntry, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (c *memCache) get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *memCache) put(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}
	c.entries[key] = memEntry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// invalidatePrefix drops every entry whose key starts with prefix.
func (c *memCache) invalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

func (c *memCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memEntry, c.capacity)
}

func (c *memCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
