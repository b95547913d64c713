package ipintel

import (
	"sync"
	"time"

	"github.com/ignite/redirectgate/internal/domain"
)

// Cache is an in-memory mirror of the BOT-only ip_cache table. A hit
// here skips both the relational store and the external provider call
// entirely, which is the whole point: provider calls are the one
// Stage-2 suspension point, and they cost money per call.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*domain.IPCacheEntry
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*domain.IPCacheEntry)}
}

// Get returns the cached BOT verdict for ip, if any, and bumps its hit
// counter.
func (c *Cache) Get(ip string) (*domain.IPCacheEntry, bool) {
	c.mu.RLock()
	e, ok := c.entries[ip]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	e.HitCount++
	e.LastHit = time.Now()
	c.mu.Unlock()
	return e, true
}

// Put records a BOT verdict for ip. Entries never expire automatically
// and are only ever BOT, per the provider's usage-based pricing model —
// caching HUMAN verdicts here would balloon memory for no savings,
// since the vast majority of traffic is human and each is seen once.
func (c *Cache) Put(entry domain.IPCacheEntry) {
	if entry.HitCount == 0 {
		entry.HitCount = 1
	}
	entry.CachedAt = time.Now()
	entry.LastHit = entry.CachedAt

	c.mu.Lock()
	c.entries[entry.IP] = &entry
	c.mu.Unlock()
}

// Remove deletes a cached entry, for operator-driven unbanning.
func (c *Cache) Remove(ip string) {
	c.mu.Lock()
	delete(c.entries, ip)
	c.mu.Unlock()
}

// Import loads entries in bulk from the relational mirror on startup.
func (c *Cache) Import(entries []domain.IPCacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range entries {
		e := entries[i]
		c.entries[e.IP] = &e
	}
}

// Size returns the number of cached IPs.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
