package api

import (
	"sync"
	"time"

	"github.com/JakeFAU/logohunter/internal/hunter"
)

const cacheSweepThreshold = 1024

type cacheEntry struct {
	logo    *hunter.Logo
	expires time.Time
}

// logoCache keeps recent hunt results, including misses, for a fixed TTL.
type logoCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   hunter.Clock
	entries map[string]cacheEntry
}

func newLogoCache(ttl time.Duration, clock hunter.Clock) *logoCache {
	return &logoCache{ttl: ttl, clock: clock, entries: make(map[string]cacheEntry)}
}

func (c *logoCache) get(key string) (*hunter.Logo, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.logo, true
}

func (c *logoCache) put(key string, logo *hunter.Logo) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	if len(c.entries) >= cacheSweepThreshold {
		for k, e := range c.entries {
			if !now.Before(e.expires) {
				delete(c.entries, k)
			}
		}
	}
	c.entries[key] = cacheEntry{logo: logo, expires: now.Add(c.ttl)}
}

func (c *logoCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
