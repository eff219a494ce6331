package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/ipvlabs/vendord/internal/metrics"
)

// Cache holds transcripts keyed by source URL for a fixed TTL. A retried
// page load within the TTL is served locally and costs no credit.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	result    TranscriptResult
	expiresAt time.Time
}

// NewCache creates a transcript cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// Get returns the cached transcript for url, if still fresh.
func (c *Cache) Get(url string) (*TranscriptResult, bool) {
	c.mu.RLock()
	entry, ok := c.entries[url]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		metrics.TranscriptCacheHitsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}

	metrics.TranscriptCacheHitsTotal.WithLabelValues("hit").Inc()
	result := entry.result
	result.Cached = true
	return &result, true
}

// Put stores a transcript for url.
func (c *Cache) Put(url string, result TranscriptResult) {
	result.Cached = false
	c.mu.Lock()
	c.entries[url] = cacheEntry{
		result:    result,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartSweep evicts expired entries periodically until ctx is cancelled.
// Call in a goroutine.
func (c *Cache) StartSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(time.Now())
		}
	}
}

func (c *Cache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for url, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, url)
		}
	}
}
