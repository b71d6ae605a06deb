package summarize

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"
)

// Cache holds finished summaries keyed by input text, target and style so
// the same document is not summarized twice within the TTL.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	summary  Summary
	storedAt time.Time
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached summary if present and not expired.
func (c *Cache) Get(text string, target int, style string) (Summary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[cacheKey(text, target, style)]
	if !ok || c.now().Sub(entry.storedAt) > c.ttl {
		return Summary{}, false
	}
	return entry.summary, true
}

// Set stores a summary.
func (c *Cache) Set(text string, target int, style string, s Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpired()
	c.entries[cacheKey(text, target, style)] = cacheEntry{summary: s, storedAt: c.now()}
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// evictExpired must be called with the write lock held.
func (c *Cache) evictExpired() {
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.entries, k)
		}
	}
}

func cacheKey(text string, target int, style string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:]) + "|" + strconv.Itoa(target) + "|" + style
}
