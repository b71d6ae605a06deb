package summarize

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheGetSet(t *testing.T) {
	c := NewCache(time.Minute)

	_, ok := c.Get("doc", 500, "brief")
	assert.False(t, ok)

	want := NewSummary("doc", "d", 42)
	c.Set("doc", 500, "brief", want)

	got, ok := c.Get("doc", 500, "brief")
	assert.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = c.Get("doc", 400, "brief")
	assert.False(t, ok, "target is part of the key")
	_, ok = c.Get("doc", 500, "notes")
	assert.False(t, ok, "style is part of the key")
}

func TestCacheExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache(time.Minute)
	c.now = func() time.Time { return now }

	c.Set("doc", 500, "brief", NewSummary("doc", "d", 1))
	now = now.Add(2 * time.Minute)

	_, ok := c.Get("doc", 500, "brief")
	assert.False(t, ok)

	c.Set("other", 500, "brief", NewSummary("other", "o", 1))
	assert.Equal(t, 1, c.Len(), "expired entries are evicted on Set")

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set("doc", i, "brief", NewSummary("doc", "d", i))
			c.Get("doc", i, "brief")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, c.Len())
}
