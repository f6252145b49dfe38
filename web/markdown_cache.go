// ABOUTME: In-memory cache for rendered story page Markdown, keyed by the sha256 of the source text.
// ABOUTME: Supports TTL-based expiry, concurrent access, and a size cap that sweeps expired entries.
package web

import (
	"crypto/sha256"
	"html/template"
	"sync"
	"time"
)

const (
	markdownCacheTTL        = 10 * time.Minute
	markdownCacheMaxEntries = 1024
)

// renderFunc converts Markdown source to HTML.
type renderFunc func(src string) template.HTML

type cacheEntry struct {
	html      template.HTML
	createdAt time.Time
}

// markdownCache wraps a renderFunc with an in-memory cache. Page text only
// changes when a story is regenerated, so entries live for a fixed TTL.
type markdownCache struct {
	render     renderFunc
	ttl        time.Duration
	maxEntries int
	entries    map[[sha256.Size]byte]*cacheEntry
	mu         sync.RWMutex
}

func newMarkdownCache(render renderFunc, ttl time.Duration, maxEntries int) *markdownCache {
	return &markdownCache{
		render:     render,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[[sha256.Size]byte]*cacheEntry),
	}
}

// Render returns the cached HTML for src when present and not expired.
func (c *markdownCache) Render(src string) template.HTML {
	key := sha256.Sum256([]byte(src))

	c.mu.RLock()
	if entry, ok := c.entries[key]; ok && time.Since(entry.createdAt) < c.ttl {
		html := entry.html
		c.mu.RUnlock()
		return html
	}
	c.mu.RUnlock()

	html := c.render(src)

	c.mu.Lock()
	if len(c.entries) >= c.maxEntries {
		c.sweepLocked()
	}
	c.entries[key] = &cacheEntry{html: html, createdAt: time.Now()}
	c.mu.Unlock()

	return html
}

// sweepLocked drops expired entries, or everything if none had expired.
func (c *markdownCache) sweepLocked() {
	for k, e := range c.entries {
		if time.Since(e.createdAt) >= c.ttl {
			delete(c.entries, k)
		}
	}
	if len(c.entries) >= c.maxEntries {
		clear(c.entries)
	}
}

// Len returns the number of entries currently in the cache (including expired ones).
func (c *markdownCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
