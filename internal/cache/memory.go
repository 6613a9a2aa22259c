package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is an in-process TTL cache of pages
type MemoryCache struct {
	pages *gocache.Cache
}

// NewMemoryCache creates a memory cache that sweeps expired pages at least every 10 minutes
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	sweep := ttl
	if sweep <= 0 || sweep > 10*time.Minute {
		sweep = 10 * time.Minute
	}
	return &MemoryCache{pages: gocache.New(ttl, sweep)}
}

func (c *MemoryCache) Get(url string) (*Page, bool) {
	v, found := c.pages.Get(key(url))
	if !found {
		return nil, false
	}
	page, ok := v.(*Page)
	return page, ok
}

// Put stores page; ttl 0 uses the cache default
func (c *MemoryCache) Put(page *Page, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	c.pages.Set(key(page.URL), page, ttl)
	return nil
}
