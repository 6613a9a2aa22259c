package cache

import "time"

// LayeredCache checks memory first and falls back to disk. Disk hits are
// promoted to memory.
type LayeredCache struct {
	memory *MemoryCache
	disk   *DiskCache
}

func (c *LayeredCache) Get(url string) (*Page, bool) {
	if page, ok := c.memory.Get(url); ok {
		return page, true
	}
	page, ok := c.disk.Get(url)
	if ok {
		_ = c.memory.Put(page, 0)
	}
	return page, ok
}

// Put writes both layers; only the disk layer can fail
func (c *LayeredCache) Put(page *Page, ttl time.Duration) error {
	_ = c.memory.Put(page, ttl)
	return c.disk.Put(page, ttl)
}
