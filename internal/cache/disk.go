package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DiskCache persists pages as JSON files so they survive between runs
type DiskCache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

func NewDiskCache(dir string, ttl time.Duration) *DiskCache {
	return &DiskCache{dir: dir, ttl: ttl, now: time.Now}
}

type diskEntry struct {
	Page      *Page     `json:"page"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Get reads a page; expired or unreadable files are removed
func (c *DiskCache) Get(url string) (*Page, bool) {
	path := c.path(url)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var entry diskEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Page == nil || c.now().After(entry.ExpiresAt) {
		_ = os.Remove(path)
		return nil, false
	}
	return entry.Page, true
}

// Put writes through a temp file and rename, so a concurrent Get never
// sees half a page
func (c *DiskCache) Put(page *Page, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	data, err := json.Marshal(diskEntry{Page: page, ExpiresAt: c.now().Add(ttl)})
	if err != nil {
		return fmt.Errorf("marshal page: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, "tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), c.path(page.URL))
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache file: %w", err)
	}
	return nil
}

func (c *DiskCache) path(url string) string {
	return filepath.Join(c.dir, key(url)+".json")
}
