// Package cache keeps fetched article pages between runs so an unchanged
// page is not requested again within its TTL.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ppiankov/mergertracker/internal/model"
)

// Page is a cached article response
type Page struct {
	URL       string    `json:"url"`
	FinalURL  string    `json:"final_url"`
	Body      []byte    `json:"body"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Cache stores pages by request URL
type Cache interface {
	Get(url string) (*Page, bool)
	Put(page *Page, ttl time.Duration) error
}

// key is filesystem-safe and versioned so a layout change invalidates old files
func key(url string) string {
	hash := sha256.Sum256([]byte(url))
	return "page-v2-" + hex.EncodeToString(hash[:16])
}

// New builds the cache described by cfg: memory over disk when a directory
// is set, memory only otherwise, and a no-op cache when disabled
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return NopCache{}
	}
	mem := NewMemoryCache(cfg.TTL)
	if cfg.Dir == "" {
		return mem
	}
	return &LayeredCache{memory: mem, disk: NewDiskCache(cfg.Dir, cfg.TTL)}
}

// NopCache never stores anything
type NopCache struct{}

func (NopCache) Get(string) (*Page, bool) { return nil, false }
func (NopCache) Put(*Page, time.Duration) error { return nil }
