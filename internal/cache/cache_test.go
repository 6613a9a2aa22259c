package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/mergertracker/internal/model"
)

func testPage(url string) *Page {
	return &Page{
		URL:       url,
		FinalURL:  url + "?amp=0",
		Body:      []byte("article body"),
		FetchedAt: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
	}
}

func TestKey(t *testing.T) {
	a := key("https://example.com/a")
	if a == key("https://example.com/b") {
		t.Error("expected distinct keys for distinct URLs")
	}
	if filepath.Base(a) != a {
		t.Errorf("expected a filesystem-safe key, got %s", a)
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	if _, ok := c.Get("https://example.com/a"); ok {
		t.Fatal("expected miss before put")
	}
	_ = c.Put(testPage("https://example.com/a"), 0)

	page, ok := c.Get("https://example.com/a")
	if !ok || string(page.Body) != "article body" {
		t.Fatalf("expected hit, got %+v %v", page, ok)
	}
}

func TestDiskCache_Expiry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	want := testPage("https://example.com/a")
	if err := c.Put(want, 0); err != nil {
		t.Fatal(err)
	}
	got, ok := c.Get(want.URL)
	if !ok {
		t.Fatal("expected hit")
	}
	if got.FinalURL != want.FinalURL || !got.FetchedAt.Equal(want.FetchedAt) {
		t.Errorf("expected page metadata to survive, got %+v", got)
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get(want.URL); ok {
		t.Error("expected expired entry to miss")
	}
	if _, err := os.Stat(c.path(want.URL)); !os.IsNotExist(err) {
		t.Error("expected expired file to be removed")
	}
}

func TestDiskCache_CorruptFileMisses(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	if err := os.WriteFile(c.path("https://example.com/a"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("https://example.com/a"); ok {
		t.Error("expected corrupt entry to miss")
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	cfg := model.CacheConfig{Enabled: true, TTL: time.Hour, Dir: t.TempDir()}
	if err := New(cfg).Put(testPage("https://example.com/a"), 0); err != nil {
		t.Fatal(err)
	}

	// A fresh process sees the disk layer only
	second := New(cfg).(*LayeredCache)
	if _, ok := second.Get("https://example.com/a"); !ok {
		t.Fatal("expected disk hit")
	}
	if _, ok := second.memory.Get("https://example.com/a"); !ok {
		t.Error("expected disk hit to be promoted to memory")
	}
}

func TestNew(t *testing.T) {
	if _, ok := New(model.CacheConfig{Enabled: false}).(NopCache); !ok {
		t.Error("expected NopCache when disabled")
	}
	if _, ok := New(model.CacheConfig{Enabled: true, TTL: time.Minute}).(*MemoryCache); !ok {
		t.Error("expected MemoryCache without dir")
	}
	if _, ok := New(model.CacheConfig{Enabled: true, TTL: time.Minute, Dir: t.TempDir()}).(*LayeredCache); !ok {
		t.Error("expected LayeredCache with dir")
	}
}
