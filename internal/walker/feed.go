package walker

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/ppiankov/mergertracker/internal/model"
	"github.com/ppiankov/mergertracker/internal/util"
)

// FeedItem is one entry of a source's RSS or Atom feed
type FeedItem struct {
	URL   string
	Title string
}

// ParseFeed parses an RSS or Atom body. Entries without a usable link are
// skipped; an empty feed returns an empty slice.
func ParseFeed(body []byte) ([]FeedItem, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]FeedItem, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		link := entry.Link
		if link == "" && strings.HasPrefix(entry.GUID, "http") {
			link = entry.GUID
		}
		if link == "" {
			continue
		}
		items = append(items, FeedItem{URL: link, Title: entry.Title})
	}
	return items, nil
}

// discoverFeed turns feed entries into article URLs. Feeds have no next page.
func discoverFeed(src model.SourceConfig, doc *model.RawDocument) (*Discovery, error) {
	items, err := ParseFeed(doc.Body)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(items))
	d := &Discovery{Items: len(items)}
	for _, item := range items {
		normalized, err := util.NormalizeURL(item.URL)
		if err != nil {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		d.Articles = append(d.Articles, normalized)
	}
	return d, nil
}
