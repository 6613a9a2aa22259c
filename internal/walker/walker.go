// Package walker discovers article URLs and follow-up listing requests from
// fetched listing pages.
package walker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ppiankov/mergertracker/internal/model"
	"github.com/ppiankov/mergertracker/internal/util"
)

const defaultLinkSelector = "a[href]"

// nextSelectors are tried in order when a source has no NextLink selector
var nextSelectors = []string{
	"a[rel='next']",
	"link[rel='next']",
	".pagination-next a",
	"a.pagination-next",
	"a[aria-label='Next page']",
	".load-more-button",
	"[data-module='LoadMore'] a",
}

// dealPathKeywords mark a URL path as deal coverage
var dealPathKeywords = []string{
	"deal", "merger", "acquisition", "acquire", "buyout", "takeover",
	"m-a", "ipo", "spac", "private-equity", "leveraged-buyout",
	"consolidation", "joint-venture", "divest", "spin-off",
}

var (
	datedPath  = regexp.MustCompile(`/(19|20)\d{2}/\d{1,2}/`)
	slugPath   = regexp.MustCompile(`/[a-z0-9]+(-[a-z0-9]+){3,}/?$`)
	assetPath  = regexp.MustCompile(`\.(jpe?g|png|gif|svg|webp|css|js|pdf|zip|mp4|mp3)$`)
	pageNumber = regexp.MustCompile(`^\s*(\d+)\s*$`)
)

// Discovery is what one listing document yields
type Discovery struct {
	Articles []string        // Normalized article URLs in discovery order
	Next     *model.FetchJob // Nil when traversal of this listing ends
	Items    int             // Items present on the page before filtering
}

// Walker is stateless; Discover is a pure function of its inputs so a
// retried listing yields the same result
type Walker struct {
	maxItems int
}

// New creates a walker with the run-wide per-source item cap
func New(maxItemsPerSource int) *Walker {
	return &Walker{maxItems: maxItemsPerSource}
}

// Limit returns the effective item cap for src; 0 means unlimited
func (w *Walker) Limit(src model.SourceConfig) int {
	if src.MaxItems > 0 && (w.maxItems <= 0 || src.MaxItems < w.maxItems) {
		return src.MaxItems
	}
	return w.maxItems
}

// Discover extracts article URLs and the next listing request from doc.
// seen is the number of articles the source has discovered so far.
func (w *Walker) Discover(src model.SourceConfig, doc *model.RawDocument, seen int) (*Discovery, error) {
	if doc == nil {
		return nil, fmt.Errorf("discover: nil document")
	}

	var (
		d   *Discovery
		err error
	)
	switch {
	case doc.Via == model.ViaFeed:
		d, err = discoverFeed(src, doc)
	case doc.Kind == model.JobLoadMore:
		d, err = discoverLoadMore(src, doc)
	default:
		d, err = discoverListing(src, doc)
	}
	if err != nil {
		return nil, err
	}

	if limit := w.Limit(src); limit > 0 {
		remaining := limit - seen
		if remaining <= 0 {
			d.Articles = nil
			d.Next = nil
		} else if len(d.Articles) >= remaining {
			d.Articles = d.Articles[:remaining]
			d.Next = nil
		}
	}

	return d, nil
}

// discoverListing handles a full HTML listing page in static, headless or
// load-more mode
func discoverListing(src model.SourceConfig, doc *model.RawDocument) (*Discovery, error) {
	page, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, fmt.Errorf("parse listing %s: %w", doc.URL, err)
	}

	base := pageURL(doc)
	sel := src.Selectors.ListingLink
	if src.Mode == model.ModeLoadMore && src.LoadMore != nil && src.LoadMore.ItemSelector != "" && sel == "" {
		sel = src.LoadMore.ItemSelector
	}
	articles, items := collectLinks(page.Selection, sel, base, src)
	d := &Discovery{Articles: articles, Items: items}

	if src.Mode == model.ModeLoadMore && src.LoadMore != nil {
		d.Next = loadMoreJob(src, firstLoadMorePage(src.LoadMore))
		return d, nil
	}

	// A page that adds nothing ends the traversal
	if len(articles) == 0 {
		return d, nil
	}

	current := currentPage(doc)
	if next := findNext(page, src.Selectors.NextLink, base, current); next != "" {
		self, _ := util.NormalizeURL(base)
		if next != self {
			d.Next = &model.FetchJob{
				SourceID: src.ID,
				URL:      next,
				Kind:     model.JobListing,
				Page:     current + 1,
			}
		}
	}

	return d, nil
}

// discoverLoadMore handles an incremental-load response. An empty page ends
// the traversal without another request.
func discoverLoadMore(src model.SourceConfig, doc *model.RawDocument) (*Discovery, error) {
	fragment := loadMoreHTML(doc.Body)
	if strings.TrimSpace(fragment) == "" {
		return &Discovery{}, nil
	}

	page, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("parse load-more page %d: %w", doc.Page, err)
	}

	sel := ""
	if src.LoadMore != nil {
		sel = src.LoadMore.ItemSelector
	}
	if sel == "" {
		sel = src.Selectors.ListingLink
	}
	base := pageURL(doc)
	if len(src.BaseURLs) > 0 {
		base = src.BaseURLs[0]
	}

	articles, items := collectLinks(page.Selection, sel, base, src)
	d := &Discovery{Articles: articles, Items: items}
	if items == 0 {
		return d, nil
	}

	d.Next = loadMoreJob(src, doc.Page+1)
	return d, nil
}

// loadMoreHTML unwraps endpoints that answer with JSON carrying the HTML
// fragment under "html" or "data"
func loadMoreHTML(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return string(body)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return string(body)
	}
	for _, key := range []string{"html", "data", "content"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return ""
}

func loadMoreJob(src model.SourceConfig, page int) *model.FetchJob {
	return &model.FetchJob{
		SourceID: src.ID,
		URL:      src.LoadMore.Endpoint,
		Kind:     model.JobLoadMore,
		Page:     page,
	}
}

func firstLoadMorePage(lm *model.LoadMoreConfig) int {
	if lm.StartPage > 0 {
		return lm.StartPage
	}
	return 2
}

// collectLinks returns normalized, deduplicated article URLs under sel and
// the number of raw items matched
func collectLinks(root *goquery.Selection, sel, base string, src model.SourceConfig) ([]string, int) {
	explicit := sel != ""
	if !explicit {
		sel = defaultLinkSelector
	}

	items := root.Find(sel)
	seen := make(map[string]struct{}, items.Length())
	self := pathOf(base)
	var out []string

	items.Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			href, ok = s.Find("a[href]").First().Attr("href")
		}
		if !ok {
			return
		}

		normalized, err := util.ResolveURL(base, href)
		if err != nil {
			return
		}
		if !util.SameSite(normalized, src.BaseURLs) {
			return
		}
		if !explicit && (pathOf(normalized) == self || !LooksLikeArticle(normalized)) {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	})

	return out, items.Length()
}

// LooksLikeArticle reports whether a URL path resembles deal coverage:
// a deal keyword, a dated path or a long slug
func LooksLikeArticle(rawURL string) bool {
	path := strings.ToLower(rawURL)
	if i := strings.Index(path, "://"); i >= 0 {
		path = path[i+3:]
	}
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[i:]
	} else {
		return false
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "/" || assetPath.MatchString(path) {
		return false
	}

	for _, kw := range dealPathKeywords {
		if strings.Contains(path, kw) {
			return true
		}
	}
	return datedPath.MatchString(path) || slugPath.MatchString(path)
}

// findNext locates the next listing page: the configured selector, common
// rel=next style links, then a numbered link to current+1
func findNext(page *goquery.Document, sel, base string, current int) string {
	candidates := nextSelectors
	if sel != "" {
		candidates = append([]string{sel}, nextSelectors...)
	}

	for _, c := range candidates {
		if href, ok := page.Find(c).First().Attr("href"); ok {
			if u, err := util.ResolveURL(base, href); err == nil {
				return u
			}
		}
	}

	want := strconv.Itoa(current + 1)
	var found string
	page.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		m := pageNumber.FindStringSubmatch(s.Text())
		if m == nil || m[1] != want {
			return true
		}
		href, _ := s.Attr("href")
		u, err := util.ResolveURL(base, href)
		if err != nil {
			return true
		}
		found = u
		return false
	})
	return found
}

func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimRight(u.Path, "/")
}

func pageURL(doc *model.RawDocument) string {
	if doc.FinalURL != "" {
		return doc.FinalURL
	}
	return doc.URL
}

func currentPage(doc *model.RawDocument) int {
	if doc.Page > 0 {
		return doc.Page
	}
	return 1
}
