// Package adapters pull article fields out of parsed HTML. Sources with
// configured selectors get their own adapter; everything else falls back to
// the generic adapter.
package adapters

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ppiankov/mergertracker/internal/model"
)

// Fields are the raw article parts found in a page
type Fields struct {
	Title      string
	Paragraphs []string
	Author     string
	DateText   string // Unparsed; the normalizer parses it
	Paywalled  bool
}

// Body joins the paragraphs with blank lines
func (f *Fields) Body() string {
	return strings.Join(f.Paragraphs, "\n\n")
}

// Adapter defines the interface for source-specific extractors
type Adapter interface {
	// Name returns the adapter name
	Name() string

	// CanHandle checks if this adapter can handle a page of the given source
	CanHandle(src model.SourceConfig, url string) bool

	// Extract pulls article fields from the parsed page
	Extract(doc *goquery.Document, url string) (*Fields, error)
}

// Registry manages adapters
type Registry struct {
	adapters []Adapter
	generic  Adapter
}

// NewRegistry creates a registry with a selector adapter for every source
// that configures a body selector
func NewRegistry(sources []model.SourceConfig) *Registry {
	registry := &Registry{
		adapters: make([]Adapter, 0, len(sources)),
	}

	for _, src := range sources {
		if src.Selectors.Body != "" {
			registry.Register(NewSelectorAdapter(src))
		}
	}

	// Set generic adapter as fallback
	registry.generic = NewGenericAdapter()

	return registry
}

// Register registers a new adapter
func (r *Registry) Register(adapter Adapter) {
	r.adapters = append(r.adapters, adapter)
}

// FindAdapter finds the best adapter for the given source and URL
func (r *Registry) FindAdapter(src model.SourceConfig, url string) Adapter {
	for _, adapter := range r.adapters {
		if adapter.CanHandle(src, url) {
			return adapter
		}
	}
	return r.generic
}

// Generic returns the fallback adapter
func (r *Registry) Generic() Adapter {
	return r.generic
}

// BaseAdapter provides common functionality for adapters
type BaseAdapter struct{}

// Text returns the whitespace-collapsed visible text of a selection
func (b *BaseAdapter) Text(sel *goquery.Selection) string {
	var buf strings.Builder
	for _, n := range sel.Nodes {
		b.ExtractText(n, &buf)
	}
	return strings.Join(strings.Fields(buf.String()), " ")
}

// ExtractText appends the text under n, skipping script-like elements and
// separating block elements with a space
func (b *BaseAdapter) ExtractText(n *html.Node, buf *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(n.Data)
		return
	case html.ElementNode:
		if hiddenElements[n.Data] {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.ExtractText(c, buf)
	}
	if n.Type == html.ElementNode && blockElements[n.Data] {
		buf.WriteByte(' ')
	}
}

var (
	hiddenElements = map[string]bool{"script": true, "style": true, "noscript": true, "template": true}
	blockElements  = map[string]bool{
		"p": true, "div": true, "br": true, "li": true, "td": true, "th": true, "tr": true,
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
		"section": true, "article": true, "blockquote": true, "figcaption": true,
	}
)

// FirstText returns the text of the first selector that yields any
func (b *BaseAdapter) FirstText(doc *goquery.Document, selectors ...string) string {
	for _, s := range selectors {
		if s == "" {
			continue
		}
		if t := b.Text(doc.Find(s).First()); t != "" {
			return t
		}
	}
	return ""
}

// FirstAttr returns the first non-empty attribute value among the selectors
func (b *BaseAdapter) FirstAttr(doc *goquery.Document, attr string, selectors ...string) string {
	for _, s := range selectors {
		if s == "" {
			continue
		}
		if v, ok := doc.Find(s).First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Paragraphs collects the text of each matched element. Containers without
// paragraph children contribute their own text. Repeats and fragments
// shorter than minParagraphWords are dropped.
func (b *BaseAdapter) Paragraphs(sel *goquery.Selection) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s *goquery.Selection) {
		t := b.Text(s)
		if len(strings.Fields(t)) < minParagraphWords || seen[t] {
			return
		}
		seen[t] = true
		out = append(out, t)
	}

	sel.Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "p" {
			add(s)
			return
		}
		inner := s.Find("p")
		if inner.Length() == 0 {
			add(s)
			return
		}
		inner.Each(func(_ int, p *goquery.Selection) { add(p) })
	})
	return out
}

// DateText reads a publication date from datetime/content attributes or
// element text
func (b *BaseAdapter) DateText(doc *goquery.Document, selectors ...string) string {
	for _, s := range selectors {
		if s == "" {
			continue
		}
		el := doc.Find(s).First()
		if el.Length() == 0 {
			continue
		}
		for _, attr := range []string{"datetime", "content"} {
			if v, ok := el.Attr(attr); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		if t := b.Text(el); t != "" {
			return t
		}
	}
	return ""
}

const minParagraphWords = 4

var paywallIndicators = []string{
	"paywall",
	"subscription required",
	"subscribe to continue",
	"premium content",
	"subscriber exclusive",
	"subscribers only",
}

// DetectPaywall checks the page for paywall markers in classes and copy
func DetectPaywall(doc *goquery.Document) bool {
	if doc.Find(`[class*="paywall"], [id*="paywall"], [class*="subscriber-only"]`).Length() > 0 {
		return true
	}
	text := strings.ToLower(doc.Find("body").Text())
	for _, indicator := range paywallIndicators {
		if strings.Contains(text, indicator) {
			return true
		}
	}
	return false
}
