package adapters

import (
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/ppiankov/mergertracker/internal/model"
)

// ErrNoContent is returned when no article body can be found
var ErrNoContent = errors.New("no article content found")

var (
	titleSelectors = []string{"article h1", "h1.entry-title", "h1.article-title", "h1", "title"}
	bodySelectors  = []string{"article p", ".article-body p", ".article-content p", ".entry-content p", ".post-content p", ".story-body p", "main p"}
	dateSelectors  = []string{
		`meta[property="article:published_time"]`,
		`meta[name="date"]`,
		`meta[name="pubdate"]`,
		"time[datetime]",
		".published",
		".post-date",
		".article-date",
	}
	authorSelectors = []string{".byline", ".author-name", `[rel="author"]`, ".author"}
)

// GenericAdapter is the fallback adapter for sources without selectors
type GenericAdapter struct {
	BaseAdapter
}

// NewGenericAdapter creates a new generic adapter
func NewGenericAdapter() *GenericAdapter {
	return &GenericAdapter{}
}

// Name returns the adapter name
func (a *GenericAdapter) Name() string {
	return "generic"
}

// CanHandle always returns true (fallback adapter)
func (a *GenericAdapter) CanHandle(src model.SourceConfig, url string) bool {
	return true
}

// Extract tries common article markup first and falls back to readability
// when the page has no recognizable article body
func (a *GenericAdapter) Extract(doc *goquery.Document, pageURL string) (*Fields, error) {
	fields := &Fields{
		Title:     a.FirstAttr(doc, "content", `meta[property="og:title"]`),
		Author:    a.FirstAttr(doc, "content", `meta[name="author"]`),
		DateText:  a.DateText(doc, dateSelectors...),
		Paywalled: DetectPaywall(doc),
	}
	if fields.Title == "" {
		fields.Title = a.FirstText(doc, titleSelectors...)
	}
	if fields.Author == "" {
		fields.Author = a.FirstText(doc, authorSelectors...)
	}

	for _, s := range bodySelectors {
		if p := a.Paragraphs(doc.Find(s)); len(p) > 0 {
			fields.Paragraphs = p
			return fields, nil
		}
	}

	title, paragraphs := a.readability(doc, pageURL)
	if len(paragraphs) == 0 {
		return fields, ErrNoContent
	}
	if fields.Title == "" {
		fields.Title = title
	}
	fields.Paragraphs = paragraphs
	return fields, nil
}

// readability runs the readability extractor over the whole page
func (a *GenericAdapter) readability(doc *goquery.Document, pageURL string) (string, []string) {
	documentHTML, err := doc.Html()
	if err != nil || strings.TrimSpace(documentHTML) == "" {
		return "", nil
	}
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return "", nil
	}

	article, err := readability.FromReader(strings.NewReader(documentHTML), parsedURL)
	if err != nil {
		return "", nil
	}

	var paragraphs []string
	if content, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content)); err == nil {
		paragraphs = a.Paragraphs(content.Find("p"))
	}
	if len(paragraphs) == 0 {
		for _, line := range strings.Split(article.TextContent, "\n") {
			if line = strings.Join(strings.Fields(line), " "); len(strings.Fields(line)) >= minParagraphWords {
				paragraphs = append(paragraphs, line)
			}
		}
	}
	return strings.TrimSpace(article.Title), paragraphs
}
