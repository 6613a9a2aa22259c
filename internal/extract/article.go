package extract

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/ppiankov/mergertracker/internal/extract/adapters"
	"github.com/ppiankov/mergertracker/internal/model"
)

var (
	// ErrNilDocument is returned when Normalize is called without a document
	ErrNilDocument = errors.New("nil document")

	// ErrNoBody means no article text could be found; the document is skipped
	ErrNoBody = errors.New("no article body")
)

// Normalizer turns fetched article pages into Articles
type Normalizer struct {
	registry *adapters.Registry
	sources  map[string]model.SourceConfig
}

// NewNormalizer creates a normalizer for the configured sources
func NewNormalizer(sources []model.SourceConfig) *Normalizer {
	byID := make(map[string]model.SourceConfig, len(sources))
	for _, s := range sources {
		byID[s.ID] = s
	}
	return &Normalizer{
		registry: adapters.NewRegistry(sources),
		sources:  byID,
	}
}

// Normalize parses a document into an Article. Problems that do not prevent
// reading the body are recorded in ScrapingErrors; a missing or unreadable
// publication date marks the article for review. When no body can be found
// the partial article is returned together with ErrNoBody.
func (n *Normalizer) Normalize(doc *model.RawDocument) (*model.Article, error) {
	if doc == nil {
		return nil, ErrNilDocument
	}

	src, ok := n.sources[doc.SourceID]
	if !ok {
		src = model.SourceConfig{ID: doc.SourceID, Name: doc.SourceID}
	}
	article := &model.Article{
		URL:        doc.URL,
		SourceID:   doc.SourceID,
		SourceName: src.Name,
		FetchedAt:  doc.FetchedAt,
	}

	page, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		article.ScrapingErrors = append(article.ScrapingErrors, fmt.Sprintf("parse html: %v", err))
		return article, fmt.Errorf("%w: %v", ErrNoBody, err)
	}

	pageURL := doc.FinalURL
	if pageURL == "" {
		pageURL = doc.URL
	}

	adapter := n.registry.FindAdapter(src, pageURL)
	fields, err := adapter.Extract(page, pageURL)
	if err != nil && adapter != n.registry.Generic() {
		article.ScrapingErrors = append(article.ScrapingErrors, fmt.Sprintf("%s: %v", adapter.Name(), err))
		fields, err = n.registry.Generic().Extract(page, pageURL)
	}
	if fields != nil {
		article.Title = fields.Title
		article.Author = fields.Author
		article.Paywalled = fields.Paywalled
		n.setPublished(article, fields.DateText)
	}
	if err != nil {
		article.ScrapingErrors = append(article.ScrapingErrors, err.Error())
		return article, fmt.Errorf("%w: %s", ErrNoBody, doc.URL)
	}

	article.Paragraphs = fields.Paragraphs
	article.Body = fields.Body()
	article.WordCount = WordCount(article.Body)
	article.ReadingTime = ReadingTime(article.WordCount)
	return article, nil
}

func (n *Normalizer) setPublished(article *model.Article, dateText string) {
	if dateText == "" {
		article.RequiresReview = true
		article.ScrapingErrors = append(article.ScrapingErrors, "published date not found")
		return
	}
	t, ok := ParseDate(dateText)
	if !ok {
		article.RequiresReview = true
		article.ScrapingErrors = append(article.ScrapingErrors, fmt.Sprintf("unparseable published date %q", dateText))
		return
	}
	article.PublishedAt = &t
}
