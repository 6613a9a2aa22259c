package adapters

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/ppiankov/mergertracker/internal/model"
)

// SelectorAdapter extracts with a source's configured CSS selectors
type SelectorAdapter struct {
	BaseAdapter
	sourceID  string
	selectors model.Selectors
}

// NewSelectorAdapter creates an adapter for one source
func NewSelectorAdapter(src model.SourceConfig) *SelectorAdapter {
	return &SelectorAdapter{sourceID: src.ID, selectors: src.Selectors}
}

// Name returns the adapter name
func (a *SelectorAdapter) Name() string {
	return "selector:" + a.sourceID
}

// CanHandle matches pages of its own source
func (a *SelectorAdapter) CanHandle(src model.SourceConfig, url string) bool {
	return src.ID == a.sourceID
}

// Extract reads the configured selectors, filling missing title, author and
// date from the generic page metadata
func (a *SelectorAdapter) Extract(doc *goquery.Document, url string) (*Fields, error) {
	paragraphs := a.Paragraphs(doc.Find(a.selectors.Body))
	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("selector %q matched no body text", a.selectors.Body)
	}

	return &Fields{
		Title:      a.FirstText(doc, append([]string{a.selectors.Title}, titleSelectors...)...),
		Paragraphs: paragraphs,
		Author:     a.FirstText(doc, a.selectors.Author),
		DateText:   a.DateText(doc, append([]string{a.selectors.Date}, dateSelectors...)...),
		Paywalled:  DetectPaywall(doc),
	}, nil
}
