// Package extract normalizes fetched documents into articles and pulls
// structured deal records out of article text with rule-based patterns.
package extract

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/mergertracker/internal/model"
	"github.com/ppiankov/mergertracker/internal/score"
	"github.com/ppiankov/mergertracker/internal/util"
)

// ErrNilArticle is returned when Extract is called without an article
var ErrNilArticle = errors.New("nil article")

// Extractor finds deals in article text
type Extractor struct {
	scorer *score.Scorer
}

// NewExtractor creates an extractor. A nil scorer uses the default weights.
func NewExtractor(scorer *score.Scorer) *Extractor {
	if scorer == nil {
		scorer = score.NewScorer()
	}
	return &Extractor{scorer: scorer}
}

// window is one sentence together with its enclosing paragraph
type window struct {
	sentence  string
	paragraph string
}

// Extract returns the deals found in an article, one per (type, acquirer,
// target). Low-confidence candidates are dropped. Extraction is a pure
// function of the article.
func (e *Extractor) Extract(article *model.Article) ([]model.ExtractedDeal, error) {
	if article == nil {
		return nil, ErrNilArticle
	}
	deals := []model.ExtractedDeal{}
	if strings.TrimSpace(article.Body) == "" && len(article.Paragraphs) == 0 {
		return deals, nil
	}

	index := make(map[string]int)
	points := make([]int, 0)
	for _, w := range windows(article) {
		deal, pts, ok := e.fromWindow(article, w)
		if !ok {
			continue
		}
		key := string(deal.DealType) + "|" + util.NormalizeCompany(deal.Acquirer()) + "|" + util.NormalizeCompany(deal.TargetCompany)
		if i, seen := index[key]; seen {
			if pts > points[i] {
				deals[i], points[i] = deal, pts
			}
			continue
		}
		index[key] = len(deals)
		deals = append(deals, deal)
		points = append(points, pts)
	}
	return deals, nil
}

func windows(article *model.Article) []window {
	paragraphs := make([]string, 0, len(article.Paragraphs)+1)
	if t := strings.TrimSpace(article.Title); t != "" {
		paragraphs = append(paragraphs, t)
	}
	if len(article.Paragraphs) > 0 {
		paragraphs = append(paragraphs, article.Paragraphs...)
	} else {
		paragraphs = append(paragraphs, splitParagraphs(article.Body)...)
	}

	var out []window
	for _, p := range paragraphs {
		for _, s := range SplitSentences(p) {
			out = append(out, window{sentence: s, paragraph: p})
		}
	}
	return out
}

// fromWindow builds at most one deal from a sentence. Secondary fields are
// looked up in the sentence first and then in its paragraph.
func (e *Extractor) fromWindow(article *model.Article, w window) (model.ExtractedDeal, int, bool) {
	lower := lowerASCII(w.sentence)
	kw, ok := detectType(lower)
	if !ok {
		return model.ExtractedDeal{}, 0, false
	}

	names := findNames(w.sentence)
	r := handlers[kw.dealType](w.sentence, lower, names, kw)
	if r.target == nil {
		return model.ExtractedDeal{}, 0, false
	}
	if r.acquirer != nil && util.NormalizeCompany(r.acquirer.text) == util.NormalizeCompany(r.target.text) {
		r.acquirer = nil
	}

	paraLower := lowerASCII(w.paragraph)
	deal := model.ExtractedDeal{
		DealType:      kw.dealType,
		DealStatus:    model.StatusAnnounced,
		TargetCompany: r.target.text,
		TargetTicker:  r.target.ticker,
		SourceURL:     article.URL,
		SourceID:      article.SourceID,
	}
	if article.PublishedAt != nil {
		published := *article.PublishedAt
		deal.ArticlePublishedAt = &published
	}
	signals := []model.SignalCategory{model.SignalDealType, model.SignalCompany}
	companies := []string{r.target.text}
	if r.acquirer != nil {
		deal.AcquirerCompany = model.StringPtr(r.acquirer.text)
		deal.AcquirerTicker = r.acquirer.ticker
		companies = append(companies, r.acquirer.text)
	}

	if v := firstValue(w.sentence, w.paragraph); v != nil {
		deal.Value = v
		signals = append(signals, model.SignalValue)
	}

	if tag, ok := findIndustry(lower, companies); ok {
		deal.IndustryTag = model.StringPtr(tag)
	} else if tag, ok := findIndustry(paraLower, nil); ok {
		deal.IndustryTag = model.StringPtr(tag)
	}
	if deal.IndustryTag != nil {
		signals = append(signals, model.SignalIndustry)
	}

	if tag, ok := findGeography(lower); ok {
		deal.GeographyTag = model.StringPtr(tag)
	} else if tag, ok := findGeography(paraLower); ok {
		deal.GeographyTag = model.StringPtr(tag)
	}
	if deal.GeographyTag != nil {
		signals = append(signals, model.SignalGeography)
	}

	deal.Advisors = findAdvisors(w.sentence)
	if len(deal.Advisors) == 0 {
		deal.Advisors = findAdvisors(w.paragraph)
	}
	if len(deal.Advisors) > 0 {
		signals = append(signals, model.SignalAdvisor)
	}

	deal.AnnouncementDate, deal.ExpectedCompletion = findDates(w.sentence, w.paragraph)
	if deal.AnnouncementDate != nil {
		signals = append(signals, model.SignalDate)
	}

	if status, ok := findStatus(lower); ok {
		deal.DealStatus = status
		signals = append(signals, model.SignalStatus)
	} else if status, ok := findStatus(paraLower); ok {
		deal.DealStatus = status
		signals = append(signals, model.SignalStatus)
	}

	deal.Structure = findStructure(lower)
	if deal.Structure == "" {
		deal.Structure = findStructure(paraLower)
	}

	result := e.scorer.Calculate(signals)
	if result.Band == model.BandLow {
		return model.ExtractedDeal{}, 0, false
	}
	deal.Confidence = result.Confidence
	deal.Band = result.Band
	deal.Signals = result.Signals
	deal.ID = DealID(article.URL, deal.DealType, deal.Acquirer(), deal.TargetCompany)
	return deal, result.Points, true
}

func firstValue(sentence, paragraph string) *model.DealValue {
	if v := findValue(sentence); v != nil {
		return v
	}
	return findValue(paragraph)
}

// findDates returns the announcement date and expected completion. A date
// inside the "expected to close" phrase is never taken as the announcement.
func findDates(sentence, paragraph string) (announced, expected *time.Time) {
	var skipSentence, skipParagraph [2]int
	expected, skipSentence = findExpectedCompletion(sentence)
	if expected == nil {
		expected, skipParagraph = findExpectedCompletion(paragraph)
	} else {
		_, skipParagraph = findExpectedCompletion(paragraph)
	}

	announced = findDate(sentence, skipSentence)
	if announced == nil {
		announced = findDate(paragraph, skipParagraph)
	}
	return announced, expected
}

// DealID derives a stable id from a deal's natural key
func DealID(sourceURL string, dealType model.DealType, acquirer, target string) string {
	key := strings.Join([]string{sourceURL, string(dealType), acquirer, target}, "|")
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}
