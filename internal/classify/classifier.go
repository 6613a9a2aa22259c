// Package classify is the cheap relevance pre-filter that runs before deal
// extraction. It favors recall: a false positive only costs an extraction
// pass that scores low, a false negative loses a deal.
package classify

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/ppiankov/mergertracker/internal/logging"
	"github.com/ppiankov/mergertracker/internal/model"
)

// DefaultKeywords is the curated M&A vocabulary
var DefaultKeywords = []string{
	"acquisition", "acquire", "acquires", "acquired", "acquiring", "acquirer",
	"merger", "merge", "merges", "merged", "merging", "combine", "combining", "combination",
	"takeover", "take over", "buyout", "leveraged buyout", "tender offer",
	"stake", "purchase", "purchases", "purchased", "to buy", "agreed to buy", "bought",
	"divest", "divestiture", "spin-off", "spinoff", "spin off", "carve-out", "carve out",
	"initial public offering", "ipo", "goes public", "go public", "spac",
	"definitive agreement", "deal value", "transaction value", "enterprise value",
	"all-cash", "all-stock", "per share in cash", "m&a", "private equity", "joint venture",
	"business combination", "bid for", "consolidation",
}

// Ticker and deal-value patterns count as one keyword hit each
var (
	tickerRe = regexp.MustCompile(`\((?:NYSE|NASDAQ|Nasdaq|LSE|TSX|AMEX|OTC|ASX|HKEX)\s*:\s*[A-Z]{1,5}(?:\.[A-Z]{1,2})?\)|\(\$[A-Z]{1,5}\)`)
	valueRe  = regexp.MustCompile(`(?i)(?:US\$|\$|€|£|USD|EUR|GBP)\s?\d+(?:[.,]\d+)*\s*(?:billion|million|bn|mln|m)\b`)
)

var paywallIndicators = []string{
	"paywall",
	"subscription required",
	"subscribe to continue",
	"premium content",
	"subscriber exclusive",
}

// Result explains a relevance decision
type Result struct {
	Relevant  bool
	Matches   []string // Distinct keywords and pattern names that hit
	TitleHit  bool
	Paywalled bool
}

// Classifier matches articles against the keyword automaton. It is safe for
// concurrent use.
type Classifier struct {
	mu         sync.Mutex // Matcher keeps per-match state
	matcher    *ahocorasick.Matcher
	keywords   []string
	minMatches int
	logger     logging.Logger
}

// New builds the automaton from the default keywords plus the configured extras
func New(cfg model.ClassifyConfig, logger logging.Logger) *Classifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	minMatches := cfg.MinMatches
	if minMatches <= 0 {
		minMatches = 1
	}

	seen := make(map[string]bool)
	keywords := make([]string, 0, len(DefaultKeywords)+len(cfg.ExtraKeywords))
	for _, kw := range append(append([]string{}, DefaultKeywords...), cfg.ExtraKeywords...) {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		keywords = append(keywords, kw)
	}

	return &Classifier{
		matcher:    ahocorasick.NewStringMatcher(keywords),
		keywords:   keywords,
		minMatches: minMatches,
		logger:     logger,
	}
}

// IsRelevant reports whether the article should go on to extraction. A
// paywall marker sets Article.Paywalled but never disqualifies.
func (c *Classifier) IsRelevant(article *model.Article) bool {
	if article == nil {
		return false
	}
	r := c.Classify(article)
	if r.Paywalled {
		article.Paywalled = true
	}
	c.logger.Debug("classified article",
		logging.String("url", article.URL),
		logging.Bool("relevant", r.Relevant),
		logging.Int("matches", len(r.Matches)),
		logging.Bool("title_hit", r.TitleHit))
	return r.Relevant
}

// Classify scores an article without modifying it
func (c *Classifier) Classify(article *model.Article) Result {
	title := strings.ToLower(article.Title)
	body := strings.ToLower(article.Body)

	c.mu.Lock()
	titleHits := c.matcher.Match([]byte(title))
	bodyHits := c.matcher.Match([]byte(body))
	c.mu.Unlock()

	var r Result
	hits := make(map[string]bool)
	for _, i := range titleHits {
		hits[c.keywords[i]] = true
		r.TitleHit = true
	}
	for _, i := range bodyHits {
		hits[c.keywords[i]] = true
	}
	for _, text := range []string{article.Title, article.Body} {
		if tickerRe.MatchString(text) {
			hits["<ticker>"] = true
		}
		if valueRe.MatchString(text) {
			hits["<deal value>"] = true
		}
	}

	r.Matches = make([]string, 0, len(hits))
	for k := range hits {
		r.Matches = append(r.Matches, k)
	}
	sort.Strings(r.Matches)

	r.Relevant = r.TitleHit || len(r.Matches) >= c.minMatches
	r.Paywalled = article.Paywalled || hasPaywall(body)
	return r
}

func hasPaywall(lower string) bool {
	for _, indicator := range paywallIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
