package extract

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/mergertracker/internal/model"
)

const genericPage = `<html>
<head>
	<title>Ignored | Example News</title>
	<meta property="og:title" content="TechCorp to acquire DataSoft">
	<meta property="article:published_time" content="2025-03-03T09:00:00Z">
	<meta name="author" content="Jane Doe">
</head>
<body>
	<nav><a href="/">Home</a></nav>
	<article>
		<h1>TechCorp to acquire DataSoft</h1>
		<p>TechCorp Inc. agrees to acquire DataSoft LLC for $2.5 billion.</p>
		<p>The deal is expected to close in Q3 2025.</p>
		<p>Share</p>
	</article>
</body>
</html>`

func rawDoc(sourceID, body string) *model.RawDocument {
	return &model.RawDocument{
		URL:       "https://news.example.com/2025/03/techcorp-datasoft",
		SourceID:  sourceID,
		Kind:      model.JobArticle,
		Status:    200,
		Body:      []byte(body),
		FetchedAt: time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC),
	}
}

func TestNormalize_Generic(t *testing.T) {
	n := NewNormalizer([]model.SourceConfig{{ID: "example", Name: "Example News"}})

	a, err := n.Normalize(rawDoc("example", genericPage))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if a.Title != "TechCorp to acquire DataSoft" {
		t.Errorf("Expected og:title, got %q", a.Title)
	}
	if a.SourceName != "Example News" {
		t.Errorf("Expected source name, got %q", a.SourceName)
	}
	if a.Author != "Jane Doe" {
		t.Errorf("Expected author Jane Doe, got %q", a.Author)
	}
	if len(a.Paragraphs) != 2 {
		t.Fatalf("Expected 2 paragraphs (short fragments dropped), got %q", a.Paragraphs)
	}
	if !strings.HasPrefix(a.Body, "TechCorp Inc. agrees") {
		t.Errorf("Unexpected body %q", a.Body)
	}
	if a.WordCount != 19 || a.ReadingTime != 1 {
		t.Errorf("Expected 19 words / 1 minute, got %d / %d", a.WordCount, a.ReadingTime)
	}
	want := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	if a.PublishedAt == nil || !a.PublishedAt.Equal(want) {
		t.Errorf("Expected published %v, got %v", want, a.PublishedAt)
	}
	if a.RequiresReview || a.Paywalled {
		t.Errorf("Expected clean article, got review=%v paywalled=%v", a.RequiresReview, a.Paywalled)
	}
}

func TestNormalize_MissingDateRequiresReview(t *testing.T) {
	n := NewNormalizer(nil)
	page := `<html><body><article><p>Foo Inc. agreed to buy Bar LLC for $1 billion.</p></article></body></html>`

	a, err := n.Normalize(rawDoc("example", page))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !a.RequiresReview || a.PublishedAt != nil {
		t.Errorf("Expected review without published date, got %+v", a)
	}
	if len(a.ScrapingErrors) == 0 {
		t.Error("Expected a scraping error for the missing date")
	}
}

func TestNormalize_UnparseableDateRequiresReview(t *testing.T) {
	n := NewNormalizer(nil)
	page := `<html><body><time datetime="sometime soon"></time><article><p>Foo Inc. agreed to buy Bar LLC for $1 billion.</p></article></body></html>`

	a, err := n.Normalize(rawDoc("example", page))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !a.RequiresReview {
		t.Error("Expected review for an unparseable date")
	}
	if len(a.ScrapingErrors) != 1 || !strings.Contains(a.ScrapingErrors[0], "sometime soon") {
		t.Errorf("Expected the raw date in scraping errors, got %q", a.ScrapingErrors)
	}
}

func TestNormalize_SourceSelectors(t *testing.T) {
	src := model.SourceConfig{
		ID:   "wire",
		Name: "Deal Wire",
		Selectors: model.Selectors{
			Title: ".headline",
			Body:  ".story",
			Date:  ".stamp",
		},
	}
	n := NewNormalizer([]model.SourceConfig{src})
	page := `<html><body>
		<div class="headline">Acme Corp buys Roadrunner Ltd</div>
		<span class="stamp">March 4, 2025</span>
		<div class="story"><p>Acme Corp agreed to buy Roadrunner Ltd for $80 million.</p><p>The deal closed on Tuesday afternoon.</p></div>
		<article><p>Unrelated teaser text that should not be read.</p></article>
	</body></html>`

	a, err := n.Normalize(rawDoc("wire", page))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if a.Title != "Acme Corp buys Roadrunner Ltd" {
		t.Errorf("Expected configured title, got %q", a.Title)
	}
	if len(a.Paragraphs) != 2 || strings.Contains(a.Body, "teaser") {
		t.Errorf("Expected story paragraphs only, got %q", a.Paragraphs)
	}
	if a.PublishedAt == nil || !a.PublishedAt.Equal(time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected 2025-03-04, got %v", a.PublishedAt)
	}
}

func TestNormalize_SelectorMissFallsBackToGeneric(t *testing.T) {
	src := model.SourceConfig{ID: "wire", Selectors: model.Selectors{Body: ".story"}}
	n := NewNormalizer([]model.SourceConfig{src})

	a, err := n.Normalize(rawDoc("wire", genericPage))
	if err != nil {
		t.Fatalf("Expected generic fallback to succeed, got %v", err)
	}
	if len(a.Paragraphs) != 2 {
		t.Errorf("Expected generic paragraphs, got %q", a.Paragraphs)
	}
	if len(a.ScrapingErrors) == 0 || !strings.Contains(a.ScrapingErrors[0], "selector:wire") {
		t.Errorf("Expected selector miss to be recorded, got %q", a.ScrapingErrors)
	}
}

func TestNormalize_Paywall(t *testing.T) {
	n := NewNormalizer(nil)
	page := `<html><body><article><p>Foo Inc. agreed to buy Bar LLC for $1 billion.</p><div class="note">Subscribe to continue reading.</div></article></body></html>`

	a, err := n.Normalize(rawDoc("example", page))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !a.Paywalled {
		t.Error("Expected paywall to be flagged")
	}
	if a.Body == "" {
		t.Error("Expected paywalled article to keep its body")
	}
}

func TestNormalize_NoBody(t *testing.T) {
	n := NewNormalizer(nil)

	a, err := n.Normalize(rawDoc("example", `<html><body><nav>Home</nav></body></html>`))
	if !errors.Is(err, ErrNoBody) {
		t.Fatalf("Expected ErrNoBody, got %v", err)
	}
	if a == nil || len(a.ScrapingErrors) == 0 {
		t.Errorf("Expected partial article with scraping errors, got %+v", a)
	}

	if _, err := n.Normalize(nil); !errors.Is(err, ErrNilDocument) {
		t.Errorf("Expected ErrNilDocument, got %v", err)
	}
}
