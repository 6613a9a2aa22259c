package walker

import (
	"reflect"
	"testing"

	"github.com/ppiankov/mergertracker/internal/model"
)

const listingHTML = `<html><body>
<div class="story"><a href="/deals/techcorp-buys-datasoft">TechCorp</a></div>
<div class="story"><a href="/deals/techcorp-buys-datasoft#comments">Comments</a></div>
<div class="story"><a href="/2024/03/01/acme-merger?utm_source=home">Acme</a></div>
<a href="/about">About</a>
<a href="https://other.com/deals/elsewhere">Offsite</a>
<a href="/static/deal-logo.png">Logo</a>
<nav><a href="/deals?page=2">2</a><a href="/deals?page=3">3</a></nav>
</body></html>`

func staticSource() model.SourceConfig {
	src := model.DefaultSource()
	src.ID = "wire"
	src.BaseURLs = []string{"https://news.example.com"}
	return src
}

func listingDoc(body string) *model.RawDocument {
	return &model.RawDocument{
		URL:      "https://news.example.com/deals",
		SourceID: "wire",
		Kind:     model.JobListing,
		Status:   200,
		Body:     []byte(body),
	}
}

func TestDiscover_StaticListing(t *testing.T) {
	w := New(0)
	d, err := w.Discover(staticSource(), listingDoc(listingHTML), 0)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	want := []string{
		"https://news.example.com/deals/techcorp-buys-datasoft",
		"https://news.example.com/2024/03/01/acme-merger",
	}
	if !reflect.DeepEqual(d.Articles, want) {
		t.Errorf("Articles = %v, want %v", d.Articles, want)
	}
	if d.Next == nil {
		t.Fatal("Expected a next page")
	}
	if d.Next.URL != "https://news.example.com/deals?page=2" || d.Next.Page != 2 || d.Next.Kind != model.JobListing {
		t.Errorf("Unexpected next job: %+v", d.Next)
	}
}

func TestDiscover_RelNextPreferred(t *testing.T) {
	html := `<html><head><link rel="next" href="/deals/page/5"></head><body>
<a href="/deals/alpha-acquires-beta">a</a>
<a href="/deals?page=2">2</a>
</body></html>`
	d, err := New(0).Discover(staticSource(), listingDoc(html), 0)
	if err != nil {
		t.Fatal(err)
	}
	if d.Next == nil || d.Next.URL != "https://news.example.com/deals/page/5" {
		t.Errorf("Expected rel=next link, got %+v", d.Next)
	}
}

func TestDiscover_ConfiguredSelectors(t *testing.T) {
	html := `<html><body>
<ul class="river"><li><a href="/news/a">A</a></li><li><a href="/news/b">B</a></li></ul>
<a href="/deals/not-in-river-story-here">x</a>
<a class="older" href="/news?p=2">Older</a>
</body></html>`
	src := staticSource()
	src.Selectors.ListingLink = ".river a"
	src.Selectors.NextLink = "a.older"

	d, err := New(0).Discover(src, listingDoc(html), 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"https://news.example.com/news/a", "https://news.example.com/news/b"}
	if !reflect.DeepEqual(d.Articles, want) {
		t.Errorf("Articles = %v, want %v", d.Articles, want)
	}
	if d.Next == nil || d.Next.URL != "https://news.example.com/news?p=2" {
		t.Errorf("Unexpected next: %+v", d.Next)
	}
}

func TestDiscover_EmptyListingStops(t *testing.T) {
	d, err := New(0).Discover(staticSource(), listingDoc(`<html><body><a href="/deals?page=2">2</a></body></html>`), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Articles) != 0 || d.Next != nil {
		t.Errorf("Expected nothing, got %+v", d)
	}
}

func TestDiscover_Idempotent(t *testing.T) {
	w := New(0)
	doc := listingDoc(listingHTML)
	first, err := w.Discover(staticSource(), doc, 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := w.Discover(staticSource(), doc, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Discover not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestDiscover_ItemCap(t *testing.T) {
	d, err := New(3).Discover(staticSource(), listingDoc(listingHTML), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Articles) != 1 {
		t.Errorf("Expected 1 article under the cap, got %d", len(d.Articles))
	}
	if d.Next != nil {
		t.Errorf("Expected traversal to stop at the cap")
	}

	src := staticSource()
	src.MaxItems = 1
	d, err = New(100).Discover(src, listingDoc(listingHTML), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Articles) != 1 || d.Next != nil {
		t.Errorf("Source cap not applied: %+v", d)
	}
}

func loadMoreSource() model.SourceConfig {
	src := staticSource()
	src.Mode = model.ModeLoadMore
	src.LoadMore = &model.LoadMoreConfig{
		Endpoint:     "https://news.example.com/wp-admin/admin-ajax.php",
		Action:       "load_more_posts",
		ItemSelector: ".masonry-item",
	}
	return src
}

func TestDiscover_LoadMoreInitialPage(t *testing.T) {
	html := `<html><body>
<div class="masonry-item"><a href="/insights/techcorp-to-acquire-datasoft">x</a></div>
</body></html>`
	d, err := New(0).Discover(loadMoreSource(), listingDoc(html), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Articles) != 1 {
		t.Errorf("Expected 1 article, got %v", d.Articles)
	}
	if d.Next == nil || d.Next.Kind != model.JobLoadMore || d.Next.Page != 2 {
		t.Fatalf("Expected load-more job for page 2, got %+v", d.Next)
	}
	if d.Next.URL != "https://news.example.com/wp-admin/admin-ajax.php" {
		t.Errorf("Unexpected endpoint: %s", d.Next.URL)
	}
}

func TestDiscover_LoadMoreContinues(t *testing.T) {
	body := `<div class="masonry-item"><a href="/insights/a-buys-b-for-cash">a</a></div>
<div class="masonry-item"><a href="https://news.example.com/insights/c-merges-with-d">c</a></div>`
	doc := &model.RawDocument{URL: "https://news.example.com/wp-admin/admin-ajax.php", Kind: model.JobLoadMore, Page: 3, Body: []byte(body)}

	d, err := New(0).Discover(loadMoreSource(), doc, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Articles) != 2 || d.Items != 2 {
		t.Errorf("Expected 2 articles, got %+v", d)
	}
	if d.Next == nil || d.Next.Page != 4 {
		t.Errorf("Expected page 4 next, got %+v", d.Next)
	}
}

func TestDiscover_LoadMoreZeroItemsStops(t *testing.T) {
	bodies := map[string]string{
		"empty":          "",
		"whitespace":     "  \n ",
		"no items":       `<div class="no-results">Nothing more</div>`,
		"json empty":     `{"html": ""}`,
		"json no fields": `{"success": true}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			doc := &model.RawDocument{URL: "https://news.example.com/wp-admin/admin-ajax.php", Kind: model.JobLoadMore, Page: 7, Body: []byte(body)}
			d, err := New(0).Discover(loadMoreSource(), doc, 30)
			if err != nil {
				t.Fatal(err)
			}
			if d.Next != nil {
				t.Errorf("Expected no further request, got %+v", d.Next)
			}
			if len(d.Articles) != 0 {
				t.Errorf("Expected no articles, got %v", d.Articles)
			}
		})
	}
}

func TestDiscover_LoadMoreJSONFragment(t *testing.T) {
	body := `{"html": "<div class=\"masonry-item\"><a href=\"/insights/x-acquires-y\">x</a></div>"}`
	doc := &model.RawDocument{URL: "https://news.example.com/wp-admin/admin-ajax.php", Kind: model.JobLoadMore, Page: 2, Body: []byte(body)}
	d, err := New(0).Discover(loadMoreSource(), doc, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Articles) != 1 || d.Articles[0] != "https://news.example.com/insights/x-acquires-y" {
		t.Errorf("Unexpected articles: %v", d.Articles)
	}
}

func TestDiscover_Feed(t *testing.T) {
	rss := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Deals</title>
<item><title>A</title><link>https://news.example.com/deals/a-acquires-b?utm_source=rss</link></item>
<item><title>A again</title><link>https://news.example.com/deals/a-acquires-b</link></item>
<item><title>Guid only</title><guid>https://news.example.com/deals/c-merges-d</guid></item>
</channel></rss>`
	doc := listingDoc(rss)
	doc.Via = model.ViaFeed

	d, err := New(0).Discover(staticSource(), doc, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"https://news.example.com/deals/a-acquires-b", "https://news.example.com/deals/c-merges-d"}
	if !reflect.DeepEqual(d.Articles, want) {
		t.Errorf("Articles = %v, want %v", d.Articles, want)
	}
	if d.Next != nil {
		t.Errorf("Feeds have no next page")
	}
}

func TestLooksLikeArticle(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://x.com/deals/techcorp", true},
		{"https://x.com/2024/03/01/story", true},
		{"https://x.com/news/techcorp-agrees-to-buy-datasoft", true},
		{"https://x.com/about", false},
		{"https://x.com/", false},
		{"https://x.com/img/deal.png", false},
		{"https://x.com/news/m-a/overview", true},
	}
	for _, tt := range tests {
		if got := LooksLikeArticle(tt.url); got != tt.want {
			t.Errorf("LooksLikeArticle(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
