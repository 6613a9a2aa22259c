package util

import "testing"

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"HTTPS://Example.COM/deals/", "https://example.com/deals"},
		{"https://example.com/a?utm_source=x&b=2&a=1#frag", "https://example.com/a?a=1&b=2"},
		{"https://example.com/", "https://example.com/"},
		{"http://127.0.0.1:8080/x?fbclid=1", "http://127.0.0.1:8080/x"},
	}
	for _, tt := range tests {
		got, err := NormalizeURL(tt.in)
		if err != nil {
			t.Fatalf("NormalizeURL(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := NormalizeURL("/relative/only"); err == nil {
		t.Error("expected error for relative URL")
	}
}

func TestResolveURL(t *testing.T) {
	base := "https://news.example.com/markets/page/2"
	got, err := ResolveURL(base, "../deals/techcorp-buys-datasoft?utm_medium=rss")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://news.example.com/markets/deals/techcorp-buys-datasoft" {
		t.Errorf("unexpected resolution: %s", got)
	}

	for _, bad := range []string{"", "#top", "mailto:desk@example.com", "javascript:void(0)"} {
		if _, err := ResolveURL(base, bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestSameSite(t *testing.T) {
	bases := []string{"https://www.example.com/news"}
	if !SameSite("https://example.com/a", bases) {
		t.Error("expected apex to match www base")
	}
	if !SameSite("https://markets.example.com/a", bases) {
		t.Error("expected subdomain to match")
	}
	if SameSite("https://notexample.com/a", bases) {
		t.Error("expected different domain not to match")
	}
}
