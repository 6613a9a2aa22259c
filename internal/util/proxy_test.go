package util

import (
	"net/http"
	"testing"
)

func TestNewProxyFunc(t *testing.T) {
	proxy := NewProxyFunc("http://proxy:3128", "http://secure-proxy:3128", "internal.example, .corp")

	tests := []struct {
		url  string
		want string
	}{
		{"http://news.example.com/a", "http://proxy:3128"},
		{"https://news.example.com/a", "http://secure-proxy:3128"},
		{"https://internal.example/a", ""},
		{"https://wiki.corp/a", ""},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodGet, tt.url, nil)
		got, err := proxy(req)
		if err != nil {
			t.Fatal(err)
		}
		gotStr := ""
		if got != nil {
			gotStr = got.String()
		}
		if gotStr != tt.want {
			t.Errorf("%s: got %q, want %q", tt.url, gotStr, tt.want)
		}
	}
}
