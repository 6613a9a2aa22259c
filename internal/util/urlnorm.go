package util

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var errMissingSchemeOrHost = errors.New("normalize url: missing scheme or host")

// trackingParams are analytics parameters that never change page content
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"fbclid":       {},
	"gclid":        {},
	"mc_cid":       {},
	"mc_eid":       {},
}

// NormalizeURL makes equivalent article URLs compare equal: lowercase
// scheme and host, no fragment, no tracking params, sorted query and no
// trailing slash.
func NormalizeURL(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("normalize url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", errMissingSchemeOrHost
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawFragment = ""

	query := parsed.Query()
	for key := range query {
		if _, drop := trackingParams[strings.ToLower(key)]; drop {
			query.Del(key)
		}
	}
	parsed.RawQuery = sortedQuery(query)

	if len(parsed.Path) > 1 {
		parsed.Path = strings.TrimRight(parsed.Path, "/")
		parsed.RawPath = ""
	}

	return parsed.String(), nil
}

func sortedQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vals := q[k]
		sort.Strings(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// ResolveURL resolves href against base and normalizes the result.
// Non-HTTP links (mailto:, javascript:) are rejected.
func ResolveURL(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", fmt.Errorf("resolve url: empty or fragment-only href")
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("resolve url: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("resolve url: %w", err)
	}

	abs := baseURL.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", fmt.Errorf("resolve url: unsupported scheme %q", abs.Scheme)
	}
	return NormalizeURL(abs.String())
}

// Host returns the lowercased hostname of rawURL without port
func Host(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// SameSite reports whether rawURL's host equals, or is a subdomain of, any
// host of bases
func SameSite(rawURL string, bases []string) bool {
	host := Host(rawURL)
	if host == "" {
		return false
	}
	for _, b := range bases {
		bh := strings.TrimPrefix(Host(b), "www.")
		if bh == "" {
			continue
		}
		if host == bh || strings.HasSuffix(host, "."+bh) {
			return true
		}
	}
	return false
}
