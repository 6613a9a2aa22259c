package fetch

import (
	"net/http"
	"strings"
	"sync"
)

// Identity is a browser persona: a user agent plus the header set that
// browser actually sends, so the two never disagree
type Identity struct {
	UserAgent string
	Header    http.Header
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// DefaultIdentities returns the built-in persona list
func DefaultIdentities() []Identity {
	ids := make([]Identity, 0, len(defaultUserAgents))
	for _, ua := range defaultUserAgents {
		ids = append(ids, NewIdentity(ua))
	}
	return ids
}

// NewIdentity derives a consistent header set from a user agent
func NewIdentity(ua string) Identity {
	h := http.Header{}
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Upgrade-Insecure-Requests", "1")

	switch {
	case strings.Contains(ua, "Firefox/"):
		h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
		h.Set("Accept-Language", "en-US,en;q=0.5")
		h.Set("DNT", "1")
	case strings.Contains(ua, "Chrome/"):
		h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
		h.Set("Sec-Fetch-Dest", "document")
		h.Set("Sec-Fetch-Mode", "navigate")
		h.Set("Sec-Fetch-Site", "none")
		h.Set("Sec-Fetch-User", "?1")
	default:
		h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}

	return Identity{UserAgent: ua, Header: h}
}

// Apply sets the identity's headers on req
func (i Identity) Apply(req *http.Request) {
	for k, vals := range i.Header {
		req.Header[k] = append([]string(nil), vals...)
	}
	req.Header.Set("User-Agent", i.UserAgent)
}

// IdentityPool hands out a sticky identity per source session and rotates
// it every rotateEvery requests or on Swap
type IdentityPool struct {
	mu          sync.Mutex
	identities  []Identity
	current     int
	used        int
	rotateEvery int
}

// NewIdentityPool creates a pool starting at offset start
func NewIdentityPool(identities []Identity, rotateEvery, start int) *IdentityPool {
	if len(identities) == 0 {
		identities = DefaultIdentities()
	}
	if start < 0 {
		start = -start
	}
	return &IdentityPool{
		identities:  identities,
		current:     start % len(identities),
		rotateEvery: rotateEvery,
	}
}

// Next returns the identity for the next request
func (p *IdentityPool) Next() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rotateEvery > 0 && p.used >= p.rotateEvery {
		p.advance()
	}
	p.used++
	return p.identities[p.current]
}

// Swap abandons the current identity, e.g. after a timeout
func (p *IdentityPool) Swap() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.advance()
	return p.identities[p.current]
}

func (p *IdentityPool) advance() {
	p.current = (p.current + 1) % len(p.identities)
	p.used = 0
}
