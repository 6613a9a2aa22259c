package util

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// RobotsVerdict is the robots.txt answer for one URL
type RobotsVerdict struct {
	Allowed    bool
	CrawlDelay time.Duration
	// Reachable is false when robots.txt could not be read and everything
	// is allowed by default
	Reachable bool
}

type robotsRules struct {
	data      *robotstxt.RobotsData
	reachable bool
}

// RobotsChecker reads robots.txt once per origin for the lifetime of a run.
// Concurrent checks against an unseen origin share one request.
type RobotsChecker struct {
	client *http.Client
	agent  string

	mu    sync.RWMutex
	rules map[string]robotsRules
	group singleflight.Group
}

// NewRobotsChecker creates a checker matching groups for agent. A nil
// client gets a plain client with the given timeout.
func NewRobotsChecker(client *http.Client, agent string, timeout time.Duration) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &RobotsChecker{
		client: client,
		agent:  NormalizeUserAgent(agent),
		rules:  make(map[string]robotsRules),
	}
}

// Check answers whether rawURL may be fetched and what crawl-delay the
// origin asks for
func (r *RobotsChecker) Check(ctx context.Context, rawURL string) (RobotsVerdict, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return RobotsVerdict{}, fmt.Errorf("parse URL: %w", err)
	}
	if u.Host == "" {
		return RobotsVerdict{}, fmt.Errorf("parse URL %q: missing host", rawURL)
	}

	rules := r.rulesFor(ctx, u.Scheme+"://"+u.Host)
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	v := RobotsVerdict{Allowed: rules.data.TestAgent(path, r.agent), Reachable: rules.reachable}
	if group := rules.data.FindGroup(r.agent); group != nil {
		v.CrawlDelay = group.CrawlDelay
	}
	return v, nil
}

func (r *RobotsChecker) rulesFor(ctx context.Context, origin string) robotsRules {
	r.mu.RLock()
	rules, ok := r.rules[origin]
	r.mu.RUnlock()
	if ok {
		return rules
	}

	v, _, _ := r.group.Do(origin, func() (any, error) {
		rules := robotsRules{reachable: true}
		data, err := r.fetch(ctx, origin+"/robots.txt")
		if err != nil {
			data, _ = robotstxt.FromStatusAndBytes(http.StatusNotFound, nil)
			rules.reachable = false
		}
		rules.data = data
		if ctx.Err() != nil {
			// A canceled caller says nothing about the origin; ask again next time
			return rules, nil
		}

		r.mu.Lock()
		r.rules[origin] = rules
		r.mu.Unlock()
		return rules, nil
	})
	return v.(robotsRules)
}

func (r *RobotsChecker) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.agent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("fetch robots.txt: status %d", resp.StatusCode)
	}
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}

// NormalizeUserAgent reduces a user agent to its product token for
// robots.txt group matching
func NormalizeUserAgent(ua string) string {
	if token, _, _ := strings.Cut(strings.TrimSpace(ua), " "); token != "" {
		name, _, _ := strings.Cut(token, "/")
		return name
	}
	return ""
}
