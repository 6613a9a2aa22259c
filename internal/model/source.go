package model

import "time"

// SourceMode selects how a source's listing pages are walked
type SourceMode string

const (
	ModeStatic   SourceMode = "static"    // Numbered / rel=next pagination
	ModeLoadMore SourceMode = "load_more" // Incremental-load endpoint with page cursor
	ModeHeadless SourceMode = "headless"  // Script-rendered listing via the render service
)

// SourceConfig describes one external source. Immutable after load.
type SourceConfig struct {
	ID             string          `yaml:"id" mapstructure:"id" json:"id"`
	Name           string          `yaml:"name" mapstructure:"name" json:"name"`
	BaseURLs       []string        `yaml:"base_urls" mapstructure:"base_urls" json:"base_urls"`
	Enabled        *bool           `yaml:"enabled,omitempty" mapstructure:"enabled" json:"enabled,omitempty"` // nil means enabled
	Mode           SourceMode      `yaml:"mode" mapstructure:"mode" json:"mode"`
	RateLimit      RateLimit       `yaml:"rate_limit" mapstructure:"rate_limit" json:"rate_limit"`
	MaxConcurrency int             `yaml:"max_concurrency" mapstructure:"max_concurrency" json:"max_concurrency"`
	Backoff        BackoffPolicy   `yaml:"backoff" mapstructure:"backoff" json:"backoff"`
	RespectRobots  bool            `yaml:"respect_robots" mapstructure:"respect_robots" json:"respect_robots"`
	MaxItems       int             `yaml:"max_items,omitempty" mapstructure:"max_items" json:"max_items,omitempty"` // 0 = global cap
	FeedURL        string          `yaml:"feed_url,omitempty" mapstructure:"feed_url" json:"feed_url,omitempty"`
	Selectors      Selectors       `yaml:"selectors" mapstructure:"selectors" json:"selectors"`
	LoadMore       *LoadMoreConfig `yaml:"load_more,omitempty" mapstructure:"load_more" json:"load_more,omitempty"`
}

// IsEnabled reports whether the source participates in runs
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// RateLimit is a request budget per interval
type RateLimit struct {
	Requests int           `yaml:"requests" mapstructure:"requests" json:"requests"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval" json:"interval"`
}

// Spacing returns the minimum time between two admissions, rounded up so
// that Requests admissions never fit inside one Interval
func (r RateLimit) Spacing() time.Duration {
	if r.Requests <= 1 {
		return r.Interval
	}
	n := time.Duration(r.Requests)
	return (r.Interval + n - 1) / n
}

// BackoffPolicy controls retries of throttled responses
type BackoffPolicy struct {
	Base        time.Duration `yaml:"base" mapstructure:"base" json:"base"`
	Factor      float64       `yaml:"factor" mapstructure:"factor" json:"factor"`
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts" json:"max_attempts"`
}

// Delay returns the wait before the given retry (attempt 1 is the first retry)
func (b BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := float64(b.Base)
	for i := 1; i < attempt; i++ {
		d *= b.Factor
	}
	return time.Duration(d)
}

// Selectors are CSS selectors used by the walker and the article adapters
type Selectors struct {
	ListingLink string `yaml:"listing_link,omitempty" mapstructure:"listing_link" json:"listing_link,omitempty"`
	NextLink    string `yaml:"next_link,omitempty" mapstructure:"next_link" json:"next_link,omitempty"`
	Title       string `yaml:"title,omitempty" mapstructure:"title" json:"title,omitempty"`
	Body        string `yaml:"body,omitempty" mapstructure:"body" json:"body,omitempty"`
	Author      string `yaml:"author,omitempty" mapstructure:"author" json:"author,omitempty"`
	Date        string `yaml:"date,omitempty" mapstructure:"date" json:"date,omitempty"`
}

// LoadMoreConfig describes a site's incremental-load endpoint
type LoadMoreConfig struct {
	Endpoint     string `yaml:"endpoint" mapstructure:"endpoint" json:"endpoint"`
	Method       string `yaml:"method,omitempty" mapstructure:"method" json:"method,omitempty"` // POST (form) or GET (query)
	Action       string `yaml:"action,omitempty" mapstructure:"action" json:"action,omitempty"` // e.g. load_more_posts
	PageParam    string `yaml:"page_param,omitempty" mapstructure:"page_param" json:"page_param,omitempty"`
	StartPage    int    `yaml:"start_page,omitempty" mapstructure:"start_page" json:"start_page,omitempty"`
	ItemSelector string `yaml:"item_selector,omitempty" mapstructure:"item_selector" json:"item_selector,omitempty"`
}

// JobKind distinguishes listing traversal from terminal documents
type JobKind string

const (
	JobListing  JobKind = "listing"
	JobLoadMore JobKind = "load_more"
	JobArticle  JobKind = "article"
)

// FetchJob is one unit of fetch work. Consumed exactly once per attempt.
type FetchJob struct {
	SourceID    string    `json:"source_id"`
	URL         string    `json:"url"`
	Kind        JobKind   `json:"kind"`
	Attempt     int       `json:"attempt"`
	Page        int       `json:"page,omitempty"` // Pagination cursor for listing / load_more jobs
	ScheduledAt time.Time `json:"scheduled_at"`
}
