// Package validate checks configuration before a run and probes configured
// sources for reachability.
package validate

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ppiankov/mergertracker/internal/model"
)

// MaxConcurrency is the largest per-source fetch concurrency accepted
const MaxConcurrency = 8

var (
	ErrNoSources      = errors.New("no enabled sources")
	ErrMissingID      = errors.New("source id is required")
	ErrDuplicateID    = errors.New("duplicate source id")
	ErrBadURL         = errors.New("invalid URL")
	ErrBadRate        = errors.New("invalid rate limit")
	ErrBadConcurrency = errors.New("invalid max_concurrency")
	ErrBadBackoff     = errors.New("invalid backoff")
	ErrUnknownMode    = errors.New("unknown source mode")
	ErrBadStore       = errors.New("invalid store settings")
)

// Config returns every problem in cfg joined into one error, or nil
func Config(cfg model.Config) error {
	errs := []error{Sources(cfg.Sources)}

	switch cfg.Store.Driver {
	case "", "memory", "sqlite3", "postgres":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown driver %q", ErrBadStore, cfg.Store.Driver))
	}
	if cfg.Store.Driver == "postgres" && cfg.Store.DSN == "" {
		errs = append(errs, fmt.Errorf("%w: postgres requires a dsn", ErrBadStore))
	}
	switch cfg.Store.Events {
	case "", "local":
	case "redis":
		if cfg.Store.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("%w: redis events require redis_addr", ErrBadStore))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown events backend %q", ErrBadStore, cfg.Store.Events))
	}
	if cfg.Store.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("%w: batch_size %d", ErrBadStore, cfg.Store.BatchSize))
	}

	if cfg.Run.ExtractWorkers < 0 || cfg.Run.ExtractQueueSize < 0 || cfg.Run.MaxItemsPerSource < 0 {
		errs = append(errs, errors.New("run sizes must not be negative"))
	}
	if cfg.HTTP.RenderEndpoint != "" {
		if err := checkURL(cfg.HTTP.RenderEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("http.render_endpoint: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Sources validates the enabled sources
func Sources(sources []model.SourceConfig) error {
	var errs []error
	ids := make(map[string]bool, len(sources))
	enabled := 0

	for i, src := range sources {
		name := src.ID
		if name == "" {
			name = fmt.Sprintf("#%d", i)
			errs = append(errs, fmt.Errorf("source %s: %w", name, ErrMissingID))
		} else if ids[src.ID] {
			errs = append(errs, fmt.Errorf("source %q: %w", src.ID, ErrDuplicateID))
		}
		ids[src.ID] = true

		if !src.IsEnabled() {
			continue
		}
		enabled++

		for _, err := range checkSource(src) {
			errs = append(errs, fmt.Errorf("source %q: %w", name, err))
		}
	}

	if enabled == 0 {
		errs = append(errs, ErrNoSources)
	}
	return errors.Join(errs...)
}

func checkSource(src model.SourceConfig) []error {
	var errs []error

	if len(src.BaseURLs) == 0 {
		errs = append(errs, fmt.Errorf("%w: base_urls is empty", ErrBadURL))
	}
	for _, u := range src.BaseURLs {
		if err := checkURL(u); err != nil {
			errs = append(errs, err)
		}
	}
	if src.FeedURL != "" {
		if err := checkURL(src.FeedURL); err != nil {
			errs = append(errs, fmt.Errorf("feed_url: %w", err))
		}
	}

	if src.RateLimit.Requests < 1 || src.RateLimit.Interval <= 0 {
		errs = append(errs, fmt.Errorf("%w: %d per %s", ErrBadRate, src.RateLimit.Requests, src.RateLimit.Interval))
	}
	if src.MaxConcurrency < 1 || src.MaxConcurrency > MaxConcurrency {
		errs = append(errs, fmt.Errorf("%w: %d (want 1-%d)", ErrBadConcurrency, src.MaxConcurrency, MaxConcurrency))
	}
	if src.Backoff.Base < 0 || src.Backoff.MaxAttempts < 0 || (src.Backoff.Factor != 0 && src.Backoff.Factor < 1) {
		errs = append(errs, fmt.Errorf("%w: base %s factor %g attempts %d",
			ErrBadBackoff, src.Backoff.Base, src.Backoff.Factor, src.Backoff.MaxAttempts))
	}

	switch src.Mode {
	case "", model.ModeStatic, model.ModeHeadless:
	case model.ModeLoadMore:
		if src.LoadMore == nil || src.LoadMore.Endpoint == "" {
			errs = append(errs, fmt.Errorf("%w: load_more mode requires load_more.endpoint", ErrBadURL))
		} else if err := checkURL(src.LoadMore.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("load_more.endpoint: %w", err))
		}
		if src.LoadMore != nil {
			switch strings.ToUpper(src.LoadMore.Method) {
			case "", "GET", "POST":
			default:
				errs = append(errs, fmt.Errorf("load_more.method %q: %w", src.LoadMore.Method, ErrUnknownMode))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownMode, src.Mode))
	}

	return errs
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrBadURL, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w %q: want an absolute http(s) URL", ErrBadURL, raw)
	}
	return nil
}
