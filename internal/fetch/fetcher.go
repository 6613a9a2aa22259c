package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/mergertracker/internal/cache"
	"github.com/ppiankov/mergertracker/internal/logging"
	"github.com/ppiankov/mergertracker/internal/model"
	"github.com/ppiankov/mergertracker/internal/util"
	"github.com/ppiankov/mergertracker/internal/worker"
)

// fetchSleepFunc waits between retries; tests replace it
var fetchSleepFunc = func(ctx context.Context, d time.Duration) error {
	return worker.RealClock{}.Sleep(ctx, d)
}

// maxRetryAfter caps how long a server-supplied Retry-After may stretch a backoff
const maxRetryAfter = 5 * time.Minute

// Observer receives one call per request issued, for metrics
type Observer func(sourceID string, via model.FetchVia, status int, elapsed time.Duration)

// Options wires optional collaborators into a Fetcher
type Options struct {
	Renderer   Renderer
	Cache      cache.Cache
	CacheTTL   time.Duration
	Robots     *util.RobotsChecker
	Identities []Identity
	Transport  http.RoundTripper
	Logger     logging.Logger
	Observe    Observer
}

// Fetcher turns FetchJobs into RawDocuments. Every network attempt holds a
// RateGate permit for its source.
type Fetcher struct {
	cfg      model.HTTPConfig
	sources  map[string]model.SourceConfig
	sessions map[string]*session
	gates    *worker.Registry
	renderer Renderer
	robots   *util.RobotsChecker
	cache    cache.Cache
	cacheTTL time.Duration
	logger   logging.Logger
	observe  Observer
}

// NewFetcher creates a fetcher with one session per source
func NewFetcher(cfg model.HTTPConfig, sources []model.SourceConfig, gates *worker.Registry, opts Options) (*Fetcher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 4_000_000
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Cache == nil {
		opts.Cache = cache.NopCache{}
	}
	if opts.Transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.Proxy = util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)
		opts.Transport = t
	}

	f := &Fetcher{
		cfg:      cfg,
		sources:  make(map[string]model.SourceConfig, len(sources)),
		sessions: make(map[string]*session, len(sources)),
		gates:    gates,
		renderer: opts.Renderer,
		robots:   opts.Robots,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		logger:   opts.Logger,
		observe:  opts.Observe,
	}

	for _, src := range sources {
		sess, err := newSession(src, opts.Transport, cfg, opts.Identities)
		if err != nil {
			return nil, err
		}
		f.sources[src.ID] = src
		f.sessions[src.ID] = sess
	}

	return f, nil
}

// Prepare loads robots.txt for every source that honors it and slows the
// source's gate down to any declared crawl-delay
func (f *Fetcher) Prepare(ctx context.Context) {
	if f.robots == nil {
		return
	}

	ids := make([]string, 0, len(f.sources))
	for id := range f.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		src := f.sources[id]
		if !src.RespectRobots {
			continue
		}
		for _, base := range src.BaseURLs {
			verdict, err := f.robots.Check(ctx, base)
			if err != nil {
				f.logger.Warn("robots prefetch failed", logging.String("source", id), logging.String("url", base), logging.Err(err))
				continue
			}
			if !verdict.Reachable {
				f.logger.Debug("robots.txt unreachable, allowing all", logging.String("source", id), logging.String("url", base))
			}
			if verdict.CrawlDelay <= 0 {
				continue
			}
			if gate, ok := f.gates.Gate(id); ok {
				gate.SetMinInterval(verdict.CrawlDelay)
				f.logger.Info("applied robots crawl-delay", logging.String("source", id), logging.Duration("delay", verdict.CrawlDelay))
			}
		}
	}
}

// Fetch retrieves the document for job
func (f *Fetcher) Fetch(ctx context.Context, job model.FetchJob) (*model.RawDocument, error) {
	src, ok := f.sources[job.SourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, job.SourceID)
	}
	sess := f.sessions[job.SourceID]

	if job.Kind == model.JobArticle {
		if doc, ok := f.fromCache(job); ok {
			return doc, nil
		}
	}

	if src.RespectRobots && f.robots != nil && job.Kind != model.JobLoadMore {
		verdict, err := f.robots.Check(ctx, job.URL)
		if err == nil && !verdict.Allowed {
			return nil, &Error{Kind: KindRobots, URL: job.URL, Err: ErrRobotsDisallowed}
		}
	}

	if src.Mode == model.ModeHeadless && job.Kind != model.JobLoadMore && f.renderer != nil {
		doc, err := f.render(ctx, src, sess, job)
		if err == nil {
			f.remember(job, doc)
			return doc, nil
		}
		var fe *Error
		if errors.As(err, &fe) {
			return nil, err
		}
		f.logger.Warn("headless render failed, falling back to static fetch",
			logging.String("source", src.ID), logging.String("url", job.URL), logging.Err(err))
	}

	doc, err := f.fetchStatic(ctx, src, sess, job, job.URL, model.ViaStatic)
	if err != nil && job.Kind == model.JobListing && src.FeedURL != "" && feedFallback(err) {
		f.logger.Info("listing unavailable, reading feed instead",
			logging.String("source", src.ID), logging.String("feed", src.FeedURL), logging.Err(err))
		if feedDoc, ferr := f.fetchStatic(ctx, src, sess, job, src.FeedURL, model.ViaFeed); ferr == nil {
			return feedDoc, nil
		}
	}
	if err != nil {
		return nil, err
	}

	f.remember(job, doc)
	return doc, nil
}

// remember caches article bodies; listings change too often to keep
func (f *Fetcher) remember(job model.FetchJob, doc *model.RawDocument) {
	if job.Kind != model.JobArticle {
		return
	}
	page := &cache.Page{URL: job.URL, FinalURL: doc.FinalURL, Body: doc.Body, FetchedAt: doc.FetchedAt}
	if err := f.cache.Put(page, f.cacheTTL); err != nil {
		f.logger.Debug("cache write failed", logging.String("url", job.URL), logging.Err(err))
	}
}

func (f *Fetcher) fromCache(job model.FetchJob) (*model.RawDocument, bool) {
	page, ok := f.cache.Get(job.URL)
	if !ok {
		return nil, false
	}
	return &model.RawDocument{
		URL:       job.URL,
		FinalURL:  page.FinalURL,
		SourceID:  job.SourceID,
		Kind:      job.Kind,
		Page:      job.Page,
		Status:    http.StatusOK,
		Body:      page.Body,
		FetchedAt: page.FetchedAt,
		Via:       model.ViaCache,
	}, true
}

// fetchStatic issues up to MaxAttempts requests, each under its own permit.
// 429 and 5xx back off exponentially; other 4xx are terminal.
func (f *Fetcher) fetchStatic(ctx context.Context, src model.SourceConfig, sess *session, job model.FetchJob, target string, via model.FetchVia) (*model.RawDocument, error) {
	attempts := src.Backoff.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr *Error
	for attempt := 1; attempt <= attempts; attempt++ {
		permit, err := f.gates.Acquire(ctx, src.ID)
		if err != nil {
			return nil, f.acquireError(target, attempt-1, err)
		}

		start := time.Now()
		doc, err := f.do(ctx, src, sess, job, target, sess.identities.Next())
		if err != nil {
			if ctx.Err() != nil {
				permit.Release(worker.OutcomeNeutral)
				return nil, &Error{Kind: KindCanceled, URL: target, Attempts: attempt, Err: ctx.Err()}
			}
			permit.Release(worker.OutcomeFailure)
			f.notify(src.ID, via, 0, time.Since(start))

			lastErr = &Error{Kind: KindNetwork, URL: target, Attempts: attempt, Err: err}
			if isTimeout(err) {
				sess.identities.Swap()
			}
			f.logger.Debug("fetch attempt failed", logging.String("source", src.ID), logging.String("url", target),
				logging.Int("attempt", attempt), logging.Err(err))
			continue
		}

		permit.Release(worker.OutcomeForStatus(doc.Status))
		f.notify(src.ID, via, doc.Status, time.Since(start))

		if doc.Status >= 200 && doc.Status < 300 {
			doc.Via = via
			return doc, nil
		}

		lastErr = &Error{
			Kind:     KindStatus,
			URL:      target,
			Status:   doc.Status,
			Attempts: attempt,
			Err:      &StatusError{Code: doc.Status, Status: http.StatusText(doc.Status)},
		}
		if IsTerminalStatus(doc.Status) || !IsBackoffStatus(doc.Status) {
			return nil, lastErr
		}

		if attempt < attempts {
			delay := src.Backoff.Delay(attempt)
			if ra := retryAfter(doc.Header); ra > delay {
				delay = min(ra, maxRetryAfter)
			}
			f.logger.Info("backing off", logging.String("source", src.ID), logging.String("url", target),
				logging.Int("status", doc.Status), logging.Duration("delay", delay))
			if err := fetchSleepFunc(ctx, delay); err != nil {
				return nil, &Error{Kind: KindCanceled, URL: target, Attempts: attempt, Err: err}
			}
		}
	}

	return nil, lastErr
}

// do performs one request under the hard per-attempt timeout
func (f *Fetcher) do(ctx context.Context, src model.SourceConfig, sess *session, job model.FetchJob, target string, ident Identity) (*model.RawDocument, error) {
	actx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := newRequest(actx, src, job, target, ident)
	if err != nil {
		return nil, err
	}

	resp, err := sess.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &model.RawDocument{
		URL:       job.URL,
		FinalURL:  resp.Request.URL.String(),
		SourceID:  src.ID,
		Kind:      job.Kind,
		Page:      job.Page,
		Status:    resp.StatusCode,
		Body:      body,
		Header:    resp.Header.Clone(),
		FetchedAt: time.Now(),
	}, nil
}

// newRequest builds a GET, or for load-more jobs the endpoint's form POST
// (or GET with query) carrying the page cursor
func newRequest(ctx context.Context, src model.SourceConfig, job model.FetchJob, target string, ident Identity) (*http.Request, error) {
	if job.Kind != model.JobLoadMore || src.LoadMore == nil {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		ident.Apply(req)
		return req, nil
	}

	lm := src.LoadMore
	param := lm.PageParam
	if param == "" {
		param = "page"
	}
	form := url.Values{}
	if lm.Action != "" {
		form.Set("action", lm.Action)
	}
	form.Set(param, strconv.Itoa(job.Page))

	var req *http.Request
	var err error
	if strings.EqualFold(lm.Method, http.MethodGet) {
		u, perr := url.Parse(target)
		if perr != nil {
			return nil, fmt.Errorf("create request: %w", perr)
		}
		q := u.Query()
		for k := range form {
			q.Set(k, form.Get(k))
		}
		u.RawQuery = q.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	ident.Apply(req)
	if req.Method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	return req, nil
}

// render fetches a headless page through the render service
func (f *Fetcher) render(ctx context.Context, src model.SourceConfig, sess *session, job model.FetchJob) (*model.RawDocument, error) {
	permit, err := f.gates.Acquire(ctx, src.ID)
	if err != nil {
		return nil, f.acquireError(job.URL, 0, err)
	}

	ident := sess.identities.Next()
	headers := make(map[string]string, len(ident.Header))
	for k := range ident.Header {
		headers[k] = ident.Header.Get(k)
	}

	rctx, cancel := context.WithTimeout(ctx, max(f.cfg.RenderTimeout, f.cfg.Timeout))
	defer cancel()

	// Wait for the part of the page the next stage reads
	waitFor := src.Selectors.ListingLink
	if job.Kind == model.JobArticle {
		waitFor = src.Selectors.Body
	}

	start := time.Now()
	body, err := f.renderer.Render(rctx, RenderRequest{
		URL:       job.URL,
		UserAgent: ident.UserAgent,
		Headers:   headers,
		WaitFor:   waitFor,
	})
	if err != nil {
		// The source was never reached, so the breaker learns nothing
		permit.Release(worker.OutcomeNeutral)
		if ctx.Err() != nil {
			return nil, &Error{Kind: KindCanceled, URL: job.URL, Attempts: 1, Err: ctx.Err()}
		}
		return nil, err
	}
	permit.Release(worker.OutcomeSuccess)
	f.notify(src.ID, model.ViaHeadless, http.StatusOK, time.Since(start))

	return &model.RawDocument{
		URL:       job.URL,
		FinalURL:  job.URL,
		SourceID:  src.ID,
		Kind:      job.Kind,
		Page:      job.Page,
		Status:    http.StatusOK,
		Body:      body,
		FetchedAt: time.Now(),
		Via:       model.ViaHeadless,
	}, nil
}

func (f *Fetcher) acquireError(target string, attempts int, err error) error {
	if errors.Is(err, worker.ErrPermissionDenied) {
		return &Error{Kind: KindDenied, URL: target, Attempts: attempts, Err: err}
	}
	return &Error{Kind: KindCanceled, URL: target, Attempts: attempts, Err: err}
}

func (f *Fetcher) notify(sourceID string, via model.FetchVia, status int, elapsed time.Duration) {
	if f.observe != nil {
		f.observe(sourceID, via, status, elapsed)
	}
}

// feedFallback reports whether a failed listing fetch may be served from the
// source's feed instead
func feedFallback(err error) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == KindStatus || fe.Kind == KindNetwork
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// retryAfter parses a delta-seconds Retry-After header
func retryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
