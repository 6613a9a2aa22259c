package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ppiankov/mergertracker/internal/dedup"
	"github.com/ppiankov/mergertracker/internal/fetch"
	"github.com/ppiankov/mergertracker/internal/logging"
	"github.com/ppiankov/mergertracker/internal/metrics"
	"github.com/ppiankov/mergertracker/internal/model"
	"github.com/ppiankov/mergertracker/internal/store"
	"github.com/ppiankov/mergertracker/internal/util"
	"github.com/ppiankov/mergertracker/internal/walker"
	"github.com/ppiankov/mergertracker/internal/worker"
)

// run is the state of one Pipeline.Run
type run struct {
	p       *Pipeline
	opts    RunOptions
	sources []model.SourceConfig
	logger  logging.Logger
	metrics *metrics.Metrics

	gates   *worker.Registry
	fetcher *fetch.Fetcher
	walker  *walker.Walker
	pool    *worker.Pool
	gateway *store.Gateway

	// storeCtx outlives the run ctx so fully processed records are persisted
	storeCtx context.Context

	mu       sync.Mutex // Guards summary, index merges and runDeals
	summary  *model.RunSummary
	index    *dedup.Index
	runDeals map[string]bool

	submitMu sync.Mutex // Held from the end of a merge until its records are submitted
}

// frontier is one source's traversal state
type frontier struct {
	src   model.SourceConfig
	queue *worker.Queue

	mu        sync.Mutex
	seen      int       // Article jobs enqueued
	giveUpAt  time.Time // End of the current breaker wait budget; zero while healthy
	abandoned bool
}

func (r *run) execute(ctx context.Context) *model.RunSummary {
	started := time.Now()
	r.logger.Info("run started",
		logging.Int("sources", len(r.sources)),
		logging.Bool("dry_run", r.opts.DryRun))

	r.seedIndex(ctx)

	var watcher *store.Watcher
	if !r.opts.DryRun {
		w, err := r.gateway.Watch(r.storeCtx)
		if err != nil {
			r.logger.Warn("change events unavailable", logging.Err(err))
		} else {
			watcher = w
		}
	}

	r.fetcher.Prepare(ctx)

	r.pool = worker.NewPool(r.p.cfg.Run.ExtractWorkers, r.p.cfg.Run.ExtractQueueSize, r.collect)
	r.pool.Start(ctx)

	seeds := r.seedsBySource()
	var wg sync.WaitGroup
	for _, src := range r.sources {
		wg.Go(func() { r.crawl(ctx, src, seeds[src.ID]) })
	}
	wg.Wait()

	// Fetching is over; let queued documents finish unless canceled
	r.pool.Close()
	r.metrics.SetExtractQueue(0)

	flushCtx, cancel := context.WithTimeout(r.storeCtx, flushTimeout)
	if _, err := r.gateway.Flush(flushCtx); err != nil {
		r.logger.Error("final flush failed", logging.Err(err))
	}
	cancel()

	if watcher != nil {
		r.summary.StoreEvents = watcher.Stop()
	}
	r.finish(ctx)

	result := "ok"
	switch {
	case r.summary.Canceled:
		result = "canceled"
	case r.summary.Tripped():
		result = "tripped"
	}
	r.metrics.ObserveRun(result, started, r.summary.FinishedAt)
	r.logger.Info("run finished",
		logging.String("result", result),
		logging.Duration("elapsed", time.Since(started)))
	return r.summary
}

// seedIndex loads recent stored deals so duplicates are detected across runs
func (r *run) seedIndex(ctx context.Context) {
	since := time.Now().Add(-dedupLookback)
	deals, err := r.p.deps.Store.Query(ctx, store.Filter{Since: &since, IncludeDuplicates: true})
	if err != nil {
		r.logger.Warn("could not seed dedup index", logging.Err(err))
		return
	}
	for _, d := range deals {
		r.index.Merge(d)
	}
	r.logger.Debug("dedup index seeded", logging.Int("deals", len(deals)))
}

// seedsBySource assigns extra listing URLs to sources, by explicit id or by
// matching the URL against each source's base URLs
func (r *run) seedsBySource() map[string][]string {
	out := make(map[string][]string)
	for _, seed := range r.opts.Seeds {
		matched := false
		for _, src := range r.sources {
			if seed.SourceID == src.ID || (seed.SourceID == "" && util.SameSite(seed.URL, src.BaseURLs)) {
				out[src.ID] = append(out[src.ID], seed.URL)
				matched = true
				break
			}
		}
		if !matched {
			r.logger.Warn("seed matches no selected source",
				logging.String("url", seed.URL), logging.String("source", seed.SourceID))
		}
	}
	return out
}

// crawl runs MaxConcurrency fetch workers over one source's frontier
func (r *run) crawl(ctx context.Context, src model.SourceConfig, seeds []string) {
	f := &frontier{src: src, queue: worker.NewQueue()}
	now := time.Now()
	for _, u := range append(append([]string(nil), src.BaseURLs...), seeds...) {
		f.queue.Push(model.FetchJob{SourceID: src.ID, URL: u, Kind: model.JobListing, Page: 1, ScheduledAt: now})
	}

	stop := context.AfterFunc(ctx, f.queue.Stop)
	defer stop()

	workers := max(src.MaxConcurrency, 1)
	var wg sync.WaitGroup
	for range workers {
		wg.Go(func() { r.fetchLoop(ctx, f) })
	}
	wg.Wait()

	r.logger.Debug("source traversal finished",
		logging.String("source", src.ID), logging.Int("articles", f.seen))
}

func (r *run) fetchLoop(ctx context.Context, f *frontier) {
	for {
		job, ok := f.queue.Pop()
		if !ok {
			return
		}
		for ctx.Err() == nil {
			retryAfter, denied := r.handle(ctx, f, job)
			if !denied || !r.awaitBreaker(ctx, f, job, retryAfter) {
				break
			}
		}
		f.queue.Done()
	}
}

// handle fetches one job. A job denied by the source's open breaker is not
// consumed; handle reports how long the breaker asked to wait instead.
func (r *run) handle(ctx context.Context, f *frontier, job model.FetchJob) (time.Duration, bool) {
	fctx, cancel := r.fetchContext(ctx)
	defer cancel()

	doc, err := r.fetcher.Fetch(fctx, job)
	if err != nil {
		var denied *worker.DeniedError
		if errors.As(err, &denied) {
			return denied.RetryAfter, true
		}
		r.fetchFailed(job, err)
		return 0, false
	}

	f.mu.Lock()
	f.giveUpAt = time.Time{}
	f.mu.Unlock()

	if job.Kind == model.JobArticle {
		r.enqueue(ctx, doc)
		return 0, false
	}
	r.discover(f, doc)
	return 0, false
}

// awaitBreaker parks a denied job until the breaker's cooldown has passed
// so the half-open probe can run. It returns false when the run is canceled
// or the source has been waiting longer than Breaker.MaxWait, in which case
// the source is abandoned for the rest of the run.
func (r *run) awaitBreaker(ctx context.Context, f *frontier, job model.FetchJob, retryAfter time.Duration) bool {
	clock := r.p.deps.Clock
	wait := max(retryAfter, minBreakerWait)
	budget := r.p.cfg.Breaker.MaxWait
	if budget <= 0 {
		budget = defaultBreakerWait
	}
	logger := r.logger.With(logging.String("source", f.src.ID), logging.String("url", job.URL))

	f.mu.Lock()
	if f.abandoned {
		f.mu.Unlock()
		return false
	}
	now := clock.Now()
	if f.giveUpAt.IsZero() {
		f.giveUpAt = now.Add(budget)
	}
	if now.Add(wait).After(f.giveUpAt) {
		f.abandoned = true
		f.mu.Unlock()

		logger.Warn("source abandoned, circuit breaker did not recover",
			logging.Duration("max_wait", budget))
		f.queue.Stop()
		r.mu.Lock()
		r.summary.Source(f.src.ID).Errors++
		r.mu.Unlock()
		r.metrics.Document(f.src.ID, "fetch_error")
		return false
	}
	f.mu.Unlock()

	logger.Info("source paused by circuit breaker", logging.Duration("retry_after", wait))
	if err := clock.Sleep(ctx, wait); err != nil {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.abandoned
}

// fetchContext detaches an in-flight fetch from run cancellation; the fetch
// is still abandoned one HTTP timeout after the run is canceled
func (r *run) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	grace := r.p.cfg.HTTP.Timeout
	stop := context.AfterFunc(ctx, func() {
		time.AfterFunc(grace, cancel)
	})
	return fctx, func() {
		stop()
		cancel()
	}
}

func (r *run) fetchFailed(job model.FetchJob, err error) {
	logger := r.logger.With(
		logging.String("source", job.SourceID),
		logging.String("url", job.URL),
		logging.String("kind", string(job.Kind)))

	var fe *fetch.Error
	if errors.As(err, &fe) {
		switch fe.Kind {
		case fetch.KindRobots:
			logger.Debug("skipped by robots.txt")
			return
		case fetch.KindCanceled:
			logger.Debug("fetch canceled")
			return
		default:
			logger.Warn("fetch failed", logging.Int("status", fe.Status), logging.Err(err))
		}
	} else {
		logger.Warn("fetch failed", logging.Err(err))
	}

	r.mu.Lock()
	r.summary.Source(job.SourceID).Errors++
	r.mu.Unlock()
	r.metrics.Document(job.SourceID, "fetch_error")
}

// discover turns a listing document into article jobs and the next listing
// request, honoring the per-source item cap
func (r *run) discover(f *frontier, doc *model.RawDocument) {
	f.mu.Lock()
	seen := f.seen
	f.mu.Unlock()

	d, err := r.walker.Discover(f.src, doc, seen)
	if err != nil {
		r.logger.Warn("listing could not be parsed",
			logging.String("source", f.src.ID), logging.String("url", doc.URL), logging.Err(err))
		r.mu.Lock()
		r.summary.Source(f.src.ID).Errors++
		r.mu.Unlock()
		return
	}

	limit := r.walker.Limit(f.src)
	now := time.Now()

	f.mu.Lock()
	for _, u := range d.Articles {
		if limit > 0 && f.seen >= limit {
			break
		}
		if f.queue.Push(model.FetchJob{SourceID: f.src.ID, URL: u, Kind: model.JobArticle, ScheduledAt: now}) {
			f.seen++
		}
	}
	capped := limit > 0 && f.seen >= limit
	f.mu.Unlock()

	if d.Next != nil && !capped {
		next := *d.Next
		next.ScheduledAt = now
		f.queue.Push(next)
	}

	r.logger.Debug("listing walked",
		logging.String("source", f.src.ID),
		logging.String("url", doc.URL),
		logging.String("via", string(doc.Via)),
		logging.Int("items", d.Items),
		logging.Int("articles", len(d.Articles)),
		logging.Bool("next", d.Next != nil && !capped))
}

// enqueue hands an article document to the extraction pool, blocking while
// the pool's queue is full
func (r *run) enqueue(ctx context.Context, doc *model.RawDocument) {
	r.mu.Lock()
	r.summary.Source(doc.SourceID).Fetched++
	r.mu.Unlock()
	r.metrics.Document(doc.SourceID, "fetched")

	if err := r.pool.Submit(ctx, &extractJob{run: r, doc: doc}); err != nil {
		r.logger.Debug("document dropped",
			logging.String("source", doc.SourceID), logging.String("url", doc.URL), logging.Err(err))
		return
	}
	r.metrics.SetExtractQueue(r.pool.Pending())
}

// finish records breaker states, store errors and the optional digest
func (r *run) finish(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, snap := range r.gates.Snapshot() {
		row := r.summary.Source(id)
		row.BreakerState = snap.State.String()
		row.BreakerOpens = snap.Opens
		row.Tripped = snap.State != worker.StateClosed
	}

	for id, n := range r.gateway.Errors() {
		r.summary.Source(id).Errors += n
		r.summary.StoreErrors += n
	}

	r.summary.Canceled = ctx.Err() != nil
	if digester := r.p.deps.Digester; digester != nil && !r.summary.Canceled {
		var deals []model.ExtractedDeal
		for _, d := range r.index.Survivors() {
			if r.runDeals[d.ID] {
				deals = append(deals, d)
			}
		}
		text, err := digester.Digest(r.storeCtx, deals)
		if err != nil {
			r.logger.Warn("digest failed", logging.Err(err))
			r.summary.DigestFailed = err.Error()
		}
		r.summary.Digest = text
	}

	r.summary.FinishedAt = time.Now().UTC()
}
