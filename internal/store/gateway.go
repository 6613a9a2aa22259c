package store

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/ppiankov/mergertracker/internal/logging"
)

const (
	// DefaultBatchSize is the number of records sent per PersistBatch call
	DefaultBatchSize = 50

	// DefaultMaxAttempts bounds retries of transient failures
	DefaultMaxAttempts = 3

	// DefaultRetryDelay is the first retry delay; later delays double
	DefaultRetryDelay = 500 * time.Millisecond
)

// GatewayOptions configures a Gateway
type GatewayOptions struct {
	BatchSize   int
	DryRun      bool
	MaxAttempts int
	RetryDelay  time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error // Injectable for tests
	Logger      logging.Logger
}

// Stats counts final outcomes across all flushes
type Stats struct {
	Success  int `json:"success"`
	Conflict int `json:"conflict"`
	Error    int `json:"error"`
	Skipped  int `json:"skipped"`
	Retried  int `json:"retried"`
}

// Gateway batches records in front of a Store, retries transient failures
// and tallies permanent ones per source. Batches are persisted in
// submission order.
type Gateway struct {
	store  Store
	opts   GatewayOptions
	logger logging.Logger

	mu      sync.Mutex
	pending []Record
	stats   Stats
	errors  map[string]int
}

// NewGateway wraps store
func NewGateway(store Store, opts GatewayOptions) *Gateway {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	return &Gateway{
		store:  store,
		opts:   opts,
		logger: opts.Logger,
		errors: make(map[string]int),
	}
}

// Submit queues records and persists every full batch. It returns the
// outcomes of the batches flushed by this call.
func (g *Gateway) Submit(ctx context.Context, records ...Record) ([]Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pending = append(g.pending, records...)

	var outcomes []Outcome
	for len(g.pending) >= g.opts.BatchSize {
		out, err := g.persistHead(ctx, g.opts.BatchSize)
		outcomes = append(outcomes, out...)
		if err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

// Flush persists everything still queued
func (g *Gateway) Flush(ctx context.Context) ([]Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var outcomes []Outcome
	for len(g.pending) > 0 {
		out, err := g.persistHead(ctx, min(g.opts.BatchSize, len(g.pending)))
		outcomes = append(outcomes, out...)
		if err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

// Pending returns the number of queued records
func (g *Gateway) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Stats returns the outcome counters
func (g *Gateway) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

// Errors returns permanent failures per source
func (g *Gateway) Errors() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return maps.Clone(g.errors)
}

// persistHead persists the first n pending records and drops them from the
// queue whatever the outcome; failed items are reported, not requeued.
func (g *Gateway) persistHead(ctx context.Context, n int) ([]Outcome, error) {
	batch := make([]Record, n)
	copy(batch, g.pending[:n])
	g.pending = append(g.pending[:0], g.pending[n:]...)

	outcomes, err := g.persist(ctx, batch)
	g.tally(outcomes)
	return outcomes, err
}

func (g *Gateway) persist(ctx context.Context, batch []Record) ([]Outcome, error) {
	outcomes := make([]Outcome, len(batch))
	if g.opts.DryRun {
		for i, rec := range batch {
			outcomes[i] = outcomeFor(rec, StatusSkipped, nil)
		}
		return outcomes, nil
	}

	todo := make([]int, len(batch))
	for i := range todo {
		todo[i] = i
	}

	for attempt := 1; ; attempt++ {
		records := make([]Record, len(todo))
		for j, idx := range todo {
			records[j] = batch[idx]
		}

		out, err := g.store.PersistBatch(ctx, records)
		if err != nil {
			for _, idx := range todo {
				outcomes[idx] = outcomeFor(batch[idx], StatusError, err)
			}
			if !IsTransient(err) {
				return outcomes, err
			}
		} else {
			for j, idx := range todo {
				outcomes[idx] = out[j]
			}
		}

		retry := todo[:0:0]
		for _, idx := range todo {
			if outcomes[idx].Status == StatusError && outcomes[idx].Transient {
				retry = append(retry, idx)
			}
		}
		if len(retry) == 0 || attempt >= g.opts.MaxAttempts {
			return outcomes, nil
		}

		delay := g.opts.RetryDelay << (attempt - 1)
		g.logger.Debug("Retrying transient store failures",
			logging.Int("items", len(retry)),
			logging.Int("attempt", attempt+1),
			logging.Duration("delay", delay),
		)
		if sleepErr := g.opts.Sleep(ctx, delay); sleepErr != nil {
			return outcomes, nil
		}
		g.stats.Retried += len(retry)
		todo = retry
	}
}

func (g *Gateway) tally(outcomes []Outcome) {
	for _, o := range outcomes {
		switch o.Status {
		case StatusSuccess:
			g.stats.Success++
		case StatusConflict:
			g.stats.Conflict++
		case StatusSkipped:
			g.stats.Skipped++
		case StatusError:
			g.stats.Error++
			g.errors[o.SourceID]++
			g.logger.Warn("Failed to persist record",
				logging.String("kind", string(o.Kind)),
				logging.String("key", o.Key),
				logging.String("source_id", o.SourceID),
				logging.Bool("transient", o.Transient),
				logging.Err(o.Err),
			)
		}
	}
}

// Watch subscribes to the store's change events and counts them per label
// until the returned Watcher is stopped.
func (g *Gateway) Watch(ctx context.Context) (*Watcher, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	events, err := g.store.Subscribe(watchCtx, EventFilter{})
	if err != nil {
		cancel()
		return nil, err
	}

	w := &Watcher{
		cancel: cancel,
		done:   make(chan struct{}),
		counts: make(map[string]int),
	}
	go w.run(events, g.logger)
	return w, nil
}

// Watcher tallies change events
type Watcher struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	counts map[string]int
}

func (w *Watcher) run(events <-chan ChangeEvent, logger logging.Logger) {
	defer close(w.done)
	for ev := range events {
		w.mu.Lock()
		w.counts[ev.Label()]++
		w.mu.Unlock()
		logger.Debug("Change event",
			logging.String("event", ev.Label()),
			logging.String("key", ev.Key),
			logging.String("source_id", ev.SourceID),
		)
	}
}

// Counts returns the events seen so far
func (w *Watcher) Counts() map[string]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return maps.Clone(w.counts)
}

// Stop ends the subscription, drains buffered events and returns the totals
func (w *Watcher) Stop() map[string]int {
	w.cancel()
	<-w.done
	return w.Counts()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
