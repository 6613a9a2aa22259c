package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/mergertracker/internal/logging"
	"github.com/ppiankov/mergertracker/internal/model"
)

// MemoryStore keeps records in maps. Used for dry runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	deals    map[string]model.ExtractedDeal
	articles map[string]model.Article
	bus      Bus
	logger   logging.Logger
	closed   bool
	now      func() time.Time
}

// NewMemoryStore creates an empty store publishing on bus (a LocalBus when nil)
func NewMemoryStore(bus Bus, logger logging.Logger) *MemoryStore {
	if bus == nil {
		bus = NewLocalBus()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &MemoryStore{
		deals:    make(map[string]model.ExtractedDeal),
		articles: make(map[string]model.Article),
		bus:      bus,
		logger:   logger,
		now:      time.Now,
	}
}

// PersistBatch upserts each record
func (s *MemoryStore) PersistBatch(ctx context.Context, records []Record) ([]Outcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}

	outcomes := make([]Outcome, len(records))
	events := make([]ChangeEvent, 0, len(records))
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			outcomes[i] = outcomeFor(rec, StatusError, err)
			continue
		}
		if err := rec.validate(); err != nil {
			outcomes[i] = outcomeFor(rec, StatusError, err)
			continue
		}

		var existed bool
		switch rec.Kind {
		case KindDeal:
			_, existed = s.deals[rec.Deal.ID]
			s.deals[rec.Deal.ID] = *rec.Deal
		case KindArticle:
			_, existed = s.articles[rec.Article.URL]
			s.articles[rec.Article.URL] = *rec.Article
		}

		status, kind := StatusSuccess, EventCreated
		if existed {
			status, kind = StatusConflict, EventUpdated
		}
		outcomes[i] = outcomeFor(rec, status, nil)
		events = append(events, newEvent(kind, rec, s.now()))
	}
	s.mu.Unlock()

	publish(ctx, s.bus, events, s.logger)
	return outcomes, nil
}

// Query returns matching deals ordered by confidence, then id
func (s *MemoryStore) Query(ctx context.Context, filter Filter) ([]model.ExtractedDeal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	deals := make([]model.ExtractedDeal, 0, len(s.deals))
	for _, d := range s.deals {
		if filter.Match(d) {
			deals = append(deals, d)
		}
	}
	sortDeals(deals)
	if filter.Limit > 0 && len(deals) > filter.Limit {
		deals = deals[:filter.Limit]
	}
	return deals, nil
}

// Article returns a stored article by URL
func (s *MemoryStore) Article(url string) (model.Article, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[url]
	return a, ok
}

// Len returns the number of stored deals and articles
func (s *MemoryStore) Len() (deals, articles int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.deals), len(s.articles)
}

// Subscribe streams change events
func (s *MemoryStore) Subscribe(ctx context.Context, filter EventFilter) (<-chan ChangeEvent, error) {
	return s.bus.Subscribe(ctx, filter)
}

// Close closes the store and its bus
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.bus.Close()
}

func sortDeals(deals []model.ExtractedDeal) {
	sort.Slice(deals, func(i, j int) bool {
		if deals[i].Confidence != deals[j].Confidence {
			return deals[i].Confidence > deals[j].Confidence
		}
		return deals[i].ID < deals[j].ID
	})
}

func newEvent(kind EventKind, rec Record, at time.Time) ChangeEvent {
	return ChangeEvent{
		ID:       uuid.NewString(),
		Kind:     kind,
		Record:   rec.Kind,
		Key:      rec.Key(),
		SourceID: rec.SourceID(),
		At:       at.UTC(),
	}
}

// publish never fails the write that produced the events
func publish(ctx context.Context, bus Bus, events []ChangeEvent, logger logging.Logger) {
	for _, ev := range events {
		if err := bus.Publish(ctx, ev); err != nil {
			logger.Warn("Failed to publish change event",
				logging.String("event", ev.Label()),
				logging.String("key", ev.Key),
				logging.Err(err),
			)
			return
		}
	}
}
