package store

import (
	"context"
	"sync"
)

// subscriberBuffer is the channel capacity of each subscription
const subscriberBuffer = 256

// Bus carries change events from a store to its subscribers
type Bus interface {
	Publish(ctx context.Context, event ChangeEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan ChangeEvent, error)
	Close() error
}

// LocalBus fans events out to in-process subscribers. Publish blocks while
// a subscriber's buffer is full, so subscribers never miss events.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	nextID int
	closed bool
}

type subscription struct {
	filter EventFilter
	ch     chan ChangeEvent
	done   chan struct{}
}

// NewLocalBus creates an empty bus
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[int]*subscription)}
}

// Publish delivers event to every matching subscriber
func (b *LocalBus) Publish(ctx context.Context, event ChangeEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for _, sub := range b.subs {
		if !sub.filter.Match(event) {
			continue
		}
		select {
		case sub.ch <- event:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers a subscriber. The channel is closed when ctx is done
// or the bus is closed.
func (b *LocalBus) Subscribe(ctx context.Context, filter EventFilter) (<-chan ChangeEvent, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	id := b.nextID
	b.nextID++
	sub := &subscription{
		filter: filter,
		ch:     make(chan ChangeEvent, subscriberBuffer),
		done:   make(chan struct{}),
	}
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(id, sub)
	}()

	return sub.ch, nil
}

// unsubscribe signals done first so a blocked Publish releases its read lock
func (b *LocalBus) unsubscribe(id int, sub *subscription) {
	close(sub.done)

	b.mu.Lock()
	if _, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
	b.mu.Unlock()
}

// Close ends every subscription
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
	return nil
}
