package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ppiankov/mergertracker/internal/logging"
)

const (
	// DefaultStream is the stream key change events are appended to
	DefaultStream = "mergertracker:events"

	// defaultBlockTimeout bounds each XREAD so cancellation is noticed
	defaultBlockTimeout = 2 * time.Second

	// defaultReadCount is the number of entries read per XREAD
	defaultReadCount = 100

	// eventField is the stream entry field holding the JSON event
	eventField = "event"

	// defaultMaxLen is the approximate number of entries the stream keeps
	defaultMaxLen = 10_000
)

// RedisBus publishes change events to a Redis stream. Subscribers tail the
// stream with blocking reads, so events cross process boundaries.
type RedisBus struct {
	client       *redis.Client
	stream       string
	blockTimeout time.Duration
	maxLen       int64
	logger       logging.Logger
	owned        bool
}

// RedisBusOptions tunes a RedisBus
type RedisBusOptions struct {
	Stream       string
	BlockTimeout time.Duration
	MaxLen       int64 // Approximate stream cap; older entries are trimmed
	Logger       logging.Logger
	CloseClient  bool // Close the client with the bus
}

// NewRedisBus creates a bus on an existing client
func NewRedisBus(client *redis.Client, opts RedisBusOptions) *RedisBus {
	if opts.Stream == "" {
		opts.Stream = DefaultStream
	}
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = defaultBlockTimeout
	}
	if opts.MaxLen <= 0 {
		opts.MaxLen = defaultMaxLen
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &RedisBus{
		client:       client,
		stream:       opts.Stream,
		blockTimeout: opts.BlockTimeout,
		maxLen:       opts.MaxLen,
		logger:       opts.Logger,
		owned:        opts.CloseClient,
	}
}

// Publish appends the event to the stream
func (b *RedisBus) Publish(ctx context.Context, event ChangeEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	result := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]any{eventField: string(payload)},
	})
	if publishErr := result.Err(); publishErr != nil {
		return fmt.Errorf("publish to stream: %w", publishErr)
	}

	b.logger.Debug("Published change event",
		logging.String("event", event.Label()),
		logging.String("key", event.Key),
		logging.String("stream_id", result.Val()),
	)
	return nil
}

// Subscribe tails the stream from its current end. The channel is closed
// when ctx is done or the connection fails.
func (b *RedisBus) Subscribe(ctx context.Context, filter EventFilter) (<-chan ChangeEvent, error) {
	lastID, err := b.lastID(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan ChangeEvent, subscriberBuffer)
	go b.tail(ctx, lastID, filter, out)
	return out, nil
}

func (b *RedisBus) lastID(ctx context.Context) (string, error) {
	entries, err := b.client.XRevRangeN(ctx, b.stream, "+", "-", 1).Result()
	if err != nil {
		return "", fmt.Errorf("read stream tail: %w", err)
	}
	if len(entries) == 0 {
		return "0-0", nil
	}
	return entries[0].ID, nil
}

func (b *RedisBus) tail(ctx context.Context, lastID string, filter EventFilter, out chan<- ChangeEvent) {
	defer close(out)

	for ctx.Err() == nil {
		streams, err := b.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{b.stream, lastID},
			Count:   defaultReadCount,
			Block:   b.blockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() == nil {
				b.logger.Warn("Change stream read failed",
					logging.String("stream", b.stream),
					logging.Err(err),
				)
			}
			return
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				event, ok := b.decode(msg)
				if !ok || !filter.Match(event) {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (b *RedisBus) decode(msg redis.XMessage) (ChangeEvent, bool) {
	raw, ok := msg.Values[eventField].(string)
	if !ok {
		b.logger.Warn("Stream entry without event field", logging.String("stream_id", msg.ID))
		return ChangeEvent{}, false
	}
	var event ChangeEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		b.logger.Warn("Undecodable change event",
			logging.String("stream_id", msg.ID),
			logging.Err(err),
		)
		return ChangeEvent{}, false
	}
	return event, true
}

// Close closes the client when the bus owns it
func (b *RedisBus) Close() error {
	if !b.owned {
		return nil
	}
	return b.client.Close()
}
