package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/mergertracker/internal/model"
)

// flakyStore wraps a MemoryStore and fails keys a set number of times
type flakyStore struct {
	*MemoryStore

	mu       sync.Mutex
	failures map[string]int // key -> remaining transient failures
	broken   map[string]bool
	batches  [][]string
}

func newFlakyStore() *flakyStore {
	return &flakyStore{
		MemoryStore: NewMemoryStore(nil, nil),
		failures:    make(map[string]int),
		broken:      make(map[string]bool),
	}
}

func (f *flakyStore) PersistBatch(ctx context.Context, records []Record) ([]Outcome, error) {
	f.mu.Lock()
	keys := make([]string, len(records))
	var pass []Record
	var passIdx []int
	out := make([]Outcome, len(records))
	for i, r := range records {
		keys[i] = r.Key()
		switch {
		case f.broken[r.Key()]:
			out[i] = outcomeFor(r, StatusError, errors.New("check constraint violated"))
		case f.failures[r.Key()] > 0:
			f.failures[r.Key()]--
			out[i] = outcomeFor(r, StatusError, Transient(errors.New("database is locked")))
		default:
			pass = append(pass, r)
			passIdx = append(passIdx, i)
		}
	}
	f.batches = append(f.batches, keys)
	f.mu.Unlock()

	stored, err := f.MemoryStore.PersistBatch(ctx, pass)
	if err != nil {
		return nil, err
	}
	for j, idx := range passIdx {
		out[idx] = stored[j]
	}
	return out, nil
}

func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func dealRecords(n int, source string) []Record {
	out := make([]Record, n)
	for i := range out {
		out[i] = DealRecord(testDeal(fmt.Sprintf("d%03d", i), source, 0.85))
	}
	return out
}

func TestGateway_BatchesBySize(t *testing.T) {
	ctx := context.Background()
	fs := newFlakyStore()
	g := NewGateway(fs, GatewayOptions{BatchSize: 4})

	out, err := g.Submit(ctx, dealRecords(3, "alpha")...)
	require.NoError(t, err)
	assert.Empty(t, out, "below batch size nothing is written")
	assert.Equal(t, 3, g.Pending())

	out, err = g.Submit(ctx, dealRecords(6, "alpha")[3:]...)
	require.NoError(t, err)
	assert.Len(t, out, 4)
	assert.Equal(t, 2, g.Pending())

	out, err = g.Flush(ctx)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, 0, g.Pending())

	require.Len(t, fs.batches, 2)
	assert.Equal(t, []string{"d000", "d001", "d002", "d003"}, fs.batches[0])
	assert.Equal(t, []string{"d004", "d005"}, fs.batches[1])
	assert.Equal(t, Stats{Success: 6}, g.Stats())
}

func TestGateway_DefaultBatchSize(t *testing.T) {
	fs := newFlakyStore()
	g := NewGateway(fs, GatewayOptions{})

	_, err := g.Submit(context.Background(), dealRecords(DefaultBatchSize+1, "alpha")...)
	require.NoError(t, err)
	require.Len(t, fs.batches, 1)
	assert.Len(t, fs.batches[0], 50)
	assert.Equal(t, 1, g.Pending())
}

func TestGateway_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	fs := newFlakyStore()
	fs.failures["d001"] = 2
	fs.failures["d002"] = 5
	fs.broken["d003"] = true

	var delays []time.Duration
	g := NewGateway(fs, GatewayOptions{
		BatchSize:  10,
		RetryDelay: 100 * time.Millisecond,
		Sleep:      noSleep(&delays),
	})

	_, err := g.Submit(ctx, dealRecords(4, "alpha")...)
	require.NoError(t, err)
	out, err := g.Flush(ctx)
	require.NoError(t, err)
	require.Len(t, out, 4)

	assert.Equal(t, StatusSuccess, out[0].Status)
	assert.Equal(t, StatusSuccess, out[1].Status, "succeeds on the third attempt")
	assert.Equal(t, StatusError, out[2].Status, "still failing after three attempts")
	assert.True(t, out[2].Transient)
	assert.Equal(t, StatusError, out[3].Status)
	assert.False(t, out[3].Transient)

	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, delays)
	require.Len(t, fs.batches, 3)
	assert.Equal(t, []string{"d001", "d002"}, fs.batches[1], "only transient failures are retried")

	assert.Equal(t, map[string]int{"alpha": 2}, g.Errors())
	stats := g.Stats()
	assert.Equal(t, 2, stats.Success)
	assert.Equal(t, 2, stats.Error)
	assert.Equal(t, 4, stats.Retried)
}

func TestGateway_DryRunSkipsWrites(t *testing.T) {
	ctx := context.Background()
	fs := newFlakyStore()
	g := NewGateway(fs, GatewayOptions{BatchSize: 2, DryRun: true})

	out, err := g.Submit(ctx, dealRecords(3, "alpha")...)
	require.NoError(t, err)
	flushed, err := g.Flush(ctx)
	require.NoError(t, err)
	out = append(out, flushed...)

	require.Len(t, out, 3)
	for _, o := range out {
		assert.Equal(t, StatusSkipped, o.Status)
	}
	assert.Empty(t, fs.batches)
	deals, _ := fs.Len()
	assert.Zero(t, deals)
	assert.Equal(t, Stats{Skipped: 3}, g.Stats())
}

func TestGateway_ErrorsPerSource(t *testing.T) {
	ctx := context.Background()
	fs := newFlakyStore()
	fs.broken["d000"] = true

	g := NewGateway(fs, GatewayOptions{BatchSize: 10})
	records := append(dealRecords(1, "alpha"), Record{Kind: KindDeal, Deal: &model.ExtractedDeal{SourceID: "beta"}})
	_, err := g.Submit(ctx, records...)
	require.NoError(t, err)
	_, err = g.Flush(ctx)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"alpha": 1, "beta": 1}, g.Errors())
}

func TestGateway_ClosedStoreFailsBatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil, nil)
	require.NoError(t, s.Close())

	g := NewGateway(s, GatewayOptions{BatchSize: 2})
	out, err := g.Submit(ctx, dealRecords(2, "alpha")...)
	assert.ErrorIs(t, err, ErrClosed)
	require.Len(t, out, 2)
	assert.Equal(t, StatusError, out[0].Status)
	assert.Equal(t, map[string]int{"alpha": 2}, g.Errors())
}

func TestGateway_WatchCountsEvents(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil, nil)
	defer s.Close()

	g := NewGateway(s, GatewayOptions{BatchSize: 10})
	w, err := g.Watch(ctx)
	require.NoError(t, err)

	records := dealRecords(3, "alpha")
	records = append(records, records[0], ArticleRecord(model.Article{URL: "https://news.example.com/a", SourceID: "alpha"}))
	_, err = g.Submit(ctx, records...)
	require.NoError(t, err)
	_, err = g.Flush(ctx)
	require.NoError(t, err)

	counts := w.Stop()
	assert.Equal(t, map[string]int{
		"deal.created":    3,
		"deal.updated":    1,
		"article.created": 1,
	}, counts)
}
