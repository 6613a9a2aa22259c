package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/mergertracker/internal/model"
)

func testDeal(id, source string, confidence float64) model.ExtractedDeal {
	announced := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	return model.ExtractedDeal{
		ID:               id,
		DealType:         model.DealAcquisition,
		DealStatus:       model.StatusAnnounced,
		TargetCompany:    "DataSoft LLC",
		AcquirerCompany:  model.StringPtr("TechCorp Inc."),
		Value:            &model.DealValue{Amount: decimal.NewFromInt(2_500_000_000), Currency: "USD"},
		Structure:        model.StructureCash,
		IndustryTag:      model.StringPtr("technology"),
		Advisors:         []model.Advisor{{Name: "Goldman Sachs", Role: model.AdvisorFinancial}},
		AnnouncementDate: &announced,
		Confidence:       confidence,
		Band:             model.BandHigh,
		Signals:          []model.SignalCategory{model.SignalDealType, model.SignalCompany, model.SignalValue},
		SourceURL:        "https://news.example.com/" + id,
		SourceID:         source,
	}
}

func TestMemoryStore_PersistAndConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil, nil)
	defer s.Close()

	out, err := s.PersistBatch(ctx, []Record{
		DealRecord(testDeal("d1", "alpha", 0.85)),
		ArticleRecord(model.Article{URL: "https://news.example.com/a", SourceID: "alpha"}),
		{Kind: KindDeal},
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, StatusSuccess, out[0].Status)
	assert.Equal(t, StatusSuccess, out[1].Status)
	assert.Equal(t, StatusError, out[2].Status)
	assert.ErrorIs(t, out[2].Err, ErrInvalidRecord)
	assert.False(t, out[2].Transient)

	updated := testDeal("d1", "alpha", 0.9)
	out, err = s.PersistBatch(ctx, []Record{DealRecord(updated)})
	require.NoError(t, err)
	assert.Equal(t, StatusConflict, out[0].Status)

	deals, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.Equal(t, 0.9, deals[0].Confidence, "last write wins")

	nDeals, nArticles := s.Len()
	assert.Equal(t, 1, nDeals)
	assert.Equal(t, 1, nArticles)
}

func TestMemoryStore_Query(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil, nil)
	defer s.Close()

	dup := testDeal("d3", "beta", 0.95)
	dup.DuplicateOf = model.StringPtr("d1")
	merger := testDeal("d4", "beta", 0.6)
	merger.DealType = model.DealMerger
	merger.Band = model.BandMedium
	merger.TargetCompany = "Roadrunner Ltd"
	merger.AcquirerCompany = nil
	early := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	merger.AnnouncementDate = &early

	records := []Record{
		DealRecord(testDeal("d1", "alpha", 0.85)),
		DealRecord(testDeal("d2", "alpha", 0.85)),
		DealRecord(dup),
		DealRecord(merger),
	}
	_, err := s.PersistBatch(ctx, records)
	require.NoError(t, err)

	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"default hides duplicates", Filter{}, []string{"d1", "d2", "d4"}},
		{"with duplicates", Filter{IncludeDuplicates: true}, []string{"d3", "d1", "d2", "d4"}},
		{"by source", Filter{SourceID: "beta"}, []string{"d4"}},
		{"by type", Filter{DealType: model.DealMerger}, []string{"d4"}},
		{"by band", Filter{Band: model.BandHigh}, []string{"d1", "d2"}},
		{"by acquirer", Filter{Company: "techcorp"}, []string{"d1", "d2"}},
		{"by target", Filter{Company: "ROADRUNNER"}, []string{"d4"}},
		{"since", Filter{Since: &since}, []string{"d1", "d2"}},
		{"min confidence", Filter{MinConfidence: 0.7}, []string{"d1", "d2"}},
		{"limit", Filter{Limit: 1}, []string{"d1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deals, err := s.Query(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(deals))
		})
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewMemoryStore(nil, nil)
	defer s.Close()

	events, err := s.Subscribe(ctx, EventFilter{Records: []RecordKind{KindDeal}})
	require.NoError(t, err)

	_, err = s.PersistBatch(ctx, []Record{
		DealRecord(testDeal("d1", "alpha", 0.85)),
		ArticleRecord(model.Article{URL: "https://news.example.com/a", SourceID: "alpha"}),
		DealRecord(testDeal("d1", "alpha", 0.9)),
	})
	require.NoError(t, err)

	var got []string
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev.Label())
			assert.Equal(t, "d1", ev.Key)
			assert.NotEmpty(t, ev.ID)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %v", got)
		}
	}
	assert.Equal(t, []string{"deal.created", "deal.updated"}, got)
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore(nil, nil)
	require.NoError(t, s.Close())

	_, err := s.PersistBatch(context.Background(), []Record{DealRecord(testDeal("d1", "alpha", 0.85))})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Query(context.Background(), Filter{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLocalBus_UnsubscribeReleasesPublisher(t *testing.T) {
	bus := NewLocalBus()
	defer bus.Close()

	subCtx, cancel := context.WithCancel(context.Background())
	_, err := bus.Subscribe(subCtx, EventFilter{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		// Fill the buffer with nobody reading, then block on one more
		for i := 0; i <= subscriberBuffer; i++ {
			if err := bus.Publish(context.Background(), ChangeEvent{Key: fmt.Sprint(i)}); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case <-done:
		t.Fatal("publish should block on a full subscriber")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publisher still blocked after unsubscribe")
	}
}

func TestEventFilter_Match(t *testing.T) {
	ev := ChangeEvent{Kind: EventCreated, Record: KindDeal, SourceID: "alpha"}

	assert.True(t, EventFilter{}.Match(ev))
	assert.True(t, EventFilter{Kinds: []EventKind{EventCreated}}.Match(ev))
	assert.False(t, EventFilter{Kinds: []EventKind{EventUpdated}}.Match(ev))
	assert.False(t, EventFilter{Records: []RecordKind{KindArticle}}.Match(ev))
	assert.False(t, EventFilter{SourceID: "beta"}.Match(ev))
}

func ids(deals []model.ExtractedDeal) []string {
	out := make([]string, len(deals))
	for i, d := range deals {
		out[i] = d.ID
	}
	return out
}
