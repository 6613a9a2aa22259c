package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/mergertracker/internal/model"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewSQLStore(sqlx.NewDb(db, "postgres"), nil, nil), mock
}

func TestSQLStore_PartialFailureKeepsOtherItems(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO deals").
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(1))
	mock.ExpectQuery("INSERT INTO deals").
		WillReturnError(errors.New("value too long for type"))
	mock.ExpectQuery("INSERT INTO deals").
		WillReturnError(&pq.Error{Code: "40P01", Message: "deadlock detected"})
	mock.ExpectQuery("INSERT INTO articles").
		WillReturnRows(sqlmock.NewRows([]string{"revision"}).AddRow(3))

	out, err := s.PersistBatch(context.Background(), []Record{
		DealRecord(testDeal("d1", "alpha", 0.85)),
		DealRecord(testDeal("d2", "alpha", 0.85)),
		DealRecord(testDeal("d3", "beta", 0.85)),
		ArticleRecord(model.Article{URL: "https://news.example.com/a", SourceID: "beta", FetchedAt: time.Now()}),
	})
	require.NoError(t, err)
	require.Len(t, out, 4)

	assert.Equal(t, StatusSuccess, out[0].Status)
	assert.Equal(t, StatusError, out[1].Status)
	assert.False(t, out[1].Transient)
	assert.Equal(t, "alpha", out[1].SourceID)
	assert.Equal(t, StatusError, out[2].Status)
	assert.True(t, out[2].Transient)
	assert.Equal(t, StatusConflict, out[3].Status)
	assert.Equal(t, KindArticle, out[3].Kind)

	assert.NoError(t, mock.ExpectationsWereMet(), "no transaction wraps the batch")
}

func TestSQLStore_QueryBuildsFilter(t *testing.T) {
	s, mock := newMockStore(t)

	columns := []string{
		"id", "deal_type", "deal_status", "target_company", "target_ticker",
		"acquirer_company", "acquirer_ticker", "value_amount", "value_currency", "structure",
		"industry_tag", "geography_tag", "advisors", "announcement_date", "expected_completion",
		"confidence", "band", "signals", "requires_review", "source_url", "source_id",
		"article_published_at", "duplicate_of", "enrichment_error", "updated_at",
	}
	announced := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(columns).AddRow(
		"d1", "acquisition", "announced", "DataSoft LLC", "",
		"TechCorp Inc.", "", "2500000000", "USD", "cash",
		"technology", nil, `[{"name":"Goldman Sachs","role":"financial"}]`, announced, nil,
		0.85, "high", `["deal_type","company","value"]`, false, "https://news.example.com/d1", "alpha",
		nil, nil, "", announced,
	)
	mock.ExpectQuery(`SELECT .* FROM deals WHERE source_id = \$1 AND deal_type = \$2 AND duplicate_of IS NULL ORDER BY confidence DESC, id ASC LIMIT 5`).
		WithArgs("alpha", "acquisition").
		WillReturnRows(rows)

	deals, err := s.Query(context.Background(), Filter{SourceID: "alpha", DealType: model.DealAcquisition, Limit: 5})
	require.NoError(t, err)
	require.Len(t, deals, 1)

	d := deals[0]
	assert.Equal(t, "TechCorp Inc.", d.Acquirer())
	require.NotNil(t, d.Value)
	assert.Equal(t, "2500000000", d.Value.Amount.String())
	assert.Equal(t, "technology", *d.IndustryTag)
	assert.Nil(t, d.GeographyTag)
	assert.Equal(t, []model.Advisor{{Name: "Goldman Sachs", Role: model.AdvisorFinancial}}, d.Advisors)
	assert.Len(t, d.Signals, 3)
	assert.True(t, d.AnnouncementDate.Equal(announced))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQL(ctx, "sqlite3", ":memory:", nil, nil)
	require.NoError(t, err)
	defer s.Close()

	// Schema creation is idempotent
	require.NoError(t, s.Migrate(ctx))

	const n = 12
	records := make([]Record, 0, n)
	for i := range n {
		d := testDeal(fmt.Sprintf("deal-%02d", i), "alpha", 0.70+float64(i)/100)
		if i%2 == 1 {
			d.AcquirerCompany = nil
			d.Value = nil
			d.Advisors = nil
		}
		records = append(records, DealRecord(d))
	}

	out, err := s.PersistBatch(ctx, records)
	require.NoError(t, err)
	for _, o := range out {
		require.Equal(t, StatusSuccess, o.Status, o.Err)
	}

	deals, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, deals, n)
	assert.Equal(t, "deal-11", deals[0].ID, "highest confidence first")

	want := testDeal("deal-00", "alpha", 0.70)
	var got model.ExtractedDeal
	for _, d := range deals {
		if d.ID == want.ID {
			got = d
		}
	}
	assert.Equal(t, want.TargetCompany, got.TargetCompany)
	assert.Equal(t, want.Acquirer(), got.Acquirer())
	require.NotNil(t, got.Value)
	assert.True(t, want.Value.Amount.Equal(got.Value.Amount))
	assert.Equal(t, "USD", got.Value.Currency)
	assert.Equal(t, want.Advisors, got.Advisors)
	assert.Equal(t, want.Signals, got.Signals)
	require.NotNil(t, got.AnnouncementDate)
	assert.True(t, want.AnnouncementDate.Equal(*got.AnnouncementDate))

	// Re-persisting overwrites and reports a conflict
	again := testDeal("deal-00", "alpha", 0.99)
	again.DuplicateOf = model.StringPtr("deal-11")
	out, err = s.PersistBatch(ctx, []Record{DealRecord(again)})
	require.NoError(t, err)
	assert.Equal(t, StatusConflict, out[0].Status)

	deals, err = s.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, deals, n-1, "duplicates are hidden by default")

	deals, err = s.Query(ctx, Filter{IncludeDuplicates: true, Company: "techcorp"})
	require.NoError(t, err)
	assert.Len(t, deals, n/2)
	assert.Equal(t, "deal-00", deals[0].ID)
	assert.Equal(t, "deal-11", *deals[0].DuplicateOf)
}

func TestSQLStore_SQLiteSinceFilter(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQL(ctx, "sqlite3", ":memory:", nil, nil)
	require.NoError(t, err)
	defer s.Close()

	old := testDeal("old", "alpha", 0.8)
	early := time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)
	old.AnnouncementDate = &early
	undated := testDeal("undated", "alpha", 0.8)
	undated.AnnouncementDate = nil
	published := time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC)
	undated.ArticlePublishedAt = &published

	_, err = s.PersistBatch(ctx, []Record{
		DealRecord(testDeal("new", "alpha", 0.8)),
		DealRecord(old),
		DealRecord(undated),
	})
	require.NoError(t, err)

	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	deals, err := s.Query(ctx, Filter{Since: &since})
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "undated"}, ids(deals))
}

func TestSQLStore_ArticleRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQL(ctx, "sqlite3", ":memory:", nil, nil)
	require.NoError(t, err)
	defer s.Close()

	a := model.Article{
		URL:            "https://news.example.com/a",
		SourceID:       "alpha",
		Title:          "TechCorp buys DataSoft",
		Body:           "TechCorp Inc. agreed to acquire DataSoft LLC.",
		WordCount:      7,
		ReadingTime:    1,
		RequiresReview: true,
		ScrapingErrors: []string{"missing publication date"},
		FetchedAt:      time.Now(),
	}
	out, err := s.PersistBatch(ctx, []Record{ArticleRecord(a), ArticleRecord(a)})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, out[0].Status)
	assert.Equal(t, StatusConflict, out[1].Status)

	var count int
	require.NoError(t, s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM articles"))
	assert.Equal(t, 1, count)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(driver.ErrBadConn))
	assert.True(t, IsTransient(fmt.Errorf("upsert: %w", context.DeadlineExceeded)))
	assert.True(t, IsTransient(Transient(errors.New("busy"))))
	assert.True(t, IsTransient(&pq.Error{Code: "08006"}))
	assert.False(t, IsTransient(&pq.Error{Code: "23505"}))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(errors.New("syntax error")))
	assert.False(t, IsTransient(nil))
}
