package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/shopspring/decimal"

	"github.com/ppiankov/mergertracker/internal/logging"
	"github.com/ppiankov/mergertracker/internal/model"
)

const (
	// DefaultMaxOpenConns caps the postgres pool
	DefaultMaxOpenConns = 10

	// DefaultConnMaxLifetime recycles pooled connections
	DefaultConnMaxLifetime = 5 * time.Minute

	// DefaultPingTimeout bounds the connectivity check at open
	DefaultPingTimeout = 5 * time.Second
)

// schema is applied at open; every statement is idempotent
var schema = []string{
	`CREATE TABLE IF NOT EXISTS deals (
		id                   TEXT PRIMARY KEY,
		deal_type            TEXT NOT NULL,
		deal_status          TEXT NOT NULL,
		target_company       TEXT NOT NULL,
		target_ticker        TEXT NOT NULL DEFAULT '',
		acquirer_company     TEXT,
		acquirer_ticker      TEXT NOT NULL DEFAULT '',
		value_amount         TEXT,
		value_currency       TEXT NOT NULL DEFAULT '',
		structure            TEXT NOT NULL DEFAULT '',
		industry_tag         TEXT,
		geography_tag        TEXT,
		advisors             TEXT NOT NULL DEFAULT '[]',
		announcement_date    TIMESTAMP,
		expected_completion  TIMESTAMP,
		confidence           DOUBLE PRECISION NOT NULL,
		band                 TEXT NOT NULL,
		signals              TEXT NOT NULL DEFAULT '[]',
		requires_review      BOOLEAN NOT NULL DEFAULT FALSE,
		source_url           TEXT NOT NULL,
		source_id            TEXT NOT NULL,
		article_published_at TIMESTAMP,
		duplicate_of         TEXT,
		enrichment_error     TEXT NOT NULL DEFAULT '',
		revision             INTEGER NOT NULL DEFAULT 1,
		updated_at           TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_deals_source ON deals (source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_deals_confidence ON deals (confidence DESC, id)`,
	`CREATE TABLE IF NOT EXISTS articles (
		url             TEXT PRIMARY KEY,
		source_id       TEXT NOT NULL,
		source_name     TEXT NOT NULL DEFAULT '',
		title           TEXT NOT NULL DEFAULT '',
		body            TEXT NOT NULL DEFAULT '',
		author          TEXT NOT NULL DEFAULT '',
		published_at    TIMESTAMP,
		word_count      INTEGER NOT NULL DEFAULT 0,
		reading_time    INTEGER NOT NULL DEFAULT 0,
		paywalled       BOOLEAN NOT NULL DEFAULT FALSE,
		requires_review BOOLEAN NOT NULL DEFAULT FALSE,
		scraping_errors TEXT NOT NULL DEFAULT '[]',
		fetched_at      TIMESTAMP NOT NULL,
		revision        INTEGER NOT NULL DEFAULT 1,
		updated_at      TIMESTAMP NOT NULL
	)`,
}

// dealColumns is the column list for deal inserts and selects
const dealColumns = `id, deal_type, deal_status, target_company, target_ticker,
	acquirer_company, acquirer_ticker, value_amount, value_currency, structure,
	industry_tag, geography_tag, advisors, announcement_date, expected_completion,
	confidence, band, signals, requires_review, source_url, source_id,
	article_published_at, duplicate_of, enrichment_error, updated_at`

const upsertDeal = `INSERT INTO deals (` + dealColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		deal_type = excluded.deal_type,
		deal_status = excluded.deal_status,
		target_company = excluded.target_company,
		target_ticker = excluded.target_ticker,
		acquirer_company = excluded.acquirer_company,
		acquirer_ticker = excluded.acquirer_ticker,
		value_amount = excluded.value_amount,
		value_currency = excluded.value_currency,
		structure = excluded.structure,
		industry_tag = excluded.industry_tag,
		geography_tag = excluded.geography_tag,
		advisors = excluded.advisors,
		announcement_date = excluded.announcement_date,
		expected_completion = excluded.expected_completion,
		confidence = excluded.confidence,
		band = excluded.band,
		signals = excluded.signals,
		requires_review = excluded.requires_review,
		source_url = excluded.source_url,
		source_id = excluded.source_id,
		article_published_at = excluded.article_published_at,
		duplicate_of = excluded.duplicate_of,
		enrichment_error = excluded.enrichment_error,
		updated_at = excluded.updated_at,
		revision = deals.revision + 1
	RETURNING revision`

const articleColumns = `url, source_id, source_name, title, body, author,
	published_at, word_count, reading_time, paywalled, requires_review,
	scraping_errors, fetched_at, updated_at`

const upsertArticle = `INSERT INTO articles (` + articleColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (url) DO UPDATE SET
		source_id = excluded.source_id,
		source_name = excluded.source_name,
		title = excluded.title,
		body = excluded.body,
		author = excluded.author,
		published_at = excluded.published_at,
		word_count = excluded.word_count,
		reading_time = excluded.reading_time,
		paywalled = excluded.paywalled,
		requires_review = excluded.requires_review,
		scraping_errors = excluded.scraping_errors,
		fetched_at = excluded.fetched_at,
		updated_at = excluded.updated_at,
		revision = articles.revision + 1
	RETURNING revision`

// SQLStore persists to SQLite or PostgreSQL through sqlx
type SQLStore struct {
	db     *sqlx.DB
	bus    Bus
	logger logging.Logger
	now    func() time.Time
}

// OpenSQL connects, applies the schema and returns a ready store
func OpenSQL(ctx context.Context, driver, dsn string, bus Bus, logger logging.Logger) (*SQLStore, error) {
	if driver == "sqlite3" {
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == "sqlite3" {
		// One connection: in-memory databases are per connection and
		// concurrent writers would hit SQLITE_BUSY
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(DefaultMaxOpenConns)
		db.SetConnMaxLifetime(DefaultConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()
	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	s := NewSQLStore(db, bus, logger)
	if migrateErr := s.Migrate(ctx); migrateErr != nil {
		db.Close()
		return nil, migrateErr
	}
	return s, nil
}

// NewSQLStore wraps an open connection. The schema is not touched.
func NewSQLStore(db *sqlx.DB, bus Bus, logger logging.Logger) *SQLStore {
	if bus == nil {
		bus = NewLocalBus()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SQLStore{db: db, bus: bus, logger: logger, now: time.Now}
}

// Migrate creates missing tables and indexes
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// PersistBatch upserts each record in its own statement. There is no
// enclosing transaction: a failed item leaves the others committed.
func (s *SQLStore) PersistBatch(ctx context.Context, records []Record) ([]Outcome, error) {
	outcomes := make([]Outcome, len(records))
	events := make([]ChangeEvent, 0, len(records))

	for i, rec := range records {
		if err := rec.validate(); err != nil {
			outcomes[i] = outcomeFor(rec, StatusError, err)
			continue
		}

		revision, err := s.upsert(ctx, rec)
		if err != nil {
			outcomes[i] = outcomeFor(rec, StatusError, fmt.Errorf("upsert %s %s: %w", rec.Kind, rec.Key(), err))
			continue
		}

		status, kind := StatusSuccess, EventCreated
		if revision > 1 {
			status, kind = StatusConflict, EventUpdated
		}
		outcomes[i] = outcomeFor(rec, status, nil)
		events = append(events, newEvent(kind, rec, s.now()))
	}

	publish(ctx, s.bus, events, s.logger)
	return outcomes, nil
}

func (s *SQLStore) upsert(ctx context.Context, rec Record) (int, error) {
	var (
		query string
		args  []any
		err   error
	)
	switch rec.Kind {
	case KindDeal:
		query = upsertDeal
		args, err = dealArgs(*rec.Deal, s.now())
	case KindArticle:
		query = upsertArticle
		args, err = articleArgs(*rec.Article, s.now())
	default:
		return 0, ErrInvalidRecord
	}
	if err != nil {
		return 0, err
	}

	var revision int
	if scanErr := s.db.QueryRowxContext(ctx, s.db.Rebind(query), args...).Scan(&revision); scanErr != nil {
		return 0, scanErr
	}
	return revision, nil
}

func dealArgs(d model.ExtractedDeal, now time.Time) ([]any, error) {
	advisors, err := json.Marshal(nonNil(d.Advisors))
	if err != nil {
		return nil, fmt.Errorf("marshal advisors: %w", err)
	}
	signals, err := json.Marshal(nonNil(d.Signals))
	if err != nil {
		return nil, fmt.Errorf("marshal signals: %w", err)
	}

	var amount sql.NullString
	var currency string
	if d.Value != nil {
		amount = sql.NullString{String: d.Value.Amount.String(), Valid: true}
		currency = d.Value.Currency
	}

	return []any{
		d.ID, string(d.DealType), string(d.DealStatus), d.TargetCompany, d.TargetTicker,
		nullString(d.AcquirerCompany), d.AcquirerTicker, amount, currency, string(d.Structure),
		nullString(d.IndustryTag), nullString(d.GeographyTag), string(advisors),
		nullTime(d.AnnouncementDate), nullTime(d.ExpectedCompletion),
		d.Confidence, string(d.Band), string(signals), d.RequiresReview(), d.SourceURL, d.SourceID,
		nullTime(d.ArticlePublishedAt), nullString(d.DuplicateOf), d.EnrichmentError, now.UTC(),
	}, nil
}

func articleArgs(a model.Article, now time.Time) ([]any, error) {
	scrapingErrors, err := json.Marshal(nonNil(a.ScrapingErrors))
	if err != nil {
		return nil, fmt.Errorf("marshal scraping errors: %w", err)
	}
	return []any{
		a.URL, a.SourceID, a.SourceName, a.Title, a.Body, a.Author,
		nullTime(a.PublishedAt), a.WordCount, a.ReadingTime, a.Paywalled, a.RequiresReview,
		string(scrapingErrors), a.FetchedAt.UTC(), now.UTC(),
	}, nil
}

// dealRow mirrors the deals table
type dealRow struct {
	ID                 string         `db:"id"`
	DealType           string         `db:"deal_type"`
	DealStatus         string         `db:"deal_status"`
	TargetCompany      string         `db:"target_company"`
	TargetTicker       string         `db:"target_ticker"`
	AcquirerCompany    sql.NullString `db:"acquirer_company"`
	AcquirerTicker     string         `db:"acquirer_ticker"`
	ValueAmount        sql.NullString `db:"value_amount"`
	ValueCurrency      string         `db:"value_currency"`
	Structure          string         `db:"structure"`
	IndustryTag        sql.NullString `db:"industry_tag"`
	GeographyTag       sql.NullString `db:"geography_tag"`
	Advisors           string         `db:"advisors"`
	AnnouncementDate   sql.NullTime   `db:"announcement_date"`
	ExpectedCompletion sql.NullTime   `db:"expected_completion"`
	Confidence         float64        `db:"confidence"`
	Band               string         `db:"band"`
	Signals            string         `db:"signals"`
	RequiresReview     bool           `db:"requires_review"`
	SourceURL          string         `db:"source_url"`
	SourceID           string         `db:"source_id"`
	ArticlePublishedAt sql.NullTime   `db:"article_published_at"`
	DuplicateOf        sql.NullString `db:"duplicate_of"`
	EnrichmentError    string         `db:"enrichment_error"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func (r dealRow) toDeal() (model.ExtractedDeal, error) {
	d := model.ExtractedDeal{
		ID:                 r.ID,
		DealType:           model.DealType(r.DealType),
		DealStatus:         model.DealStatus(r.DealStatus),
		TargetCompany:      r.TargetCompany,
		TargetTicker:       r.TargetTicker,
		AcquirerCompany:    stringPtr(r.AcquirerCompany),
		AcquirerTicker:     r.AcquirerTicker,
		Structure:          model.DealStructure(r.Structure),
		IndustryTag:        stringPtr(r.IndustryTag),
		GeographyTag:       stringPtr(r.GeographyTag),
		AnnouncementDate:   timePtr(r.AnnouncementDate),
		ExpectedCompletion: timePtr(r.ExpectedCompletion),
		Confidence:         r.Confidence,
		Band:               model.Band(r.Band),
		SourceURL:          r.SourceURL,
		SourceID:           r.SourceID,
		ArticlePublishedAt: timePtr(r.ArticlePublishedAt),
		DuplicateOf:        stringPtr(r.DuplicateOf),
		EnrichmentError:    r.EnrichmentError,
	}

	if r.ValueAmount.Valid {
		amount, err := decimal.NewFromString(r.ValueAmount.String)
		if err != nil {
			return d, fmt.Errorf("deal %s: parse value: %w", r.ID, err)
		}
		d.Value = &model.DealValue{Amount: amount, Currency: r.ValueCurrency}
	}
	if err := json.Unmarshal([]byte(r.Advisors), &d.Advisors); err != nil {
		return d, fmt.Errorf("deal %s: decode advisors: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Signals), &d.Signals); err != nil {
		return d, fmt.Errorf("deal %s: decode signals: %w", r.ID, err)
	}
	if len(d.Advisors) == 0 {
		d.Advisors = nil
	}
	return d, nil
}

// Query selects deals matching filter, highest confidence first
func (s *SQLStore) Query(ctx context.Context, filter Filter) ([]model.ExtractedDeal, error) {
	var (
		where []string
		args  []any
	)
	if filter.SourceID != "" {
		where = append(where, "source_id = ?")
		args = append(args, filter.SourceID)
	}
	if filter.DealType != "" {
		where = append(where, "deal_type = ?")
		args = append(args, string(filter.DealType))
	}
	if filter.Band != "" {
		where = append(where, "band = ?")
		args = append(args, string(filter.Band))
	}
	if filter.MinConfidence > 0 {
		where = append(where, "confidence >= ?")
		args = append(args, filter.MinConfidence)
	}
	if !filter.IncludeDuplicates {
		where = append(where, "duplicate_of IS NULL")
	}
	if filter.Company != "" {
		where = append(where, "(LOWER(target_company) LIKE ? OR LOWER(COALESCE(acquirer_company, '')) LIKE ?)")
		like := "%" + strings.ToLower(filter.Company) + "%"
		args = append(args, like, like)
	}
	if filter.Since != nil {
		where = append(where, "COALESCE(announcement_date, article_published_at) >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := "SELECT " + dealColumns + " FROM deals"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY confidence DESC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var rows []dealRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query deals: %w", err)
	}

	deals := make([]model.ExtractedDeal, 0, len(rows))
	for _, row := range rows {
		d, err := row.toDeal()
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, nil
}

// Subscribe streams change events from the store's bus
func (s *SQLStore) Subscribe(ctx context.Context, filter EventFilter) (<-chan ChangeEvent, error) {
	return s.bus.Subscribe(ctx, filter)
}

// Close closes the bus and the connection pool
func (s *SQLStore) Close() error {
	busErr := s.bus.Close()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return busErr
}

// ensureDir creates the parent directory of a file-backed sqlite DSN
func ensureDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
