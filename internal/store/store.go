// Package store persists deals and articles and publishes change events.
//
// Every backend upserts items independently: one failing item never rolls
// back the others, and re-persisting a natural key overwrites the stored
// row (last write wins) and reports a conflict.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ppiankov/mergertracker/internal/model"
)

var (
	// ErrClosed is returned by operations on a closed store
	ErrClosed = errors.New("store closed")

	// ErrInvalidRecord is reported for records without a payload or natural key
	ErrInvalidRecord = errors.New("invalid record")

	// ErrUnknownDriver is returned by Open for unsupported drivers
	ErrUnknownDriver = errors.New("unknown store driver")
)

// RecordKind names the payload carried by a Record
type RecordKind string

const (
	KindDeal    RecordKind = "deal"
	KindArticle RecordKind = "article"
)

// Record is one item submitted for persistence: a deal or an article
type Record struct {
	Kind    RecordKind
	Deal    *model.ExtractedDeal
	Article *model.Article
}

// DealRecord wraps a deal
func DealRecord(d model.ExtractedDeal) Record {
	return Record{Kind: KindDeal, Deal: &d}
}

// ArticleRecord wraps an article
func ArticleRecord(a model.Article) Record {
	return Record{Kind: KindArticle, Article: &a}
}

// Key returns the natural key: deal id or article URL
func (r Record) Key() string {
	switch r.Kind {
	case KindDeal:
		if r.Deal != nil {
			return r.Deal.ID
		}
	case KindArticle:
		if r.Article != nil {
			return r.Article.URL
		}
	}
	return ""
}

// SourceID returns the source the record came from
func (r Record) SourceID() string {
	switch {
	case r.Kind == KindDeal && r.Deal != nil:
		return r.Deal.SourceID
	case r.Kind == KindArticle && r.Article != nil:
		return r.Article.SourceID
	}
	return ""
}

func (r Record) validate() error {
	if r.Key() == "" {
		return ErrInvalidRecord
	}
	return nil
}

// Status is the result of persisting one record
type Status string

const (
	StatusSuccess  Status = "success"  // Inserted
	StatusConflict Status = "conflict" // Natural key existed; overwritten
	StatusError    Status = "error"
	StatusSkipped  Status = "skipped" // Dry run
)

// Outcome reports what happened to one record of a batch
type Outcome struct {
	Key       string     `json:"key"`
	Kind      RecordKind `json:"kind"`
	SourceID  string     `json:"source_id"`
	Status    Status     `json:"status"`
	Err       error      `json:"-"`
	Transient bool       `json:"transient,omitempty"` // Worth retrying
}

// Persisted reports whether the record is now stored
func (o Outcome) Persisted() bool {
	return o.Status == StatusSuccess || o.Status == StatusConflict
}

func outcomeFor(r Record, status Status, err error) Outcome {
	return Outcome{
		Key:       r.Key(),
		Kind:      r.Kind,
		SourceID:  r.SourceID(),
		Status:    status,
		Err:       err,
		Transient: err != nil && IsTransient(err),
	}
}

// Filter selects stored deals. Zero fields match everything.
type Filter struct {
	SourceID          string
	DealType          model.DealType
	Band              model.Band
	Company           string     // Case-insensitive substring of target or acquirer
	Since             *time.Time // Announcement date, else article publication date
	MinConfidence     float64
	IncludeDuplicates bool
	Limit             int
}

// Match reports whether d passes the filter
func (f Filter) Match(d model.ExtractedDeal) bool {
	if f.SourceID != "" && d.SourceID != f.SourceID {
		return false
	}
	if f.DealType != "" && d.DealType != f.DealType {
		return false
	}
	if f.Band != "" && d.Band != f.Band {
		return false
	}
	if d.Confidence < f.MinConfidence {
		return false
	}
	if !f.IncludeDuplicates && d.DuplicateOf != nil {
		return false
	}
	if f.Company != "" {
		needle := strings.ToLower(f.Company)
		if !strings.Contains(strings.ToLower(d.TargetCompany), needle) &&
			!strings.Contains(strings.ToLower(d.Acquirer()), needle) {
			return false
		}
	}
	if f.Since != nil {
		at := d.AnnouncementDate
		if at == nil {
			at = d.ArticlePublishedAt
		}
		if at == nil || at.Before(*f.Since) {
			return false
		}
	}
	return true
}

// EventKind distinguishes inserts from overwrites
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
)

// ChangeEvent is published after a record is persisted
type ChangeEvent struct {
	ID       string     `json:"event_id"`
	Kind     EventKind  `json:"kind"`
	Record   RecordKind `json:"record"`
	Key      string     `json:"key"`
	SourceID string     `json:"source_id"`
	At       time.Time  `json:"at"`
}

// Label is the summary bucket for the event, e.g. "deal.created"
func (e ChangeEvent) Label() string {
	return string(e.Record) + "." + string(e.Kind)
}

// EventFilter selects change events. Zero fields match everything.
type EventFilter struct {
	Kinds    []EventKind
	Records  []RecordKind
	SourceID string
}

// Match reports whether e passes the filter
func (f EventFilter) Match(e ChangeEvent) bool {
	if f.SourceID != "" && e.SourceID != f.SourceID {
		return false
	}
	if len(f.Kinds) > 0 && !contains(f.Kinds, e.Kind) {
		return false
	}
	if len(f.Records) > 0 && !contains(f.Records, e.Record) {
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Store is the persistence boundary of the pipeline
type Store interface {
	// PersistBatch upserts every record independently and returns one
	// outcome per record, in order. The error is reserved for failures
	// that prevented the batch from being attempted at all.
	PersistBatch(ctx context.Context, records []Record) ([]Outcome, error)

	// Query returns stored deals ordered by confidence, highest first
	Query(ctx context.Context, filter Filter) ([]model.ExtractedDeal, error)

	// Subscribe streams change events until ctx is done
	Subscribe(ctx context.Context, filter EventFilter) (<-chan ChangeEvent, error)

	Close() error
}
