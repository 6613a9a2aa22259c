package model

import (
	"net/http"
	"time"
)

// FetchVia records which path produced a document
type FetchVia string

const (
	ViaStatic   FetchVia = "static"
	ViaHeadless FetchVia = "headless"
	ViaFeed     FetchVia = "feed"
	ViaCache    FetchVia = "cache"
)

// RawDocument is the immutable result of a successful fetch
type RawDocument struct {
	URL       string      `json:"url"`
	FinalURL  string      `json:"final_url"`
	SourceID  string      `json:"source_id"`
	Kind      JobKind     `json:"kind"`
	Page      int         `json:"page,omitempty"`
	Status    int         `json:"status"`
	Body      []byte      `json:"body"`
	Header    http.Header `json:"header,omitempty"`
	FetchedAt time.Time   `json:"fetched_at"`
	Via       FetchVia    `json:"via"`
}

// Article is a normalized document
type Article struct {
	URL            string     `json:"url" db:"url"`
	SourceID       string     `json:"source_id" db:"source_id"`
	SourceName     string     `json:"source_name" db:"source_name"`
	Title          string     `json:"title" db:"title"`
	Body           string     `json:"body" db:"body"`
	Paragraphs     []string   `json:"-" db:"-"`
	Author         string     `json:"author,omitempty" db:"author"`
	PublishedAt    *time.Time `json:"published_at,omitempty" db:"published_at"`
	WordCount      int        `json:"word_count" db:"word_count"`
	ReadingTime    int        `json:"reading_time" db:"reading_time"` // Minutes
	Paywalled      bool       `json:"paywalled" db:"paywalled"`
	RequiresReview bool       `json:"requires_review" db:"requires_review"`
	ScrapingErrors []string   `json:"scraping_errors,omitempty" db:"-"`
	FetchedAt      time.Time  `json:"fetched_at" db:"fetched_at"`
}
