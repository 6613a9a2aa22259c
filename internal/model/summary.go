package model

import (
	"sort"
	"time"
)

// SourceSummary is the per-source operational tally of a run
type SourceSummary struct {
	SourceID     string `json:"source_id"`
	Fetched      int    `json:"fetched"`
	Relevant     int    `json:"classified_relevant"`
	Extracted    int    `json:"extracted"`
	Accepted     int    `json:"accepted"`
	Review       int    `json:"review_required"`
	Duplicate    int    `json:"duplicate"`
	Errors       int    `json:"error"`
	BreakerState string `json:"breaker_state"`
	BreakerOpens int    `json:"breaker_opens"`
	Tripped      bool   `json:"tripped"` // Breaker open at run end
}

// RunSummary is always produced, even when a run fails part-way
type RunSummary struct {
	RunID        string                    `json:"run_id"`
	StartedAt    time.Time                 `json:"started_at"`
	FinishedAt   time.Time                 `json:"finished_at"`
	DryRun       bool                      `json:"dry_run"`
	Canceled     bool                      `json:"canceled"`
	Sources      map[string]*SourceSummary `json:"sources"`
	StoreErrors  int                       `json:"store_errors"`
	StoreEvents  map[string]int            `json:"store_events,omitempty"`
	Digest       string                    `json:"digest,omitempty"`
	DigestFailed string                    `json:"digest_error,omitempty"`
}

// NewRunSummary creates an empty summary
func NewRunSummary(runID string, started time.Time) *RunSummary {
	return &RunSummary{
		RunID:       runID,
		StartedAt:   started,
		Sources:     make(map[string]*SourceSummary),
		StoreEvents: make(map[string]int),
	}
}

// Source returns the summary row for a source, creating it if needed
func (r *RunSummary) Source(id string) *SourceSummary {
	s, ok := r.Sources[id]
	if !ok {
		s = &SourceSummary{SourceID: id, BreakerState: "closed"}
		r.Sources[id] = s
	}
	return s
}

// SourceIDs returns source ids in stable order
func (r *RunSummary) SourceIDs() []string {
	ids := make([]string, 0, len(r.Sources))
	for id := range r.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Tripped reports whether any source ended with an open breaker
func (r *RunSummary) Tripped() bool {
	for _, s := range r.Sources {
		if s.Tripped {
			return true
		}
	}
	return false
}
