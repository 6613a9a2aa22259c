package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ppiankov/mergertracker/internal/model"
)

// RenderSummary writes the per-source table of a run to w
func RenderSummary(w io.Writer, s *model.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("run %s (%s)", s.RunID, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond)))

	t.AppendHeader(table.Row{"Source", "Fetched", "Relevant", "Extracted", "Accepted", "Review", "Duplicate", "Errors", "Breaker"})

	var total model.SourceSummary
	for _, id := range s.SourceIDs() {
		row := s.Sources[id]
		breaker := row.BreakerState
		if row.BreakerOpens > 0 {
			breaker = fmt.Sprintf("%s (opened %d)", breaker, row.BreakerOpens)
		}
		t.AppendRow(table.Row{
			id, row.Fetched, row.Relevant, row.Extracted,
			row.Accepted, row.Review, row.Duplicate, row.Errors, breaker,
		})
		total.Fetched += row.Fetched
		total.Relevant += row.Relevant
		total.Extracted += row.Extracted
		total.Accepted += row.Accepted
		total.Review += row.Review
		total.Duplicate += row.Duplicate
		total.Errors += row.Errors
	}

	var flags []string
	if s.DryRun {
		flags = append(flags, "dry run")
	}
	if s.Canceled {
		flags = append(flags, "canceled")
	}
	if s.Tripped() {
		flags = append(flags, "tripped")
	}
	status := "ok"
	if len(flags) > 0 {
		status = strings.Join(flags, ", ")
	}
	t.AppendFooter(table.Row{
		"Total", total.Fetched, total.Relevant, total.Extracted,
		total.Accepted, total.Review, total.Duplicate, total.Errors, status,
	})
	t.Render()

	if len(s.StoreEvents) > 0 {
		labels := make([]string, 0, len(s.StoreEvents))
		for label := range s.StoreEvents {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			_, _ = fmt.Fprintf(w, "%s: %d\n", label, s.StoreEvents[label])
		}
	}
	if s.StoreErrors > 0 {
		_, _ = fmt.Fprintf(w, "store errors: %d\n", s.StoreErrors)
	}
	if s.DigestFailed != "" {
		_, _ = fmt.Fprintf(w, "digest failed: %s\n", s.DigestFailed)
	} else if s.Digest != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n", s.Digest)
	}
}

// WriteSummaryJSON writes the summary to path, creating parent directories
func WriteSummaryJSON(path string, s *model.RunSummary) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create summary directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
