// Package digest writes an optional prose digest of a run's accepted deals.
// The digest is read-only output: it never feeds back into scores, bands or
// dedup decisions.
package digest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/ppiankov/mergertracker/internal/model"
)

const (
	defaultMaxTokens = 800
	maxPromptDeals   = 25
	maxPromptURLs    = 30
)

// ErrCitationLeak is returned when a provider cites a URL outside the allowlist
var ErrCitationLeak = errors.New("digest cited a URL that is not a deal source")

// Provider is an LLM backend
type Provider interface {
	// Name returns the provider name
	Name() string

	// Summarize generates the digest text
	Summarize(ctx context.Context, req Request) (*Response, error)

	// IsAvailable checks the backend is configured and reachable
	IsAvailable(ctx context.Context) bool
}

// Request is the input to a provider
type Request struct {
	Deals []model.ExtractedDeal

	// SourceURLs is the allowlist of URLs the model may cite
	SourceURLs []string

	Prompt    string
	Model     string
	MaxTokens int
}

// Response is a provider's output
type Response struct {
	Summary    string
	CitedURLs  []string
	Model      string
	TokensUsed int
}

const systemPrompt = "You write short factual digests of M&A deal records. You only restate the records you are given."

// BuildPrompt renders the deal list with the citation allowlist
func BuildPrompt(deals []model.ExtractedDeal, sourceURLs []string) string {
	var b strings.Builder
	b.WriteString("Summarize the following merger and acquisition deals extracted from news coverage.\n\n")
	b.WriteString("RULES:\n")
	b.WriteString("1. Cite only URLs from this list:")
	b.WriteString(joinURLs(sourceURLs))
	b.WriteString("\n2. Do not add facts, values or parties that are not in the records.\n")
	b.WriteString("3. Say \"undisclosed\" when a value is missing.\n\n")
	b.WriteString("Deals:\n")

	for i, d := range deals {
		if i >= maxPromptDeals {
			fmt.Fprintf(&b, "... and %d more deals\n", len(deals)-maxPromptDeals)
			break
		}
		fmt.Fprintf(&b, "- %s: %s", d.DealType, d.TargetCompany)
		if acq := d.Acquirer(); acq != "" {
			fmt.Fprintf(&b, " / %s", acq)
		}
		if d.Value != nil {
			fmt.Fprintf(&b, ", %s %s", d.Value.Amount.String(), d.Value.Currency)
		} else {
			b.WriteString(", undisclosed")
		}
		fmt.Fprintf(&b, ", %s, confidence %.2f (%s)\n", d.DealStatus, d.Confidence, d.SourceURL)
	}

	b.WriteString("\nWrite 3-5 sentences grouped by industry where possible.")
	return b.String()
}

// SourceURLs returns the distinct source URLs of deals in input order
func SourceURLs(deals []model.ExtractedDeal) []string {
	var out []string
	for _, d := range deals {
		if d.SourceURL != "" && !slices.Contains(out, d.SourceURL) {
			out = append(out, d.SourceURL)
		}
	}
	return out
}

func joinURLs(urls []string) string {
	if len(urls) == 0 {
		return " (none)"
	}
	var b strings.Builder
	for i, u := range urls {
		if i >= maxPromptURLs {
			fmt.Fprintf(&b, "\n   ... and %d more URLs", len(urls)-maxPromptURLs)
			break
		}
		b.WriteString("\n   - ")
		b.WriteString(u)
	}
	return b.String()
}

var urlPattern = regexp.MustCompile(`https?://[^\s\)\]>"]+`)

// extractURLs returns the distinct URLs cited in text
func extractURLs(text string) []string {
	var unique []string
	for _, u := range urlPattern.FindAllString(text, -1) {
		u = strings.TrimRight(u, ".,;:!?")
		if !slices.Contains(unique, u) {
			unique = append(unique, u)
		}
	}
	return unique
}

// checkCitations fails on the first URL outside allowed
func checkCitations(cited, allowed []string) error {
	for _, u := range cited {
		if !slices.Contains(allowed, u) {
			return fmt.Errorf("%w: %s", ErrCitationLeak, u)
		}
	}
	return nil
}
