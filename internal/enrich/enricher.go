// Package enrich refines deal industry and geography tags from reference
// data. Enrichment never blocks persistence: lookup failures are recorded
// on the deal and the extractor's tags are kept.
package enrich

import (
	"context"
	"fmt"

	"github.com/ppiankov/mergertracker/internal/logging"
	"github.com/ppiankov/mergertracker/internal/model"
)

// ReferenceData classifies companies by industry and region
type ReferenceData interface {
	LookupCompany(ctx context.Context, name string) (industry, region string, ok bool, err error)
}

// Enricher fills or refines deal tags
type Enricher struct {
	ref    ReferenceData
	logger logging.Logger
}

// New creates an enricher. A nil ReferenceData uses the built-in table.
func New(ref ReferenceData, logger logging.Logger) *Enricher {
	if ref == nil {
		ref = DefaultTable()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Enricher{ref: ref, logger: logger}
}

// Enrich looks up the target, then the acquirer. Reference answers replace
// the extractor's text-derived tags; the confidence score is not touched.
// A failed lookup leaves both tags null and records why.
func (e *Enricher) Enrich(ctx context.Context, deal *model.ExtractedDeal) {
	if deal == nil {
		return
	}

	var industry, region string
	for _, name := range []string{deal.TargetCompany, deal.Acquirer()} {
		if name == "" {
			continue
		}
		ind, reg, ok, err := e.ref.LookupCompany(ctx, name)
		if err != nil {
			deal.EnrichmentError = fmt.Sprintf("lookup %q: %v", name, err)
			deal.IndustryTag = nil
			deal.GeographyTag = nil
			e.logger.Warn("enrichment lookup failed",
				logging.String("deal_id", deal.ID),
				logging.String("company", name),
				logging.Err(err))
			return
		}
		if !ok {
			continue
		}
		if industry == "" {
			industry = ind
		}
		if region == "" {
			region = reg
		}
	}

	if industry != "" {
		deal.IndustryTag = model.StringPtr(industry)
	}
	if region != "" {
		deal.GeographyTag = model.StringPtr(region)
	}
}
