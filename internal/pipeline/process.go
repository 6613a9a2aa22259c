package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/mergertracker/internal/extract"
	"github.com/ppiankov/mergertracker/internal/logging"
	"github.com/ppiankov/mergertracker/internal/model"
	"github.com/ppiankov/mergertracker/internal/store"
	"github.com/ppiankov/mergertracker/internal/worker"
)

// extractJob turns one fetched article document into deals on the pool
type extractJob struct {
	run *run
	doc *model.RawDocument
}

// docResult is what the pool hands to the sink for one document
type docResult struct {
	sourceID string
	url      string
	article  *model.Article
	relevant bool
	deals    []model.ExtractedDeal
	err      error
}

func (r *docResult) GetError() error {
	return r.err
}

// Execute normalizes, classifies, extracts and enriches. Nothing here
// touches shared state; collect does that.
func (j *extractJob) Execute(ctx context.Context) worker.Result {
	p := j.run.p
	res := &docResult{sourceID: j.doc.SourceID, url: j.doc.URL}

	article, err := p.normalizer.Normalize(j.doc)
	res.article = article
	if err != nil {
		res.err = fmt.Errorf("normalize %s: %w", j.doc.URL, err)
		return res
	}

	if !p.classifier.IsRelevant(article) {
		return res
	}
	res.relevant = true

	deals, err := p.extractor.Extract(article)
	if err != nil {
		res.err = fmt.Errorf("extract %s: %w", j.doc.URL, err)
		return res
	}
	for i := range deals {
		p.enricher.Enrich(ctx, &deals[i])
	}
	res.deals = deals
	return res
}

// collect is the pool sink. It folds one document's deals into the dedup
// index, counts them and hands the changed records to the gateway.
func (r *run) collect(result worker.Result) {
	res, ok := result.(*docResult)
	if !ok {
		return
	}
	logger := r.logger.With(logging.String("source", res.sourceID), logging.String("url", res.url))

	if err := res.GetError(); err != nil {
		if errors.Is(err, extract.ErrNoBody) {
			logger.Info("document skipped", logging.Err(err))
		} else {
			logger.Warn("document failed", logging.Err(err))
		}
		r.mu.Lock()
		r.summary.Source(res.sourceID).Errors++
		r.mu.Unlock()
		r.metrics.Document(res.sourceID, "parse_error")
		return
	}
	if !res.relevant {
		r.metrics.Document(res.sourceID, "irrelevant")
		return
	}
	r.metrics.Document(res.sourceID, "relevant")

	records := []store.Record{store.ArticleRecord(*res.article)}

	r.mu.Lock()
	row := r.summary.Source(res.sourceID)
	row.Relevant++
	for _, d := range res.deals {
		row.Extracted++
		merged := r.index.Merge(d)
		r.runDeals[d.ID] = true

		decision := "accepted"
		switch {
		case merged.Duplicate(d.ID):
			row.Duplicate++
			decision = "duplicate"
		case d.RequiresReview():
			row.Review++
			decision = "review"
		default:
			row.Accepted++
		}
		r.metrics.Deal(res.sourceID, decision)

		for _, u := range merged.Updated {
			records = append(records, store.DealRecord(u))
		}
		logger.Debug("deal extracted",
			logging.String("deal_id", d.ID),
			logging.String("type", string(d.DealType)),
			logging.Float64("confidence", d.Confidence),
			logging.String("decision", decision))
	}
	// Records reach the gateway in merge order, so a later survivor change
	// is never overwritten by an earlier one
	r.submitMu.Lock()
	defer r.submitMu.Unlock()
	r.mu.Unlock()

	outcomes, err := r.gateway.Submit(r.storeCtx, records...)
	if err != nil {
		logger.Error("store submit failed", logging.Err(err))
	}
	for _, o := range outcomes {
		r.metrics.StoreOutcome(string(o.Status))
	}
}
