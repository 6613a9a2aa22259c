// Package pipeline wires the ingestion stages together: per-source fetch
// workers feed a bounded extraction pool whose results are deduplicated and
// handed to the store gateway.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/mergertracker/internal/cache"
	"github.com/ppiankov/mergertracker/internal/classify"
	"github.com/ppiankov/mergertracker/internal/dedup"
	"github.com/ppiankov/mergertracker/internal/enrich"
	"github.com/ppiankov/mergertracker/internal/extract"
	"github.com/ppiankov/mergertracker/internal/fetch"
	"github.com/ppiankov/mergertracker/internal/logging"
	"github.com/ppiankov/mergertracker/internal/metrics"
	"github.com/ppiankov/mergertracker/internal/model"
	"github.com/ppiankov/mergertracker/internal/score"
	"github.com/ppiankov/mergertracker/internal/store"
	"github.com/ppiankov/mergertracker/internal/util"
	"github.com/ppiankov/mergertracker/internal/validate"
	"github.com/ppiankov/mergertracker/internal/walker"
	"github.com/ppiankov/mergertracker/internal/worker"
)

const (
	// RobotsAgent is the user agent matched against robots.txt groups
	RobotsAgent = "mergertracker"

	// dedupLookback bounds how far back stored deals seed the dedup index
	dedupLookback = 90 * 24 * time.Hour

	flushTimeout = 30 * time.Second

	// defaultBreakerWait is how long a source may sit behind an open breaker
	// when Breaker.MaxWait is unset
	defaultBreakerWait = 30 * time.Minute

	// minBreakerWait floors the pause before a denied job is retried
	minBreakerWait = 10 * time.Millisecond
)

// ErrNoSources is returned when the selection matches no enabled source
var ErrNoSources = errors.New("no sources selected")

// Digester writes the optional post-run digest
type Digester interface {
	Digest(ctx context.Context, deals []model.ExtractedDeal) (string, error)
}

// Deps are the collaborators of a Pipeline. Only Store is required.
type Deps struct {
	Store     store.Store
	Reference enrich.ReferenceData
	Digester  Digester
	Metrics   *metrics.Metrics
	Logger    logging.Logger

	// Transport replaces the HTTP transport of fetches and robots lookups
	Transport http.RoundTripper
	Renderer  fetch.Renderer
	Cache     cache.Cache
	Clock     worker.Clock
	NoJitter  bool
}

// RunOptions select what one run does
type RunOptions struct {
	Sources  []string // Source ids; empty means every enabled source
	MaxItems int      // Overrides Run.MaxItemsPerSource when > 0
	DryRun   bool
	Seeds    []worker.Seed
}

// Pipeline holds the stateless stages shared by every run. Per-run state
// (gates, sessions, dedup index, gateway) is built fresh by Run.
type Pipeline struct {
	cfg        model.Config
	deps       Deps
	normalizer *extract.Normalizer
	classifier *classify.Classifier
	extractor  *extract.Extractor
	enricher   *enrich.Enricher
	logger     logging.Logger
}

// New validates cfg and builds a pipeline
func New(cfg model.Config, deps Deps) (*Pipeline, error) {
	if err := validate.Config(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if deps.Store == nil {
		return nil, errors.New("pipeline requires a store")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = worker.RealClock{}
	}
	if deps.Cache == nil {
		deps.Cache = cache.New(cfg.Cache)
	}
	if deps.Renderer == nil && cfg.HTTP.RenderEndpoint != "" {
		deps.Renderer = fetch.NewRenderService(cfg.HTTP.RenderEndpoint, cfg.HTTP.RenderTimeout, cfg.HTTP.MaxBodyBytes)
	}

	return &Pipeline{
		cfg:        cfg,
		deps:       deps,
		normalizer: extract.NewNormalizer(cfg.Sources),
		classifier: classify.New(cfg.Classify, deps.Logger.With(logging.String("component", "classify"))),
		extractor:  extract.NewExtractor(score.NewScorer()),
		enricher:   enrich.New(deps.Reference, deps.Logger.With(logging.String("component", "enrich"))),
		logger:     deps.Logger,
	}, nil
}

// Run executes one ingestion pass. A summary is returned whenever the run
// got as far as fetching, including when ctx is canceled part-way.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*model.RunSummary, error) {
	sources, err := p.selectSources(opts.Sources)
	if err != nil {
		return nil, err
	}

	r, err := p.newRun(ctx, sources, opts)
	if err != nil {
		return nil, err
	}
	return r.execute(ctx), nil
}

// selectSources returns the named sources, or every enabled source.
// Explicitly named sources run even when disabled.
func (p *Pipeline) selectSources(ids []string) ([]model.SourceConfig, error) {
	if len(ids) == 0 {
		var out []model.SourceConfig
		for _, src := range p.cfg.Sources {
			if src.IsEnabled() {
				out = append(out, src)
			}
		}
		if len(out) == 0 {
			return nil, ErrNoSources
		}
		return out, nil
	}

	byID := make(map[string]model.SourceConfig, len(p.cfg.Sources))
	for _, src := range p.cfg.Sources {
		byID[src.ID] = src
	}
	var (
		out  []model.SourceConfig
		errs []error
		seen = make(map[string]bool)
	)
	for _, id := range ids {
		src, ok := byID[id]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q", fetch.ErrUnknownSource, id))
			continue
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, src)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) newRun(ctx context.Context, sources []model.SourceConfig, opts RunOptions) (*run, error) {
	runID := uuid.NewString()
	logger := p.logger.With(logging.String("run_id", runID))
	m := p.deps.Metrics

	gates := worker.NewRegistry(sources, p.cfg.Breaker, worker.RegistryOptions{
		Clock:    p.deps.Clock,
		Seed:     uint64(time.Now().UnixNano()),
		NoJitter: p.deps.NoJitter,
		OnStateChange: func(sourceID string, from, to worker.State) {
			logger.Info("breaker state changed",
				logging.String("source", sourceID),
				logging.String("from", from.String()),
				logging.String("to", to.String()))
			m.SetBreakerState(sourceID, int(to), to == worker.StateOpen)
		},
	})

	transport := p.deps.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.Proxy = util.NewProxyFunc(p.cfg.HTTP.HTTPProxy, p.cfg.HTTP.HTTPSProxy, p.cfg.HTTP.NoProxy)
		transport = t
	}
	robotsClient := &http.Client{Timeout: p.cfg.HTTP.Timeout, Transport: transport}
	fetcher, err := fetch.NewFetcher(p.cfg.HTTP, sources, gates, fetch.Options{
		Renderer:   p.deps.Renderer,
		Cache:      p.deps.Cache,
		CacheTTL:   p.cfg.Cache.TTL,
		Robots:     util.NewRobotsChecker(robotsClient, RobotsAgent, p.cfg.HTTP.Timeout),
		Identities: fetch.DefaultIdentities(),
		Transport:  transport,
		Logger:     logger.With(logging.String("component", "fetch")),
		Observe: func(sourceID string, via model.FetchVia, status int, elapsed time.Duration) {
			m.ObserveFetch(sourceID, fetchResult(status), elapsed)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build fetcher: %w", err)
	}

	maxItems := p.cfg.Run.MaxItemsPerSource
	if opts.MaxItems > 0 {
		maxItems = opts.MaxItems
	}

	summary := model.NewRunSummary(runID, time.Now().UTC())
	summary.DryRun = opts.DryRun
	for _, src := range sources {
		summary.Source(src.ID)
	}

	r := &run{
		p:        p,
		opts:     opts,
		sources:  sources,
		logger:   logger,
		metrics:  m,
		summary:  summary,
		gates:    gates,
		fetcher:  fetcher,
		walker:   walker.New(maxItems),
		index:    dedup.NewIndex(p.cfg.Dedup),
		runDeals: make(map[string]bool),
		storeCtx: context.WithoutCancel(ctx),
		gateway: store.NewGateway(p.deps.Store, store.GatewayOptions{
			BatchSize: p.cfg.Store.BatchSize,
			DryRun:    opts.DryRun,
			Logger:    logger.With(logging.String("component", "gateway")),
		}),
	}
	return r, nil
}

// fetchResult labels a request for metrics
func fetchResult(status int) string {
	switch {
	case status == 0:
		return "error"
	case status >= 200 && status < 300:
		return "success"
	case status == http.StatusTooManyRequests:
		return "throttled"
	case status >= 500:
		return "5xx"
	default:
		return "4xx"
	}
}
