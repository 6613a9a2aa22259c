package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ppiankov/mergertracker/internal/model"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrPermissionDenied is returned by Acquire when a source's breaker is open
var ErrPermissionDenied = errors.New("permission denied")

// DeniedError carries the remaining cooldown of a denied acquire
type DeniedError struct {
	SourceID   string
	RetryAfter time.Duration
	Err        error
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: source %s: %v", ErrPermissionDenied, e.SourceID, e.Err)
}

// Unwrap lets errors.Is match both ErrPermissionDenied and ErrCircuitOpen
func (e *DeniedError) Unwrap() []error {
	return []error{ErrPermissionDenied, e.Err}
}

// minWait bounds the re-check loop when float rounding leaves a token just short of 1
const minWait = time.Millisecond

// RateGate throttles one source: a token bucket for request spacing, a
// semaphore for the concurrency cap and a circuit breaker.
type RateGate struct {
	sourceID string
	clock    Clock
	limiter  *rate.Limiter
	slots    *semaphore.Weighted
	breaker  *Breaker

	admit     chan struct{} // Serializes token admission; guards spacing
	spacing   time.Duration
	unlimited bool
	jitter    float64

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// GateOptions tunes a RateGate beyond its source config
type GateOptions struct {
	Clock         Clock
	Seed          uint64
	Jitter        float64 // Fraction of spacing applied as ±Jitter; 0 means 0.5
	NoJitter      bool
	OnStateChange func(from, to State)
}

// NewRateGate builds the gate for a single source
func NewRateGate(src model.SourceConfig, bcfg model.BreakerConfig, opts GateOptions) *RateGate {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Jitter <= 0 || opts.Jitter > 1 {
		opts.Jitter = 0.5
	}
	if opts.NoJitter {
		opts.Jitter = 0
	}
	concurrency := int64(src.MaxConcurrency)
	if concurrency <= 0 {
		concurrency = 1
	}

	spacing := src.RateLimit.Spacing()
	limit := rate.Inf
	if spacing > 0 {
		limit = rate.Every(spacing)
	}

	return &RateGate{
		sourceID:  src.ID,
		clock:     opts.Clock,
		limiter:   rate.NewLimiter(limit, 1),
		slots:     semaphore.NewWeighted(concurrency),
		breaker:   NewBreaker(bcfg, opts.Clock, opts.OnStateChange),
		admit:     make(chan struct{}, 1),
		spacing:   spacing,
		unlimited: spacing <= 0,
		jitter:    opts.Jitter,
		rnd:       rand.New(rand.NewPCG(opts.Seed, uint64(len(src.ID)))),
	}
}

// Acquire blocks until the source may issue one request. It fails fast with
// a *DeniedError while the breaker is open.
func (g *RateGate) Acquire(ctx context.Context) (*Permit, error) {
	if err := g.breaker.Check(); err != nil {
		return nil, g.denied(err)
	}

	if err := g.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	grantedAt, err := g.waitToken(ctx)
	if err != nil {
		g.slots.Release(1)
		return nil, err
	}

	// The breaker may have opened while this caller waited
	probe, err := g.breaker.Allow()
	if err != nil {
		g.slots.Release(1)
		return nil, g.denied(err)
	}

	return &Permit{gate: g, probe: probe, grantedAt: grantedAt}, nil
}

// waitToken admits one caller at a time and consumes a token only at the
// moment of grant, so admissions are always at least one spacing apart.
func (g *RateGate) waitToken(ctx context.Context) (time.Time, error) {
	if g.unlimited {
		return g.clock.Now(), nil
	}

	select {
	case g.admit <- struct{}{}:
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	}
	defer func() { <-g.admit }()

	// One draw per admission. A negative draw cannot pull the grant ahead of
	// the token, so it collapses to the token's arrival.
	extra := max(g.jitterFor(g.spacing), 0)
	for {
		now := g.clock.Now()
		tokens := g.limiter.TokensAt(now)
		if tokens >= 1 && g.limiter.AllowN(now, 1) {
			return now, nil
		}

		need := time.Duration((1 - tokens) / float64(g.limiter.Limit()) * float64(time.Second))
		wait := max(need+extra, minWait)
		extra = 0
		if err := g.clock.Sleep(ctx, wait); err != nil {
			return time.Time{}, err
		}
	}
}

// jitterFor returns a uniform offset in [-jitter*d, +jitter*d]
func (g *RateGate) jitterFor(d time.Duration) time.Duration {
	if g.jitter == 0 || d <= 0 {
		return 0
	}
	g.rndMu.Lock()
	f := g.rnd.Float64()*2 - 1
	g.rndMu.Unlock()
	return time.Duration(f * g.jitter * float64(d))
}

// SetMinInterval slows the gate down to at least one request per d
func (g *RateGate) SetMinInterval(d time.Duration) {
	g.admit <- struct{}{}
	defer func() { <-g.admit }()

	if !g.unlimited && d > g.spacing {
		g.spacing = d
		g.limiter.SetLimitAt(g.clock.Now(), rate.Every(d))
	}
}

// SourceID returns the source this gate throttles
func (g *RateGate) SourceID() string { return g.sourceID }

// Breaker exposes the gate's breaker for reporting
func (g *RateGate) Breaker() *Breaker { return g.breaker }

func (g *RateGate) denied(err error) error {
	de := &DeniedError{SourceID: g.sourceID, Err: err}
	var oe *openError
	if errors.As(err, &oe) {
		de.RetryAfter = oe.retryAfter
	}
	return de
}

// Permit is one admitted request slot. Release must be called exactly once.
type Permit struct {
	gate      *RateGate
	probe     bool
	grantedAt time.Time
	once      sync.Once
}

// GrantedAt is the admission time on the gate's clock
func (p *Permit) GrantedAt() time.Time { return p.grantedAt }

// Release frees the concurrency slot and reports the request outcome
func (p *Permit) Release(outcome Outcome) {
	p.once.Do(func() {
		p.gate.breaker.Record(outcome, p.probe)
		p.gate.slots.Release(1)
	})
}
