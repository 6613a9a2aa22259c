package worker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/mergertracker/internal/model"
)

// ErrCircuitOpen is returned while a source's breaker rejects calls
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Outcome is what a permit holder reports back after its request
type Outcome int

const (
	OutcomeSuccess   Outcome = iota // 2xx
	OutcomeFailure                  // Non-2xx or network failure
	OutcomeThrottled                // 429
	OutcomeNeutral                  // Canceled or never sent; not counted
)

// OutcomeForStatus maps an HTTP status to a breaker outcome
func OutcomeForStatus(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status == 429:
		return OutcomeThrottled
	default:
		return OutcomeFailure
	}
}

// Breaker trips after consecutive failures or repeated throttling and
// recovers through a single half-open probe per cooldown cycle.
type Breaker struct {
	mu            sync.Mutex
	cfg           model.BreakerConfig
	clock         Clock
	state         State
	consecutive   int
	throttles     []time.Time
	openedAt      time.Time
	cooldown      time.Duration
	opens         int
	probing       bool
	onStateChange func(from, to State)
}

// NewBreaker creates a closed breaker
func NewBreaker(cfg model.BreakerConfig, clock Clock, onStateChange func(from, to State)) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ThrottleThreshold <= 0 {
		cfg.ThrottleThreshold = cfg.FailureThreshold
	}
	if cfg.ThrottleWindow <= 0 {
		cfg.ThrottleWindow = 10 * time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	if cfg.MaxCooldown < cfg.Cooldown {
		cfg.MaxCooldown = cfg.Cooldown
	}
	if clock == nil {
		clock = RealClock{}
	}

	return &Breaker{
		cfg:           cfg,
		clock:         clock,
		cooldown:      cfg.Cooldown,
		onStateChange: onStateChange,
	}
}

// Check fails fast while the breaker is open. It never claims the probe.
func (b *Breaker) Check() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if remaining := b.remaining(); remaining > 0 {
			return &openError{retryAfter: remaining}
		}
	case StateHalfOpen:
		if b.probing {
			return &openError{retryAfter: b.cooldown}
		}
	}
	return nil
}

// Allow admits a call. probe is true when the call is the half-open probe.
func (b *Breaker) Allow() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		remaining := b.remaining()
		if remaining > 0 {
			return false, &openError{retryAfter: remaining}
		}
		b.transitionTo(StateHalfOpen)
	}

	if b.state == StateHalfOpen {
		if b.probing {
			return false, &openError{retryAfter: b.cooldown}
		}
		b.probing = true
		return true, nil
	}

	return false, nil
}

// Record feeds the outcome of an admitted call back into the breaker
func (b *Breaker) Record(outcome Outcome, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe && b.state == StateHalfOpen {
		b.probing = false
		switch outcome {
		case OutcomeSuccess:
			b.cooldown = b.cfg.Cooldown
			b.transitionTo(StateClosed)
		case OutcomeFailure, OutcomeThrottled:
			b.cooldown = min(b.cooldown*2, b.cfg.MaxCooldown)
			b.open()
		}
		return
	}

	if b.state != StateClosed {
		return
	}

	switch outcome {
	case OutcomeSuccess:
		b.consecutive = 0
	case OutcomeFailure:
		b.consecutive++
	case OutcomeThrottled:
		b.consecutive++
		now := b.clock.Now()
		b.throttles = append(pruneBefore(b.throttles, now.Add(-b.cfg.ThrottleWindow)), now)
	}

	if b.consecutive >= b.cfg.FailureThreshold || len(b.throttles) >= b.cfg.ThrottleThreshold {
		b.open()
	}
}

// State returns the current state without advancing it
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Opens returns how many times the breaker has opened
func (b *Breaker) Opens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

// Cooldown returns the cooldown applied to the current or next open
func (b *Breaker) Cooldown() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cooldown
}

func (b *Breaker) open() {
	b.openedAt = b.clock.Now()
	b.opens++
	b.consecutive = 0
	b.throttles = b.throttles[:0]
	b.transitionTo(StateOpen)
}

func (b *Breaker) remaining() time.Duration {
	return b.cooldown - b.clock.Now().Sub(b.openedAt)
}

func (b *Breaker) transitionTo(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	return times[i:]
}

type openError struct {
	retryAfter time.Duration
}

func (e *openError) Error() string {
	return fmt.Sprintf("%s: retry after %v", ErrCircuitOpen, e.retryAfter)
}

func (e *openError) Unwrap() error { return ErrCircuitOpen }
