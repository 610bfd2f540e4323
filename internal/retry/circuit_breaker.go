package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"deskbridge/internal/errors"
)

// ── Breaker state ────────────────────────────────────────────────────

// State is the position of a [Breaker].
type State int

const (
	// StateClosed lets every write through.
	StateClosed State = iota
	// StateOpen rejects writes until the cool-down has elapsed.
	StateOpen
	// StateHalfOpen lets trials through; a failure reopens.
	StateHalfOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// ── Configuration ────────────────────────────────────────────────────

// BreakerConfig configures a [Breaker].  Zero fields take the values
// from [DefaultBreakerConfig].
type BreakerConfig struct {
	MaxFailures  int           // consecutive failures that open the breaker
	Cooldown     time.Duration // time spent open before the first trial
	Trials       int           // successful trials needed to close again
	Clock        clock.Clock
	// OnStateChange runs outside the lock after every transition.
	OnStateChange func(from, to State)
}

// DefaultBreakerConfig returns the settings used by the socket relay.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		MaxFailures: 5,
		Cooldown:    30 * time.Second,
		Trials:      2,
	}
}

// Stats is a point-in-time view of a [Breaker].
type Stats struct {
	State    State
	Failures int       // consecutive failures
	OpenedAt time.Time // zero unless State is open or half-open
}

// ── Breaker ──────────────────────────────────────────────────────────

// Breaker stops writes to a peer that keeps failing.  Rejections wrap
// [errors.ErrCircuitOpen].  Cancellations and writes to a closed relay
// say nothing about the peer and are not counted.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	trials   int
	openedAt time.Time
}

// NewBreaker returns a closed breaker.  cfg may be nil.
func NewBreaker(cfg *BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	c := *def
	if cfg != nil {
		c = *cfg
		if c.MaxFailures <= 0 {
			c.MaxFailures = def.MaxFailures
		}
		if c.Cooldown <= 0 {
			c.Cooldown = def.Cooldown
		}
		if c.Trials <= 0 {
			c.Trials = def.Trials
		}
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return &Breaker{cfg: c}
}

// Execute runs fn unless the breaker is open, and records its outcome.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.Record(err)
	return err
}

// Allow reports whether a write may go ahead.  An open breaker whose
// cool-down has elapsed moves to half-open and allows the trial.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	if b.state != StateOpen {
		b.mu.Unlock()
		return nil
	}
	left := b.cfg.Cooldown - b.cfg.Clock.Since(b.openedAt)
	if left > 0 {
		failures := b.failures
		b.mu.Unlock()
		return fmt.Errorf("%w after %d failures, next trial in %v",
			errors.ErrCircuitOpen, failures, left.Round(time.Second))
	}
	notify := b.moveLocked(StateHalfOpen)
	b.mu.Unlock()
	notify()
	return nil
}

// Record feeds the outcome of one write into the breaker.
func (b *Breaker) Record(err error) {
	if ignored(err) {
		return
	}

	b.mu.Lock()
	var next State
	switch {
	case err != nil:
		b.failures++
		b.trials = 0
		next = b.state
		if b.state == StateHalfOpen || b.failures >= b.cfg.MaxFailures {
			next = StateOpen
			b.openedAt = b.cfg.Clock.Now()
		}
	case b.state == StateHalfOpen:
		b.trials++
		next = StateHalfOpen
		if b.trials >= b.cfg.Trials {
			b.failures, b.trials = 0, 0
			next = StateClosed
		}
	default:
		b.failures = 0
		next = b.state
	}
	notify := b.moveLocked(next)
	b.mu.Unlock()
	notify()
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns the current state and failure count.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Stats{State: b.state, Failures: b.failures}
	if b.state != StateClosed {
		s.OpenedAt = b.openedAt
	}
	return s
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.failures, b.trials = 0, 0
	notify := b.moveLocked(StateClosed)
	b.mu.Unlock()
	notify()
}

// ── internal ─────────────────────────────────────────────────────────

// moveLocked switches state and returns the callback to run once the
// lock is released.
func (b *Breaker) moveLocked(to State) func() {
	from := b.state
	if from == to || b.cfg.OnStateChange == nil {
		b.state = to
		return func() {}
	}
	b.state = to
	fn := b.cfg.OnStateChange
	return func() { fn(from, to) }
}

func ignored(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, errors.ErrClosed)
}
