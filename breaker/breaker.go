// Package breaker implements a lazy circuit breaker.
//
// The breaker has three states: closed (calls pass through), open
// (calls rejected without touching the dependency), and half-open
// (trial calls permitted). There is no background timer; every
// transition is evaluated at call time from elapsed wall-clock time,
// so an idle breaker costs nothing.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the circuit is open and the call was
// rejected without invoking the wrapped operation.
var ErrOpen = errors.New("tripwire: circuit open, service unavailable")

// State identifies a breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Config holds breaker tuning. Zero values take defaults.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit. Default 5.
	FailureThreshold int

	// MonitoringPeriod ages failures out: when a call is evaluated and
	// more than this has elapsed since the last failure, the failure
	// count resets. Default 10s.
	MonitoringPeriod time.Duration

	// ResetTimeout is how long an open circuit rejects calls before
	// permitting half-open trials. Default 60s.
	ResetTimeout time.Duration

	// HalfOpenSuccesses is the consecutive successes needed in
	// half-open to close the circuit. Default 3.
	HalfOpenSuccesses int

	// OnStateChange runs on every transition, outside the lock.
	OnStateChange func(from, to State)

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:  5,
		MonitoringPeriod:  10 * time.Second,
		ResetTimeout:      60 * time.Second,
		HalfOpenSuccesses: 3,
	}
}

// Breaker is a circuit breaker guarding one dependency. Safe for
// concurrent use.
type Breaker struct {
	cfg Config

	mu          sync.Mutex
	state       State
	failures    int
	successes   int // consecutive successes while half-open
	lastFailure time.Time
	pending     []stateChange
}

type stateChange struct {
	from, to State
}

// New creates a breaker with the given configuration.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.MonitoringPeriod <= 0 {
		cfg.MonitoringPeriod = 10 * time.Second
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg}
}

// Allow reports whether a call may proceed. It returns ErrOpen when the
// circuit is open and the reset timeout has not elapsed. The caller
// must report the call's outcome via Success or Failure.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	now := b.cfg.Now()

	var result error
	switch b.state {
	case StateClosed:
		// Failures age out of the monitoring window.
		if b.failures > 0 && now.Sub(b.lastFailure) > b.cfg.MonitoringPeriod {
			b.failures = 0
		}

	case StateOpen:
		if now.Sub(b.lastFailure) > b.cfg.ResetTimeout {
			b.successes = 0
			b.transition(StateHalfOpen)
		} else {
			result = ErrOpen
		}

	case StateHalfOpen:
		// Trial calls pass through; outcome recording decides the rest.
	}

	hook := b.takeHook()
	b.mu.Unlock()
	hook()
	return result
}

// Success records a successful call.
func (b *Breaker) Success() {
	b.mu.Lock()
	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenSuccesses {
			b.failures = 0
			b.transition(StateClosed)
		}
	default:
		b.failures = 0
	}
	hook := b.takeHook()
	b.mu.Unlock()
	hook()
}

// Failure records a failed call.
func (b *Breaker) Failure() {
	b.mu.Lock()
	now := b.cfg.Now()

	switch b.state {
	case StateHalfOpen:
		b.lastFailure = now
		b.transition(StateOpen)
	case StateClosed:
		if now.Sub(b.lastFailure) > b.cfg.MonitoringPeriod {
			b.failures = 0
		}
		b.failures++
		b.lastFailure = now
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	default:
		// Already open; nothing to count.
	}
	hook := b.takeHook()
	b.mu.Unlock()
	hook()
}

// State returns the current state without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transition switches state and records the change for the hook.
// Must be called with the lock held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.pending = append(b.pending, stateChange{from, to})
	}
}

// takeHook drains pending state changes into a closure that invokes
// OnStateChange outside the lock. Must be called with the lock held.
func (b *Breaker) takeHook() func() {
	if len(b.pending) == 0 {
		return func() {}
	}
	changes := b.pending
	b.pending = nil
	return func() {
		for _, c := range changes {
			b.cfg.OnStateChange(c.from, c.to)
		}
	}
}

// Do runs op through the breaker: admission check, then outcome
// recording. The operation's own error passes through unchanged.
func Do[T any](b *Breaker, op func() (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}
	result, err := op()
	if err != nil {
		b.Failure()
		return zero, err
	}
	b.Success()
	return result, nil
}
