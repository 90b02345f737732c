// Package resilience provides a circuit breaker and a failover speech
// platform built on it.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open).
// Because speech completes asynchronously, a call is split into
// [CircuitBreaker.Acquire], which admits or rejects it, and the returned
// finish function, which records the outcome whenever it becomes known.
// [Failover] gives each configured speech platform its own breaker so that a
// failing primary is bypassed in favour of healthy fallbacks.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker is open and the reset timeout
// has not yet elapsed, or when the half-open probe budget is used up.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen admits a limited number of probe calls. If they all
	// succeed the breaker closes; any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before transitioning to
	// half-open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close the
	// breaker again. Default: 1.
	HalfOpenMax int

	// Now overrides the clock. Tests only.
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	now          func() time.Time
	log          *slog.Logger

	mu               sync.Mutex
	state            State
	consecutiveFail  int
	openedAt         time.Time
	halfOpenAdmitted int
	halfOpenOK       int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields are
// replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		now:          cfg.Now,
		log:          slog.Default().With("component", "circuit_breaker", "name", cfg.Name),
		state:        StateClosed,
	}
}

// Acquire admits one call. On success it returns a finish function that must
// be called exactly once with the call's outcome; later calls to finish are
// ignored. It returns [ErrCircuitOpen] when the call is rejected.
func (cb *CircuitBreaker) Acquire() (finish func(error), err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return nil, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.halfOpenAdmitted = 0
		cb.halfOpenOK = 0
		cb.log.Info("circuit breaker transitioning to half-open")
	case StateHalfOpen:
		if cb.halfOpenAdmitted >= cb.halfOpenMax {
			return nil, ErrCircuitOpen
		}
	}

	probe := cb.state == StateHalfOpen
	if probe {
		cb.halfOpenAdmitted++
	}

	var once sync.Once
	return func(err error) {
		once.Do(func() { cb.record(probe, err) })
	}, nil
}

// Execute runs fn if the breaker admits it and records its result.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	finish, err := cb.Acquire()
	if err != nil {
		return err
	}
	err = fn()
	finish(err)
	return err
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.consecutiveFail++
		// A probe outcome that arrives after the breaker already re-opened
		// must not push the reset timer further out.
		if probe && cb.state != StateHalfOpen {
			return
		}
		if probe || cb.consecutiveFail >= cb.maxFailures {
			if cb.state != StateOpen {
				cb.log.Warn("circuit breaker opened", "consecutive_failures", cb.consecutiveFail, "err", err)
			}
			cb.state = StateOpen
			cb.openedAt = cb.now()
		}
		return
	}

	cb.consecutiveFail = 0
	if probe && cb.state == StateHalfOpen {
		cb.halfOpenOK++
		if cb.halfOpenOK >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.log.Info("circuit breaker closed after successful probes")
		}
	}
}

// State returns the current [State]. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// [CircuitBreaker.Acquire].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.halfOpenAdmitted = 0
	cb.halfOpenOK = 0
	cb.log.Info("circuit breaker manually reset")
}
