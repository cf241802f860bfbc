// Package resilience keeps an intake session answering when a collaborator
// backend degrades mid-call. A [CircuitBreaker] watches one backend for
// consecutive failures and stops calling it once it is clearly down, so a
// hung transcription or chat endpoint does not stall every phrase cycle. A
// [FallbackGroup] chains several backends of the same provider kind behind
// one interface and fails the call over instead of letting the line go
// silent.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// refuses calls to a backend it considers down.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call; the backend is considered healthy.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen]; the backend failed
	// too many times in a row and is being left alone until the reset
	// timeout passes.
	StateOpen

	// StateHalfOpen lets a small number of trial calls through after the
	// reset timeout. Enough successes close the breaker; any failure opens
	// it again.
	StateHalfOpen
)

// String implements fmt.Stringer.
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

// CircuitBreakerConfig tunes a [CircuitBreaker]. The zero value gets usable
// defaults from [NewCircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the guarded backend in log lines (e.g. "whisper",
	// "coqui-backup").
	Name string

	// MaxFailures is how many consecutive failures open the breaker.
	// Default: 5.
	MaxFailures int

	// ResetTimeout is how long an open breaker waits before letting trial
	// calls through again. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is how many trial calls the half-open state permits, and
	// how many of them must succeed for the breaker to close. Default: 3.
	HalfOpenMax int
}

// CircuitBreaker guards one backend with the closed/open/half-open cycle.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu         sync.Mutex
	state      State
	failures   int
	lastFailAt time.Time
	trials     int
	trialFails int
}

// NewCircuitBreaker creates a breaker from cfg, substituting defaults for
// zero-valued fields.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
	}
}

// Execute runs fn unless the breaker is refusing calls. In the open state it
// returns [ErrCircuitOpen] without touching the backend; in the half-open
// state only the trial budget gets through. fn runs without the internal
// lock held, so slow backend calls never block other callers' admission
// checks.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.trials = 0
		cb.trialFails = 0
		slog.Info("circuit breaker allowing trial calls", "name", cb.name)
	case StateHalfOpen:
		if cb.trials >= cb.halfOpenMax {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	trial := cb.state == StateHalfOpen
	if trial {
		cb.trials++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.settle(err, trial)
	return err
}

// settle updates the failure accounting after one call. Caller holds cb.mu.
func (cb *CircuitBreaker) settle(err error, trial bool) {
	if err == nil {
		if !trial {
			cb.failures = 0
			return
		}
		if cb.trials-cb.trialFails >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.failures = 0
			cb.trials = 0
			cb.trialFails = 0
			slog.Info("circuit breaker closed, backend recovered", "name", cb.name)
		}
		return
	}

	cb.lastFailAt = time.Now()
	if trial {
		// One failed trial is enough evidence the backend is still down.
		cb.trialFails++
		cb.state = StateOpen
		cb.failures = cb.maxFailures
		slog.Warn("circuit breaker re-opened, trial call failed", "name", cb.name)
		return
	}
	cb.failures++
	if cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		slog.Warn("circuit breaker opened",
			"name", cb.name, "consecutive_failures", cb.failures)
	}
}

// State reports the breaker's mode. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the stored state flips on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && time.Since(cb.lastFailAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears all failure accounting, for
// example after an operator has restarted the backend.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.trials = 0
	cb.trialFails = 0
	slog.Info("circuit breaker reset", "name", cb.name)
}
