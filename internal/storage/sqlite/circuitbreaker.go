package sqlite

import (
	"errors"
	"sync"
	"time"
)

// BreakerState represents the state of the circuit breaker.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the breaker is rejecting requests. The
// HTTP layer maps it to 503 SERVICE_UNAVAILABLE.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker protects the store from hammering a wedged SQLite file:
// CLOSED (normal) -> OPEN (failing fast) -> HALF_OPEN (one probe) -> CLOSED.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int
	threshold    int
	resetTimeout time.Duration
	lastFailure  time.Time
	nowFunc      func() time.Time
}

// NewCircuitBreaker creates a breaker that opens after threshold
// consecutive failures and probes again after resetTimeout.
func NewCircuitBreaker(threshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		nowFunc:      time.Now,
	}
}

// Execute runs fn through the breaker.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateClosed:
		cb.mu.Unlock()
		err := fn()
		cb.record(err)
		return err

	case StateOpen:
		if cb.nowFunc().Sub(cb.lastFailure) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		// One probe per reset cycle.
		cb.state = StateHalfOpen
		cb.mu.Unlock()
		err := fn()
		cb.mu.Lock()
		if err != nil {
			cb.state = StateOpen
			cb.lastFailure = cb.nowFunc()
		} else {
			cb.state = StateClosed
			cb.failures = 0
		}
		cb.mu.Unlock()
		return err

	default: // StateHalfOpen: probe already in flight
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		if cb.failures >= cb.threshold {
			cb.state = StateOpen
			cb.lastFailure = cb.nowFunc()
		}
		return
	}
	cb.failures = 0
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
