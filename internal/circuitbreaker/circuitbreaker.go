package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Call while the breaker is rejecting requests.
var ErrOpen = errors.New("circuit breaker open")

// State is the circuit breaker state (Closed, Open, HalfOpen).
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
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

// Config holds circuit breaker parameters.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	// Timeout is how long the breaker stays open before letting a probe through.
	Timeout   time.Duration
	Component string
	// IsFailure decides which errors count against the upstream. nil counts every error.
	// A provider answering "city not found" is healthy and should not trip the breaker.
	IsFailure     func(error) bool
	OnStateChange func(component string, from, to State)
}

// CircuitBreaker protects upstream calls by opening after consecutive failures
// and allowing probe requests in half-open state.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	openedAt     time.Time
	cfg          Config
	now          func() time.Time
}

// New creates a CircuitBreaker; zero thresholds default to 5 failures, 2 successes and 30s.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{state: StateClosed, cfg: cfg, now: time.Now}
}

// Call runs fn when the circuit allows it, otherwise returns ErrOpen without calling fn.
// The error from fn is returned unchanged.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allow() {
		return ErrOpen
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return true
	}
	if cb.now().Sub(cb.openedAt) < cb.cfg.Timeout {
		return false
	}
	cb.successCount = 0
	cb.transitionLocked(StateHalfOpen)
	return true
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && (cb.cfg.IsFailure == nil || cb.cfg.IsFailure(err)) {
		cb.failureCount++
		if cb.state == StateHalfOpen || cb.failureCount >= cb.cfg.FailureThreshold {
			cb.failureCount = 0
			cb.openedAt = cb.now()
			cb.transitionLocked(StateOpen)
		}
		return
	}

	cb.failureCount = 0
	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.cfg.SuccessThreshold {
			cb.successCount = 0
			cb.transitionLocked(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) transitionLocked(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Component, from, to)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
