package dispatch

import (
	"sync"
	"time"
)

// CircuitState represents the state of a handler's circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal state: the handler is a candidate.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the handler failed repeatedly and is excluded.
	CircuitOpen
	// CircuitHalfOpen lets the handler back in to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the per-handler circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int `mapstructure:"failure_threshold" yaml:"failure_threshold"`

	// RecoveryTimeout is how long an open circuit stays open.
	RecoveryTimeout time.Duration `mapstructure:"recovery_timeout" yaml:"recovery_timeout"`

	// SuccessThreshold is the number of half-open successes before closing.
	SuccessThreshold int `mapstructure:"success_threshold" yaml:"success_threshold"`
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
	}
}

// CircuitBreaker temporarily removes a repeatedly failing handler from
// candidacy.
type CircuitBreaker struct {
	name   string
	config BreakerConfig
	now    func() time.Time

	mu              sync.Mutex
	state           CircuitState
	failures        int
	consecutiveSucc int
	lastStateChange time.Time

	onStateChange func(name string, from, to CircuitState)
}

// NewCircuitBreaker creates a closed breaker for the named handler.
func NewCircuitBreaker(name string, config BreakerConfig) *CircuitBreaker {
	defaults := DefaultBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = defaults.RecoveryTimeout
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}

	return &CircuitBreaker{
		name:            name,
		config:          config,
		now:             time.Now,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// Allow reports whether the handler may be selected. An open circuit whose
// recovery timeout has elapsed moves to half-open and allows the request.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.lastStateChange) >= cb.config.RecoveryTimeout {
			cb.transitionTo(CircuitHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records a successful Process call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == CircuitHalfOpen {
		cb.consecutiveSucc++
		if cb.consecutiveSucc >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

// RecordFailure records a failed Process call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.consecutiveSucc = 0

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the circuit closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(CircuitClosed)
}

// transitionTo changes the circuit state (must hold lock).
func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = cb.now()

	if newState == CircuitClosed {
		cb.failures = 0
		cb.consecutiveSucc = 0
	}

	if cb.onStateChange != nil {
		go cb.onStateChange(cb.name, oldState, newState)
	}
}
