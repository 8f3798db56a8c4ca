package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Common errors
var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// State represents the state of a circuit breaker. The gauge encoding
// (0=closed, 1=half-open, 2=open) is part of the metrics contract.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds per-target configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name                  string
	FailureThreshold      int           // Consecutive failures before the circuit opens
	SuccessThreshold      int           // Successes while half-open required to close
	OpenTimeout           time.Duration // How long an open circuit waits before allowing a trial call
	HalfOpenMaxConcurrent int           // Cap on concurrent trial calls while half-open
	CountClientErrors     bool          // Whether caller-fault failures count toward opening
}

// DefaultCircuitBreakerConfig returns sensible defaults
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:                  name,
		FailureThreshold:      DefaultFailureThreshold,
		SuccessThreshold:      DefaultSuccessThreshold,
		OpenTimeout:           DefaultOpenTimeout,
		HalfOpenMaxConcurrent: DefaultHalfOpenMaxConcurrent,
		CountClientErrors:     false,
	}
}

// CircuitBreakerStats is a read-only snapshot of a breaker's counters
type CircuitBreakerStats struct {
	Name                 string    `json:"name"`
	State                string    `json:"state"`
	ConsecutiveFailures  int       `json:"consecutiveFailures"`
	ConsecutiveSuccesses int       `json:"consecutiveSuccesses"`
	HalfOpenInFlight     int       `json:"halfOpenInFlight"`
	LastFailureTime      time.Time `json:"lastFailureTime"`
	TotalSuccesses       uint64    `json:"totalSuccesses"`
	TotalFailures        uint64    `json:"totalFailures"`
}

// CircuitBreaker guards calls to a single downstream target. Calls are gated
// by CanExecute and every gated call must report exactly one of RecordSuccess
// or RecordFailure, exactly once, or the in-flight and failure counters will
// drift. The breaker judges the final outcome of a call, so a caller wrapping
// the call in retries reports once per call, not once per attempt.
type CircuitBreaker struct {
	name   string
	config *CircuitBreakerConfig
	logger *slog.Logger

	mu                   sync.Mutex
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenInFlight     int
	lastFailureTime      time.Time
	totalSuccesses       uint64
	totalFailures        uint64

	now           func() time.Time
	onStateChange func(name string, from, to State)
}

// NewCircuitBreaker creates a new circuit breaker in the closed state.
// Zero-valued thresholds in the config are replaced with the defaults.
func NewCircuitBreaker(config *CircuitBreakerConfig, logger *slog.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig("default")
	} else {
		cfg := *config
		if cfg.FailureThreshold <= 0 {
			cfg.FailureThreshold = DefaultFailureThreshold
		}
		if cfg.SuccessThreshold <= 0 {
			cfg.SuccessThreshold = DefaultSuccessThreshold
		}
		if cfg.OpenTimeout <= 0 {
			cfg.OpenTimeout = DefaultOpenTimeout
		}
		if cfg.HalfOpenMaxConcurrent <= 0 {
			cfg.HalfOpenMaxConcurrent = DefaultHalfOpenMaxConcurrent
		}
		config = &cfg
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CircuitBreaker{
		name:   config.Name,
		config: config,
		logger: logger,
		state:  StateClosed,
		now:    time.Now,
	}
}

// OnStateChange registers a hook invoked on every state transition. The hook
// runs while the breaker lock is held: it must be fast and must not call back
// into the breaker. Set it before the breaker receives traffic.
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// CanExecute evaluates whether a call may proceed right now. While half-open
// a true return reserves one of the limited trial slots; the reservation is
// released by the matching RecordSuccess or RecordFailure.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) >= cb.config.OpenTimeout {
			cb.transition(StateHalfOpen)
			// The call that triggers the transition is the first trial call.
			cb.halfOpenInFlight = 1
			return true
		}
		return false

	case StateHalfOpen:
		if cb.halfOpenInFlight < cb.config.HalfOpenMaxConcurrent {
			cb.halfOpenInFlight++
			return true
		}
		return false
	}

	return false
}

// RecordSuccess reports a successful gated call
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalSuccesses++

	switch cb.state {
	case StateClosed:
		// Successes decay the failure counter so sparse, non-consecutive
		// failures do not accumulate toward opening.
		if cb.consecutiveFailures > 0 {
			cb.consecutiveFailures--
		}

	case StateHalfOpen:
		if cb.halfOpenInFlight > 0 {
			cb.halfOpenInFlight--
		}
		cb.consecutiveSuccesses++
		if cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
			cb.transition(StateClosed)
		}

	case StateOpen:
		// Late report from a call admitted before the circuit opened.
	}
}

// RecordFailure reports a failed gated call
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalFailures++
	cb.consecutiveFailures++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
		}

	case StateHalfOpen:
		// A trial call failing means recovery has not happened.
		cb.transition(StateOpen)

	case StateOpen:
		// The fresh failure timestamp extends the open window.
	}
}

// Stats returns a snapshot of the breaker's counters
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerStats{
		Name:                 cb.name,
		State:                cb.state.String(),
		ConsecutiveFailures:  cb.consecutiveFailures,
		ConsecutiveSuccesses: cb.consecutiveSuccesses,
		HalfOpenInFlight:     cb.halfOpenInFlight,
		LastFailureTime:      cb.lastFailureTime,
		TotalSuccesses:       cb.totalSuccesses,
		TotalFailures:        cb.totalFailures,
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the circuit breaker name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Config returns the breaker configuration
func (cb *CircuitBreaker) Config() *CircuitBreakerConfig {
	return cb.config
}

// transition moves the breaker to a new state. Callers must hold cb.mu.
func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}

	from := cb.state
	cb.state = to

	switch to {
	case StateClosed:
		cb.consecutiveFailures = 0
		cb.consecutiveSuccesses = 0
		cb.halfOpenInFlight = 0
	case StateHalfOpen:
		cb.consecutiveSuccesses = 0
		cb.halfOpenInFlight = 0
	case StateOpen:
		cb.consecutiveSuccesses = 0
		cb.halfOpenInFlight = 0
	}

	cb.logger.Warn("Circuit breaker state changed",
		"name", cb.name,
		"from", from.String(),
		"to", to.String(),
	)

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}
