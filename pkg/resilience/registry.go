package resilience

import (
	"log/slog"
	"sync"
)

// Registry manages one circuit breaker per downstream target so that every
// caller dispatching to the same target shares the same breaker state.
type Registry struct {
	mu            sync.RWMutex
	breakers      map[string]*CircuitBreaker
	logger        *slog.Logger
	onStateChange func(name string, from, to State)
}

// NewRegistry creates a new circuit breaker registry
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

// OnStateChange registers a hook applied to every breaker the registry
// creates. The hook runs under the breaker lock; see CircuitBreaker.OnStateChange.
// Set it before the first Get.
func (r *Registry) OnStateChange(fn func(name string, from, to State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStateChange = fn
}

// Get returns the circuit breaker for the named target, creating it with
// default configuration on first use.
func (r *Registry) Get(name string) *CircuitBreaker {
	return r.GetWithConfig(name, nil)
}

// GetWithConfig returns the circuit breaker for the named target, creating it
// with the given configuration on first use. The configuration is applied
// only on creation: later calls return the existing breaker unchanged.
func (r *Registry) GetWithConfig(name string, config *CircuitBreakerConfig) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have created it between the locks.
	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	if config == nil {
		config = DefaultCircuitBreakerConfig(name)
	} else if config.Name == "" {
		config.Name = name
	}

	cb = NewCircuitBreaker(config, r.logger)
	if r.onStateChange != nil {
		cb.OnStateChange(r.onStateChange)
	}
	r.breakers[name] = cb

	return cb
}

// Status returns a snapshot of every registered breaker keyed by target name
func (r *Registry) Status() map[string]CircuitBreakerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := make(map[string]CircuitBreakerStats, len(r.breakers))
	for name, cb := range r.breakers {
		status[name] = cb.Stats()
	}
	return status
}
