package resilience

import "time"

// Circuit breaker default configuration values
const (
	DefaultFailureThreshold      int           = 5
	DefaultSuccessThreshold      int           = 3
	DefaultOpenTimeout           time.Duration = 30 * time.Second
	DefaultHalfOpenMaxConcurrent int           = 3
)

// Retry default configuration values
const (
	DefaultRetryMaxAttempts   int           = 3
	DefaultRetryInitialDelay  time.Duration = 1 * time.Second
	DefaultRetryMaxDelay      time.Duration = 30 * time.Second
	DefaultRetryBackoffFactor float64       = 2.0
)
