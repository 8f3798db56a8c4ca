package application

import (
	"time"

	"github.com/agrimesh-platform/edge-gateway/pkg/cache"
	"github.com/agrimesh-platform/edge-gateway/pkg/ratelimit"
	"github.com/agrimesh-platform/edge-gateway/pkg/resilience"
)

// CacheStats reports cache effectiveness counters. Both cache backends
// implement it.
type CacheStats interface {
	Stats() cache.Stats
}

// StatusApplicationService serves the admin view of the gateway's
// resilience state
type StatusApplicationService struct {
	registry *resilience.Registry
	limiter  *ratelimit.SlidingWindowLimiter
	cache    CacheStats
}

// NewStatusApplicationService creates a new StatusApplicationService.
// Limiter and cache may be nil when the corresponding stage is disabled.
func NewStatusApplicationService(
	registry *resilience.Registry,
	limiter *ratelimit.SlidingWindowLimiter,
	cacheStats CacheStats,
) *StatusApplicationService {
	return &StatusApplicationService{
		registry: registry,
		limiter:  limiter,
		cache:    cacheStats,
	}
}

// CircuitStatus returns a snapshot of every registered breaker
func (s *StatusApplicationService) CircuitStatus() map[string]resilience.CircuitBreakerStats {
	return s.registry.Status()
}

// DispatchStats returns breaker, limiter and cache snapshots in one view
func (s *StatusApplicationService) DispatchStats() *DispatchStatsDTO {
	dto := &DispatchStatsDTO{
		GeneratedAt: time.Now().UTC(),
		Circuits:    s.registry.Status(),
	}

	if s.limiter != nil {
		stats := s.limiter.Stats()
		dto.RateLimiter = &stats
	}
	if s.cache != nil {
		stats := s.cache.Stats()
		dto.Cache = &stats
	}

	return dto
}
