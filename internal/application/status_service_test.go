package application

import (
	"testing"
	"time"

	"github.com/agrimesh-platform/edge-gateway/pkg/cache"
	"github.com/agrimesh-platform/edge-gateway/pkg/ratelimit"
	"github.com/agrimesh-platform/edge-gateway/pkg/resilience"
)

func TestStatusApplicationService_DispatchStats(t *testing.T) {
	logger := quietLogger()
	registry := resilience.NewRegistry(logger.Logger)
	registry.Get("weather-service")
	limiter := ratelimit.NewSlidingWindowLimiter(&ratelimit.Config{MaxRequests: 5, Window: time.Minute}, logger.Logger)
	memCache := cache.NewMemoryCache(cache.DefaultMemoryCacheConfig(), logger.Logger)

	service := NewStatusApplicationService(registry, limiter, memCache)

	limiter.Allow("caller-1")
	dto := service.DispatchStats()

	if dto.GeneratedAt.IsZero() {
		t.Error("GeneratedAt is zero")
	}
	stats, ok := dto.Circuits["weather-service"]
	if !ok {
		t.Fatal("Circuits missing weather-service")
	}
	if stats.State != "closed" {
		t.Errorf("State = %v, want closed", stats.State)
	}
	if dto.RateLimiter == nil {
		t.Fatal("RateLimiter = nil")
	}
	if dto.RateLimiter.Allowed != 1 {
		t.Errorf("RateLimiter.Allowed = %v, want 1", dto.RateLimiter.Allowed)
	}
	if dto.Cache == nil {
		t.Fatal("Cache = nil")
	}
}

func TestStatusApplicationService_CircuitStatus(t *testing.T) {
	logger := quietLogger()
	registry := resilience.NewRegistry(logger.Logger)
	registry.Get("field-service")
	registry.Get("imagery-service")

	service := NewStatusApplicationService(registry, nil, nil)

	circuits := service.CircuitStatus()
	if len(circuits) != 2 {
		t.Fatalf("circuits length = %v, want 2", len(circuits))
	}
	if _, ok := circuits["field-service"]; !ok {
		t.Error("circuits missing field-service")
	}
}

func TestStatusApplicationService_DisabledStages(t *testing.T) {
	registry := resilience.NewRegistry(quietLogger().Logger)
	service := NewStatusApplicationService(registry, nil, nil)

	dto := service.DispatchStats()
	if dto.RateLimiter != nil {
		t.Error("RateLimiter should be nil when rate limiting is disabled")
	}
	if dto.Cache != nil {
		t.Error("Cache should be nil when caching is disabled")
	}
}
