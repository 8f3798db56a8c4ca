package application

import (
	"encoding/json"
	"time"

	"github.com/agrimesh-platform/edge-gateway/pkg/cache"
	"github.com/agrimesh-platform/edge-gateway/pkg/ratelimit"
	"github.com/agrimesh-platform/edge-gateway/pkg/resilience"
)

// SourceSectionDTO is one downstream section of a composed response. An
// unavailable section carries the failure class instead of data.
type SourceSectionDTO struct {
	Available bool            `json:"available"`
	Cached    bool            `json:"cached,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// FieldOverviewDTO is the composed overview for one field
type FieldOverviewDTO struct {
	FieldID            string                      `json:"fieldId"`
	GeneratedAt        time.Time                   `json:"generatedAt"`
	Degraded           bool                        `json:"degraded"`
	UnavailableSources []string                    `json:"unavailableSources,omitempty"`
	Sources            map[string]SourceSectionDTO `json:"sources"`
}

// FarmDashboardDTO is the composed dashboard for one farm
type FarmDashboardDTO struct {
	FarmID             string                      `json:"farmId"`
	GeneratedAt        time.Time                   `json:"generatedAt"`
	Degraded           bool                        `json:"degraded"`
	UnavailableSources []string                    `json:"unavailableSources,omitempty"`
	Sources            map[string]SourceSectionDTO `json:"sources"`
}

// FieldWeatherDTO carries a single-target weather payload through unchanged
type FieldWeatherDTO struct {
	FieldID     string          `json:"fieldId"`
	Range       string          `json:"range"`
	Cached      bool            `json:"cached"`
	RetrievedAt time.Time       `json:"retrievedAt"`
	Weather     json.RawMessage `json:"weather"`
}

// DispatchStatsDTO is the admin view of the gateway's resilience state
type DispatchStatsDTO struct {
	GeneratedAt time.Time                                 `json:"generatedAt"`
	Circuits    map[string]resilience.CircuitBreakerStats `json:"circuits"`
	RateLimiter *ratelimit.Stats                          `json:"rateLimiter,omitempty"`
	Cache       *cache.Stats                              `json:"cache,omitempty"`
}
