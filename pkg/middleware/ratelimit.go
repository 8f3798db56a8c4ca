package middleware

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	errs "github.com/agrimesh-platform/edge-gateway/pkg/errors"
	"github.com/agrimesh-platform/edge-gateway/pkg/ratelimit"
)

// RateLimitConfig holds edge rate limiting configuration. The limiter given
// here guards the gateway's own HTTP surface and must be a separate instance
// from the dispatcher's per-caller limiter, which admits individual
// downstream calls.
type RateLimitConfig struct {
	Limiter      *ratelimit.SlidingWindowLimiter
	Logger       *slog.Logger
	KeyFunc      func(*gin.Context) string
	ExcludePaths []string
}

// DefaultRateLimitConfig returns an edge rate limit configuration keyed by
// caller identity with operational endpoints excluded
func DefaultRateLimitConfig(limiter *ratelimit.SlidingWindowLimiter, logger *slog.Logger) *RateLimitConfig {
	return &RateLimitConfig{
		Limiter:      limiter,
		Logger:       logger,
		KeyFunc:      defaultRateLimitKey,
		ExcludePaths: []string{"/health", "/ready", "/metrics"},
	}
}

func defaultRateLimitKey(c *gin.Context) string {
	if key := GetCallerKey(c); key != "" {
		return key
	}
	return c.ClientIP()
}

// RateLimit middleware rejects requests exceeding the caller's admission
// window with 429 and a Retry-After hint
func RateLimit(config *RateLimitConfig) gin.HandlerFunc {
	skipMap := make(map[string]bool)
	for _, path := range config.ExcludePaths {
		skipMap[path] = true
	}

	keyFunc := config.KeyFunc
	if keyFunc == nil {
		keyFunc = defaultRateLimitKey
	}

	return func(c *gin.Context) {
		if skipMap[c.Request.URL.Path] {
			c.Next()
			return
		}

		key := keyFunc(c)
		if !config.Limiter.Allow(key) {
			limiterCfg := config.Limiter.Config()

			if config.Logger != nil {
				config.Logger.Warn("Edge rate limit exceeded",
					"callerKey", key,
					"limit", limiterCfg.MaxRequests,
					"window", limiterCfg.Window.String(),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
			}

			retryAfter := int(limiterCfg.Window.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			AbortWithAppError(c, errs.ErrRateLimitExceeded().WithDetail("callerKey", key))
			return
		}

		c.Next()
	}
}
