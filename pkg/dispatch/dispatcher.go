// Package dispatch routes gateway calls to downstream services through the
// resilience pipeline: rate limiting, response caching, circuit breaking and
// retries, applied in that order.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agrimesh-platform/edge-gateway/pkg/cache"
	errs "github.com/agrimesh-platform/edge-gateway/pkg/errors"
	"github.com/agrimesh-platform/edge-gateway/pkg/logging"
	"github.com/agrimesh-platform/edge-gateway/pkg/metrics"
	"github.com/agrimesh-platform/edge-gateway/pkg/ratelimit"
	"github.com/agrimesh-platform/edge-gateway/pkg/resilience"
)

// DefaultCacheTTL applies when neither the request nor the target sets one
const DefaultCacheTTL = 30 * time.Second

// Target describes one downstream service
type Target struct {
	Name     string
	BaseURL  string
	Timeout  time.Duration // per-attempt timeout
	CacheTTL time.Duration // TTL for cacheable responses from this target

	// Breaker and Retry override the shared defaults when set.
	Breaker *resilience.CircuitBreakerConfig
	Retry   *resilience.RetryConfig
}

// Request is one logical call to a downstream target
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
	Body    []byte

	// CallerKey is the rate limit key; empty skips rate limiting.
	CallerKey string

	// CacheKey enables response caching under that key; empty skips caching.
	CacheKey string

	// CacheTTL overrides the target's TTL when positive.
	CacheTTL time.Duration
}

// Response is a downstream response as seen by gateway handlers
type Response struct {
	StatusCode int
	Body       []byte
	Cached     bool
}

// Transport executes a single attempt against a downstream target. Errors
// must be classified with the pkg/errors downstream taxonomy so the retry
// and breaker layers can tell transient faults from caller faults.
type Transport interface {
	Do(ctx context.Context, target *Target, req *Request) (*Response, error)
}

// Dispatcher runs calls through the resilience pipeline. Both the circuit
// gate and the outcome report happen here, once per logical call: the
// breaker judges the final result after retries, never individual attempts.
type Dispatcher struct {
	transport Transport
	registry  *resilience.Registry
	limiter   *ratelimit.SlidingWindowLimiter
	cache     cache.ResponseCache
	logger    *logging.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// NewDispatcher creates a new dispatcher. Limiter, cache and metrics may be
// nil, which disables the corresponding stage.
func NewDispatcher(
	transport Transport,
	registry *resilience.Registry,
	limiter *ratelimit.SlidingWindowLimiter,
	responseCache cache.ResponseCache,
	logger *logging.Logger,
	m *metrics.Metrics,
) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		registry:  registry,
		limiter:   limiter,
		cache:     responseCache,
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("gateway.dispatch"),
	}
}

// Registry returns the circuit breaker registry backing this dispatcher
func (d *Dispatcher) Registry() *resilience.Registry {
	return d.registry
}

// Call dispatches one logical request to a target
func (d *Dispatcher) Call(ctx context.Context, target *Target, req *Request) (*Response, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.call", trace.WithAttributes(
		attribute.String("peer.service", target.Name),
		attribute.String("http.method", req.Method),
		attribute.String("http.route", req.Path),
	))
	defer span.End()

	start := time.Now()

	// Admission first: a rate-limited caller must not consume cache reads
	// or downstream capacity.
	if d.limiter != nil && req.CallerKey != "" {
		allowed := d.limiter.Allow(req.CallerKey)
		if d.metrics != nil {
			d.metrics.RecordRateLimitDecision(allowed)
		}
		if !allowed {
			cfg := d.limiter.Config()
			d.logger.RateLimited(ctx, req.CallerKey, cfg.MaxRequests, cfg.Window)
			span.SetStatus(codes.Error, "rate limited")
			if d.metrics != nil {
				d.metrics.RecordDownstreamCall(target.Name, "rate_limited", time.Since(start))
			}
			return nil, fmt.Errorf("caller %s: %w", req.CallerKey, ratelimit.ErrRateLimited)
		}
	}

	if d.cache != nil && req.CacheKey != "" {
		value, ok, err := d.cache.Get(ctx, req.CacheKey)
		switch {
		case err != nil:
			// Cache faults degrade to a miss.
			d.logger.WithContext(ctx).WithError(err).Warn("Response cache lookup failed",
				"target", target.Name,
				"cacheKey", req.CacheKey,
			)
		case ok:
			if d.metrics != nil {
				d.metrics.RecordCacheHit(target.Name)
			}
			span.SetAttributes(attribute.Bool("cache.hit", true))
			d.logger.DownstreamCall(ctx, target.Name, req.Method, req.Path, http.StatusOK, time.Since(start), 0, true)
			return &Response{StatusCode: http.StatusOK, Body: value, Cached: true}, nil
		default:
			if d.metrics != nil {
				d.metrics.RecordCacheMiss(target.Name)
			}
		}
	}

	breaker := d.registry.GetWithConfig(target.Name, target.Breaker)
	if !breaker.CanExecute() {
		span.SetStatus(codes.Error, "circuit open")
		if d.metrics != nil {
			d.metrics.RecordDownstreamCall(target.Name, "circuit_open", time.Since(start))
		}
		return nil, fmt.Errorf("target %s: %w", target.Name, resilience.ErrCircuitOpen)
	}

	retries := 0
	resp, err := resilience.RetryWithResult(ctx, d.retryConfig(ctx, target, &retries), func() (*Response, error) {
		return d.transport.Do(ctx, target, req)
	})
	duration := time.Since(start)
	attempts := retries + 1

	if err != nil {
		d.reportFailure(breaker, err)

		status := 0
		if de, ok := errs.AsDownstreamError(err); ok {
			status = de.Status
		}
		d.logger.DownstreamCall(ctx, target.Name, req.Method, req.Path, status, duration, attempts, false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if d.metrics != nil {
			d.metrics.RecordDownstreamCall(target.Name, FailureClass(err), duration)
		}
		return nil, err
	}

	breaker.RecordSuccess()

	d.logger.DownstreamCall(ctx, target.Name, req.Method, req.Path, resp.StatusCode, duration, attempts, false)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	span.SetStatus(codes.Ok, "")
	if d.metrics != nil {
		d.metrics.RecordDownstreamCall(target.Name, "success", duration)
	}

	if d.cache != nil && req.CacheKey != "" {
		if err := d.cache.Set(ctx, req.CacheKey, resp.Body, cacheTTL(target, req)); err != nil {
			d.logger.WithContext(ctx).WithError(err).Warn("Response cache store failed",
				"target", target.Name,
				"cacheKey", req.CacheKey,
			)
		}
	}

	return resp, nil
}

// reportFailure delivers the call's final outcome to the breaker. A failure
// the downstream itself classified as the caller's fault still proves the
// target is answering, so it reports as success unless the breaker is
// configured to count client errors.
func (d *Dispatcher) reportFailure(breaker *resilience.CircuitBreaker, err error) {
	if errs.IsClientError(err) && !breaker.Config().CountClientErrors {
		breaker.RecordSuccess()
		return
	}
	breaker.RecordFailure()
}

// retryConfig derives the per-call retry configuration from the target's,
// wiring in error classification and retry observation.
func (d *Dispatcher) retryConfig(ctx context.Context, target *Target, retries *int) *resilience.RetryConfig {
	base := target.Retry
	if base == nil {
		base = resilience.DefaultRetryConfig()
	}

	cfg := *base
	if cfg.RetryableErrors == nil {
		cfg.RetryableErrors = errs.IsRetryable
	}

	prev := cfg.OnRetry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		*retries++
		d.logger.WithContext(ctx).Warn("Retrying downstream call",
			"target", target.Name,
			"attempt", attempt,
			"delay", delay,
			"error", err.Error(),
		)
		if d.metrics != nil {
			d.metrics.RecordDownstreamRetry(target.Name)
		}
		if prev != nil {
			prev(attempt, delay, err)
		}
	}

	return &cfg
}

func cacheTTL(target *Target, req *Request) time.Duration {
	if req.CacheTTL > 0 {
		return req.CacheTTL
	}
	if target.CacheTTL > 0 {
		return target.CacheTTL
	}
	return DefaultCacheTTL
}

// FailureClass returns the reporting label for a dispatch error: the
// admission stage that refused it, or the downstream failure kind.
func FailureClass(err error) string {
	switch {
	case errors.Is(err, ratelimit.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	default:
		return errs.FailureKindOf(err).String()
	}
}
