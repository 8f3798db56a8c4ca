package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all gateway metrics
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Downstream dispatch metrics
	DownstreamCallsTotal   *prometheus.CounterVec
	DownstreamCallDuration *prometheus.HistogramVec
	DownstreamRetriesTotal *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec

	// Rate limit metrics
	RateLimitDecisions *prometheus.CounterVec

	// Response cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Aggregation metrics
	AggregatorBranchesTotal *prometheus.CounterVec
	AggregateDuration       *prometheus.HistogramVec
	DegradedResponsesTotal  *prometheus.CounterVec

	// Contract validation metrics
	ContractViolations *prometheus.CounterVec

	// Kafka metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "agrimesh",
	}
}

// New creates a new Metrics instance
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()

	// Register standard Go metrics
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	// HTTP metrics
	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)

	m.HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests currently being processed",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	// Downstream dispatch metrics
	m.DownstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "downstream_calls_total",
			Help:      "Total number of downstream calls by final outcome",
		},
		[]string{"service", "target", "outcome"},
	)

	m.DownstreamCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "downstream_call_duration_seconds",
			Help:      "Downstream call duration in seconds, including retries",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "target"},
	)

	m.DownstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "downstream_retries_total",
			Help:      "Total number of downstream retry attempts",
		},
		[]string{"service", "target"},
	)

	// Circuit breaker metrics
	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"service", "name"},
	)

	m.CircuitBreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "circuit_breaker_trips_total",
			Help:      "Total number of circuit breaker trips",
		},
		[]string{"service", "name"},
	)

	// Rate limit metrics
	m.RateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Total number of rate limit admission decisions",
		},
		[]string{"service", "decision"},
	)

	// Response cache metrics
	m.CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "response_cache_hits_total",
			Help:      "Total number of response cache hits",
		},
		[]string{"service", "target"},
	)

	m.CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "response_cache_misses_total",
			Help:      "Total number of response cache misses",
		},
		[]string{"service", "target"},
	)

	// Aggregation metrics
	m.AggregatorBranchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "aggregator_branches_total",
			Help:      "Total number of aggregation branches by outcome",
		},
		[]string{"service", "aggregate", "outcome"},
	)

	m.AggregateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "aggregate_duration_seconds",
			Help:      "Fan-out aggregation duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "aggregate"},
	)

	m.DegradedResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "degraded_responses_total",
			Help:      "Total number of aggregate responses served with missing branches",
		},
		[]string{"service", "aggregate"},
	)

	// Contract validation metrics
	m.ContractViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "contract_violations_total",
			Help:      "Total number of downstream responses violating their declared contract",
		},
		[]string{"service", "target"},
	)

	// Kafka metrics
	m.KafkaEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "kafka_events_published_total",
			Help:      "Total number of Kafka events published",
		},
		[]string{"service", "topic", "event_type", "status"},
	)

	m.KafkaPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "kafka_publish_duration_seconds",
			Help:      "Kafka publish duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "topic"},
	)

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DownstreamCallsTotal,
		m.DownstreamCallDuration,
		m.DownstreamRetriesTotal,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
		m.RateLimitDecisions,
		m.CacheHits,
		m.CacheMisses,
		m.AggregatorBranchesTotal,
		m.AggregateDuration,
		m.DegradedResponsesTotal,
		m.ContractViolations,
		m.KafkaEventsPublished,
		m.KafkaPublishDuration,
	)

	return m
}

// Handler returns an HTTP handler for metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// RecordDownstreamCall records the final outcome of one dispatched call.
// Outcome is "success", a failure class, "rate_limited" or "circuit_open".
func (m *Metrics) RecordDownstreamCall(target, outcome string, duration time.Duration) {
	m.DownstreamCallsTotal.WithLabelValues(m.serviceName, target, outcome).Inc()
	m.DownstreamCallDuration.WithLabelValues(m.serviceName, target).Observe(duration.Seconds())
}

// RecordDownstreamRetry records one retry attempt against a target
func (m *Metrics) RecordDownstreamRetry(target string) {
	m.DownstreamRetriesTotal.WithLabelValues(m.serviceName, target).Inc()
}

// SetCircuitBreakerState sets the circuit breaker state gauge
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
}

// RecordRateLimitDecision records a rate limit admission decision
func (m *Metrics) RecordRateLimitDecision(allowed bool) {
	decision := "allowed"
	if !allowed {
		decision = "rejected"
	}
	m.RateLimitDecisions.WithLabelValues(m.serviceName, decision).Inc()
}

// RecordCacheHit records a response cache hit
func (m *Metrics) RecordCacheHit(target string) {
	m.CacheHits.WithLabelValues(m.serviceName, target).Inc()
}

// RecordCacheMiss records a response cache miss
func (m *Metrics) RecordCacheMiss(target string) {
	m.CacheMisses.WithLabelValues(m.serviceName, target).Inc()
}

// RecordAggregatorBranch records one branch of a fan-out by outcome.
// Outcome is "ok" or the branch's failure class.
func (m *Metrics) RecordAggregatorBranch(aggregate, outcome string) {
	m.AggregatorBranchesTotal.WithLabelValues(m.serviceName, aggregate, outcome).Inc()
}

// RecordAggregate records a completed fan-out aggregation
func (m *Metrics) RecordAggregate(aggregate string, degraded bool, duration time.Duration) {
	m.AggregateDuration.WithLabelValues(m.serviceName, aggregate).Observe(duration.Seconds())
	if degraded {
		m.DegradedResponsesTotal.WithLabelValues(m.serviceName, aggregate).Inc()
	}
}

// RecordContractViolation records a downstream response that failed contract
// validation
func (m *Metrics) RecordContractViolation(target string) {
	m.ContractViolations.WithLabelValues(m.serviceName, target).Inc()
}

// RecordKafkaPublish records a Kafka publish event
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, status).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}
