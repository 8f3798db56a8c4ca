package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agrimesh-platform/edge-gateway/pkg/cache"
	"github.com/agrimesh-platform/edge-gateway/pkg/contracts"
	"github.com/agrimesh-platform/edge-gateway/pkg/dispatch"
	"github.com/agrimesh-platform/edge-gateway/pkg/events"
	"github.com/agrimesh-platform/edge-gateway/pkg/httpclient"
	"github.com/agrimesh-platform/edge-gateway/pkg/kafka"
	"github.com/agrimesh-platform/edge-gateway/pkg/logging"
	"github.com/agrimesh-platform/edge-gateway/pkg/metrics"
	"github.com/agrimesh-platform/edge-gateway/pkg/middleware"
	"github.com/agrimesh-platform/edge-gateway/pkg/ratelimit"
	"github.com/agrimesh-platform/edge-gateway/pkg/resilience"
	"github.com/agrimesh-platform/edge-gateway/pkg/tracing"

	"github.com/agrimesh-platform/edge-gateway/internal/api/handlers"
	"github.com/agrimesh-platform/edge-gateway/internal/application"
)

const serviceName = "edge-gateway"

func main() {
	// Setup enhanced logger
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting edge-gateway")

	// Load configuration
	config := loadConfig()
	ctx := context.Background()

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = getEnv("TRACING_ENABLED", "true") == "true"

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing - don't exit
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
	}

	// Initialize Prometheus metrics
	m := metrics.New(metrics.DefaultConfig(serviceName))
	logger.Info("Metrics initialized")

	// Response cache: Redis when configured, in-process otherwise
	var (
		responseCache cache.ResponseCache
		cacheStats    application.CacheStats
		readyCheck    func() error
	)
	if config.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cache.DefaultRedisCacheConfig(config.RedisURL), logger.Logger)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to Redis")
			os.Exit(1)
		}
		defer redisCache.Close()
		responseCache = redisCache
		cacheStats = redisCache
		readyCheck = func() error { return redisCache.Ping(ctx) }
		logger.Info("Response cache backed by Redis")
	} else {
		memCache := cache.NewMemoryCache(cache.DefaultMemoryCacheConfig(), logger.Logger)
		if err := memCache.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start cache sweeper")
			os.Exit(1)
		}
		defer memCache.Stop()
		responseCache = memCache
		cacheStats = memCache
		readyCheck = func() error { return nil }
		logger.Info("Response cache in process memory")
	}

	// Per-caller limiter for downstream admission
	limiter := ratelimit.NewSlidingWindowLimiter(config.DispatchRateLimit, logger.Logger)
	if err := limiter.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start dispatch rate limiter")
		os.Exit(1)
	}
	defer limiter.Stop()

	// Edge limiter guarding the gateway's own API surface. Kept separate
	// from the dispatch limiter so one admission never counts twice.
	edgeLimiter := ratelimit.NewSlidingWindowLimiter(config.EdgeRateLimit, logger.Logger)
	if err := edgeLimiter.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start edge rate limiter")
		os.Exit(1)
	}
	defer edgeLimiter.Stop()

	// Ops event publisher
	var producer kafka.EventPublisher = kafka.NopPublisher{}
	if config.EventsEnabled {
		if err := kafka.EnsureTopics(ctx, config.Kafka.Brokers, kafka.DefaultTopicConfigs()); err != nil {
			logger.WithError(err).Warn("Failed to ensure Kafka topics")
		}
		producer = kafka.NewProductionProducer(config.Kafka, m, logger)
		logger.Info("Kafka producer initialized", "brokers", config.Kafka.Brokers)
	}
	defer producer.Close()

	eventFactory := events.NewEventFactory(events.SourceGateway)

	// Circuit breaker registry. The state hook must be set before the first
	// breaker exists, and it runs under the breaker lock, so stats reads and
	// publishing happen on a detached goroutine.
	registry := resilience.NewRegistry(logger.Logger)
	registry.OnStateChange(func(name string, from, to resilience.State) {
		m.SetCircuitBreakerState(name, int(to))
		if to == resilience.StateOpen {
			m.RecordCircuitBreakerTrip(name)
		}

		go func() {
			stats := registry.Get(name).Stats()
			event := eventFactory.CreateCircuitEvent(context.Background(),
				name, from.String(), to.String(), stats.ConsecutiveFailures, stats.LastFailureTime)
			if event == nil {
				return
			}

			pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := producer.PublishEvent(pubCtx, kafka.Topics.GatewayEvents, event); err != nil {
				logger.WithError(err).Warn("Failed to publish circuit event", "target", name)
			}
		}()
	})

	// Register every target's breaker up front so the admin endpoints and
	// the state gauge show all of them from boot.
	targets := buildTargets(config)
	for _, target := range []*dispatch.Target{
		targets.Field, targets.Weather, targets.Imagery,
		targets.Device, targets.Alert, targets.Advisory,
	} {
		registry.GetWithConfig(target.Name, target.Breaker)
		m.SetCircuitBreakerState(target.Name, int(resilience.StateClosed))
	}

	// Dispatch pipeline
	transport := httpclient.NewClient(httpclient.DefaultConfig(), logger)
	dispatcher := dispatch.NewDispatcher(transport, registry, limiter, responseCache, logger, m)
	aggregator := dispatch.NewAggregator(dispatcher, config.AggregatorMaxConcurrent, logger, m)

	validator, err := contracts.NewResponseValidator()
	if err != nil {
		logger.WithError(err).Error("Failed to load response contracts")
		os.Exit(1)
	}
	logger.Info("Response contracts loaded", "targets", validator.Targets())

	// Application services
	gatewayService := application.NewGatewayApplicationService(
		dispatcher,
		aggregator,
		targets,
		validator,
		producer,
		eventFactory,
		logger,
		m,
	)
	statusService := application.NewStatusApplicationService(registry, limiter, cacheStats)

	// Setup Gin router with middleware
	router := gin.New()

	middlewareConfig := middleware.DefaultConfig(serviceName, logger.Logger)
	middlewareConfig.RateLimiter = edgeLimiter
	middleware.Setup(router, middlewareConfig)

	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.SimpleTracingMiddleware(serviceName))

	// Handle 404 and 405 errors
	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	// Health check endpoints
	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, readyCheck))

	// Metrics endpoint
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	// API routes
	gatewayHandlers := handlers.NewGatewayHandlers(gatewayService, logger)
	gatewayHandlers.RegisterRoutes(router.Group("/api/v1"))

	statusHandlers := handlers.NewStatusHandlers(statusService, logger)
	statusHandlers.RegisterRoutes(router.Group("/admin"))

	// Start server
	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}

// Config holds application configuration
type Config struct {
	ServerAddr string

	RedisURL string
	CacheTTL time.Duration

	DownstreamTimeout       time.Duration
	AggregatorMaxConcurrent int

	DispatchRateLimit *ratelimit.Config
	EdgeRateLimit     *ratelimit.Config
	Breaker           *resilience.CircuitBreakerConfig
	Retry             *resilience.RetryConfig

	EventsEnabled bool
	Kafka         *kafka.Config
}

func loadConfig() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		RedisURL: getEnv("REDIS_URL", ""),
		CacheTTL: time.Duration(getEnvInt("CACHE_TTL_SECONDS", 30)) * time.Second,

		DownstreamTimeout:       time.Duration(getEnvInt("DOWNSTREAM_TIMEOUT_SECONDS", 5)) * time.Second,
		AggregatorMaxConcurrent: getEnvInt("AGGREGATOR_MAX_CONCURRENT", 8),

		DispatchRateLimit: &ratelimit.Config{
			MaxRequests: getEnvInt("RATE_LIMIT_MAX_REQUESTS", 100),
			Window:      time.Duration(getEnvInt("RATE_LIMIT_WINDOW_MS", 1000)) * time.Millisecond,
		},
		EdgeRateLimit: &ratelimit.Config{
			MaxRequests: getEnvInt("EDGE_RATE_LIMIT_MAX_REQUESTS", 300),
			Window:      time.Duration(getEnvInt("EDGE_RATE_LIMIT_WINDOW_MS", 1000)) * time.Millisecond,
		},
		Breaker: &resilience.CircuitBreakerConfig{
			FailureThreshold:      getEnvInt("CB_FAILURE_THRESHOLD", resilience.DefaultFailureThreshold),
			SuccessThreshold:      getEnvInt("CB_SUCCESS_THRESHOLD", resilience.DefaultSuccessThreshold),
			OpenTimeout:           time.Duration(getEnvInt("CB_OPEN_TIMEOUT_SECONDS", 30)) * time.Second,
			HalfOpenMaxConcurrent: getEnvInt("CB_HALF_OPEN_MAX_CONCURRENT", resilience.DefaultHalfOpenMaxConcurrent),
		},
		Retry: &resilience.RetryConfig{
			MaxAttempts:   getEnvInt("RETRY_MAX_ATTEMPTS", resilience.DefaultRetryMaxAttempts),
			InitialDelay:  time.Duration(getEnvInt("RETRY_INITIAL_DELAY_MS", 1000)) * time.Millisecond,
			MaxDelay:      time.Duration(getEnvInt("RETRY_MAX_DELAY_MS", 30000)) * time.Millisecond,
			BackoffFactor: resilience.DefaultRetryBackoffFactor,
			Jitter:        true,
		},

		EventsEnabled: getEnv("EVENTS_ENABLED", "false") == "true",
		Kafka: &kafka.Config{
			Brokers:      []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			ClientID:     serviceName,
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: -1,
		},
	}
}

// buildTargets assembles the downstream targets from per-service URL
// overrides and the shared resilience configuration
func buildTargets(config *Config) *application.Targets {
	mk := func(name, urlEnv, defaultURL string) *dispatch.Target {
		breaker := *config.Breaker
		breaker.Name = name
		return &dispatch.Target{
			Name:     name,
			BaseURL:  getEnv(urlEnv, defaultURL),
			Timeout:  config.DownstreamTimeout,
			CacheTTL: config.CacheTTL,
			Breaker:  &breaker,
			Retry:    config.Retry,
		}
	}

	return &application.Targets{
		Field:    mk("field-service", "FIELD_SERVICE_URL", "http://field-service:8080"),
		Weather:  mk("weather-service", "WEATHER_SERVICE_URL", "http://weather-service:8080"),
		Imagery:  mk("imagery-service", "IMAGERY_SERVICE_URL", "http://imagery-service:8080"),
		Device:   mk("device-service", "DEVICE_SERVICE_URL", "http://device-service:8080"),
		Alert:    mk("alert-service", "ALERT_SERVICE_URL", "http://alert-service:8080"),
		Advisory: mk("advisory-service", "ADVISORY_SERVICE_URL", "http://advisory-service:8080"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
