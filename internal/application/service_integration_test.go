package application

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"

	"github.com/agrimesh-platform/edge-gateway/pkg/cache"
	"github.com/agrimesh-platform/edge-gateway/pkg/dispatch"
	errs "github.com/agrimesh-platform/edge-gateway/pkg/errors"
	"github.com/agrimesh-platform/edge-gateway/pkg/events"
	"github.com/agrimesh-platform/edge-gateway/pkg/kafka"
	"github.com/agrimesh-platform/edge-gateway/pkg/logging"
	"github.com/agrimesh-platform/edge-gateway/pkg/resilience"
	gwtesting "github.com/agrimesh-platform/edge-gateway/pkg/testing"
)

// GatewayServiceIntegrationTestSuite runs the gateway pipeline against real
// Redis and Kafka containers: downstream responses cached in Redis, degraded
// aggregates announced on the gateway events topic.
type GatewayServiceIntegrationTestSuite struct {
	suite.Suite
	ctx      context.Context
	env      *gwtesting.TestEnvironment
	cache    *cache.RedisCache
	producer *kafka.Producer
}

func (s *GatewayServiceIntegrationTestSuite) SetupSuite() {
	s.ctx = context.Background()

	env, err := gwtesting.NewTestEnvironment(s.ctx, true)
	s.Require().NoError(err)
	s.env = env

	redisCache, err := cache.NewRedisCache(cache.DefaultRedisCacheConfig(env.Redis.URL), quietLogger().Logger)
	s.Require().NoError(err)
	s.cache = redisCache

	err = kafka.EnsureTopics(s.ctx, env.Kafka.Brokers, []kafka.TopicConfig{
		{Name: kafka.Topics.GatewayEvents, Partitions: 1, ReplicationFactor: 1, RetentionMs: 60000},
	})
	s.Require().NoError(err)

	cfg := kafka.DefaultConfig()
	cfg.Brokers = env.Kafka.Brokers
	cfg.BatchSize = 1
	s.producer = kafka.NewProducer(cfg)
}

func (s *GatewayServiceIntegrationTestSuite) TearDownSuite() {
	if s.producer != nil {
		s.Require().NoError(s.producer.Close())
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.env != nil {
		s.Require().NoError(s.env.Close(s.ctx))
	}
}

func TestGatewayServiceIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	suite.Run(t, new(GatewayServiceIntegrationTestSuite))
}

// newService wires a fresh pipeline over the suite's shared Redis and Kafka.
// Each test gets its own registry so breaker state never crosses tests.
func (s *GatewayServiceIntegrationTestSuite) newService(transport dispatch.Transport) *GatewayApplicationService {
	logger := quietLogger()
	registry := resilience.NewRegistry(logger.Logger)
	dispatcher := dispatch.NewDispatcher(transport, registry, nil, s.cache, logger, nil)
	aggregator := dispatch.NewAggregator(dispatcher, 4, logger, nil)
	factory := events.NewEventFactory(events.SourceGateway)
	return NewGatewayApplicationService(dispatcher, aggregator, testTargets(), nil, s.producer, factory, logger, nil)
}

func (s *GatewayServiceIntegrationTestSuite) TestDegradedOverviewPublishesEvent() {
	transport := newStubTransport()
	transport.respond("field-service", `{"fieldId":"FLD-INT-DEGRADE"}`)
	transport.respond("imagery-service", `{"tileUrl":"https://tiles.agrimesh.io/d.png"}`)
	transport.respond("alert-service", `[]`)
	transport.fail("weather-service", errs.ErrDownstreamTimeout("weather-service", context.DeadlineExceeded))
	service := s.newService(transport)

	ctx := logging.ContextWithCorrelationID(s.ctx, "corr-degraded-1")
	dto, err := service.FieldOverview(ctx, FieldOverviewQuery{FieldID: "FLD-INT-DEGRADE"})
	s.Require().NoError(err)
	s.True(dto.Degraded)
	s.Equal([]string{"weather"}, dto.UnavailableSources)

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  s.env.Kafka.Brokers,
		Topic:    kafka.Topics.GatewayEvents,
		GroupID:  "gateway-service-integration",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	readCtx, cancel := gwtesting.CreateTestContext(30 * time.Second)
	defer cancel()

	msg, err := reader.ReadMessage(readCtx)
	s.Require().NoError(err)
	s.Equal("aggregate/field-overview", string(msg.Key))

	var decoded events.GatewayCloudEvent
	s.Require().NoError(json.Unmarshal(msg.Value, &decoded))
	s.Equal(events.ResponseDegraded, decoded.Type)
	s.Equal("corr-degraded-1", decoded.CorrelationID)

	data, ok := decoded.Data.(map[string]interface{})
	s.Require().True(ok, "event data should decode as an object")
	s.Equal("field-overview", data["aggregate"])
	s.Equal("/api/v1/fields/FLD-INT-DEGRADE/overview", data["requestPath"])
	s.Equal([]interface{}{"weather"}, data["unavailableBranches"])
}

func (s *GatewayServiceIntegrationTestSuite) TestFieldWeatherServedFromRedis() {
	transport := newStubTransport()
	transport.respond("weather-service", `{"temperatureC":19.5}`)
	service := s.newService(transport)
	query := FieldWeatherQuery{FieldID: "FLD-INT-CACHE"}

	first, err := service.FieldWeather(s.ctx, query)
	s.Require().NoError(err)
	s.False(first.Cached)

	second, err := service.FieldWeather(s.ctx, query)
	s.Require().NoError(err)
	s.True(second.Cached, "second read should come from Redis")
	s.Equal(first.Weather, second.Weather)
	s.Equal(1, transport.callCount("weather-service"))
}

func (s *GatewayServiceIntegrationTestSuite) TestOverviewBranchesCachedAcrossCalls() {
	transport := newStubTransport()
	transport.respond("field-service", `{"fieldId":"FLD-INT-BRANCH"}`)
	transport.respond("weather-service", `{"temperatureC":22.0}`)
	transport.respond("imagery-service", `{"tileUrl":"https://tiles.agrimesh.io/b.png"}`)
	transport.respond("alert-service", `[]`)
	service := s.newService(transport)
	query := FieldOverviewQuery{FieldID: "FLD-INT-BRANCH"}

	_, err := service.FieldOverview(s.ctx, query)
	s.Require().NoError(err)

	dto, err := service.FieldOverview(s.ctx, query)
	s.Require().NoError(err)
	s.False(dto.Degraded)
	for name, section := range dto.Sources {
		s.True(section.Cached, "source %s should be served from Redis on the second call", name)
	}
	for _, target := range []string{"field-service", "weather-service", "imagery-service", "alert-service"} {
		s.Equal(1, transport.callCount(target), "target %s should only be called once", target)
	}
}
