package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"

	"github.com/agrimesh-platform/edge-gateway/pkg/events"
	gwtesting "github.com/agrimesh-platform/edge-gateway/pkg/testing"
)

type ProducerIntegrationTestSuite struct {
	suite.Suite
	ctx       context.Context
	container *gwtesting.KafkaContainer
	producer  *Producer
}

func (s *ProducerIntegrationTestSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := gwtesting.NewKafkaContainer(s.ctx)
	s.Require().NoError(err)
	s.container = container

	err = EnsureTopics(s.ctx, container.Brokers, []TopicConfig{
		{Name: Topics.GatewayEvents, Partitions: 1, ReplicationFactor: 1, RetentionMs: 60000},
	})
	s.Require().NoError(err)

	cfg := DefaultConfig()
	cfg.Brokers = container.Brokers
	cfg.BatchSize = 1
	s.producer = NewProducer(cfg)
}

func (s *ProducerIntegrationTestSuite) TearDownSuite() {
	if s.producer != nil {
		s.Require().NoError(s.producer.Close())
	}
	if s.container != nil {
		s.Require().NoError(s.container.Close(s.ctx))
	}
}

func TestProducerIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	suite.Run(t, new(ProducerIntegrationTestSuite))
}

func (s *ProducerIntegrationTestSuite) TestPublishEventRoundTrip() {
	factory := events.NewEventFactory(events.SourceGateway)
	event := factory.CreateCircuitEvent(s.ctx, "weather-service", "closed", "open", 5, time.Now().UTC())
	s.Require().NotNil(event)
	event.WithCorrelation("corr-123")

	s.Require().NoError(s.producer.PublishEvent(s.ctx, Topics.GatewayEvents, event))

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  s.container.Brokers,
		Topic:    Topics.GatewayEvents,
		GroupID:  "gateway-integration-test",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	readCtx, cancel := gwtesting.CreateTestContext(30 * time.Second)
	defer cancel()

	msg, err := reader.ReadMessage(readCtx)
	s.Require().NoError(err)

	s.Equal("target/weather-service", string(msg.Key))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	s.Equal(events.CircuitOpened, headers["ce-type"])
	s.Equal(events.SourceGateway, headers["ce-source"])
	s.Equal("1.0", headers["ce-specversion"])
	s.Equal("corr-123", headers["ce-"+events.ExtCorrelationID])

	var decoded events.GatewayCloudEvent
	s.Require().NoError(json.Unmarshal(msg.Value, &decoded))
	s.Equal(events.CircuitOpened, decoded.Type)
	s.Equal("weather-service", decoded.Target)
	s.Equal("corr-123", decoded.CorrelationID)
}

func (s *ProducerIntegrationTestSuite) TestEnsureTopicsIdempotent() {
	err := EnsureTopics(s.ctx, s.container.Brokers, []TopicConfig{
		{Name: Topics.GatewayEvents, Partitions: 1, ReplicationFactor: 1, RetentionMs: 60000},
	})
	s.NoError(err)
}
