package kafka

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/agrimesh-platform/edge-gateway/pkg/events"
	"github.com/agrimesh-platform/edge-gateway/pkg/logging"
	"github.com/agrimesh-platform/edge-gateway/pkg/resilience"
)

type stubPublisher struct {
	calls int
	err   error
}

func (s *stubPublisher) PublishEvent(ctx context.Context, topic string, event *events.GatewayCloudEvent) error {
	s.calls++
	return s.err
}

func (s *stubPublisher) Close() error {
	return nil
}

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{
		Level:       logging.LevelError,
		ServiceName: "kafka-test",
		Output:      io.Discard,
	})
}

func testEvent() *events.GatewayCloudEvent {
	factory := events.NewEventFactory(events.SourceGateway)
	return factory.CreateResponseDegradedEvent(context.Background(), "field-overview", []string{"weather"}, "/overview")
}

func TestGuardedProducerPassesThrough(t *testing.T) {
	stub := &stubPublisher{}
	guarded := NewGuardedProducer(stub, testLogger())

	if err := guarded.PublishEvent(context.Background(), Topics.GatewayEvents, testEvent()); err != nil {
		t.Fatalf("PublishEvent() error = %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("publisher calls = %d, want 1", stub.calls)
	}
	if got := guarded.Breaker().State(); got != resilience.StateClosed {
		t.Errorf("breaker state = %v, want closed", got)
	}
}

func TestGuardedProducerOpensAfterRepeatedFailures(t *testing.T) {
	stub := &stubPublisher{err: errors.New("broker unreachable")}
	guarded := NewGuardedProducer(stub, testLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := guarded.PublishEvent(ctx, Topics.GatewayEvents, testEvent()); err == nil {
			t.Fatalf("publish %d succeeded, want failure", i+1)
		}
	}
	if got := guarded.Breaker().State(); got != resilience.StateOpen {
		t.Fatalf("breaker state = %v after 5 failures, want open", got)
	}

	err := guarded.PublishEvent(ctx, Topics.GatewayEvents, testEvent())
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("error = %v, want %v", err, resilience.ErrCircuitOpen)
	}
	if stub.calls != 5 {
		t.Errorf("publisher calls = %d, want 5: open breaker must not publish", stub.calls)
	}
}

func TestGuardedProducerReportsEachPublishOnce(t *testing.T) {
	stub := &stubPublisher{err: errors.New("broker unreachable")}
	guarded := NewGuardedProducer(stub, testLogger())

	guarded.PublishEvent(context.Background(), Topics.GatewayEvents, testEvent())

	stats := guarded.Breaker().Stats()
	if stats.TotalFailures != 1 {
		t.Errorf("TotalFailures = %d, want 1", stats.TotalFailures)
	}

	stub.err = nil
	guarded.PublishEvent(context.Background(), Topics.GatewayEvents, testEvent())

	stats = guarded.Breaker().Stats()
	if stats.TotalSuccesses != 1 {
		t.Errorf("TotalSuccesses = %d, want 1", stats.TotalSuccesses)
	}
}

func TestNopPublisher(t *testing.T) {
	var pub NopPublisher
	if err := pub.PublishEvent(context.Background(), Topics.GatewayEvents, testEvent()); err != nil {
		t.Errorf("PublishEvent() error = %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewProductionProducerAssembly(t *testing.T) {
	guarded := NewProductionProducer(DefaultConfig(), nil, testLogger())
	if guarded == nil {
		t.Fatal("NewProductionProducer() = nil")
	}
	if guarded.Breaker() == nil {
		t.Fatal("Breaker() = nil")
	}
	if got := guarded.Breaker().State(); got != resilience.StateClosed {
		t.Errorf("breaker state = %v, want closed", got)
	}
	if err := guarded.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
