package events

import (
	"context"
	"testing"
	"time"
)

func TestCircuitEventType(t *testing.T) {
	tests := []struct {
		state string
		want  string
	}{
		{"open", CircuitOpened},
		{"closed", CircuitClosed},
		{"half-open", CircuitProbing},
		{"unknown", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := CircuitEventType(tt.state); got != tt.want {
			t.Errorf("CircuitEventType(%q) = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestCreateCircuitEvent(t *testing.T) {
	factory := NewEventFactory(SourceGateway)
	failedAt := time.Date(2025, 6, 12, 9, 30, 0, 0, time.UTC)

	event := factory.CreateCircuitEvent(context.Background(), "weather-service", "closed", "open", 5, failedAt)
	if event == nil {
		t.Fatal("CreateCircuitEvent() = nil")
	}
	if event.Type != CircuitOpened {
		t.Errorf("Type = %q, want %q", event.Type, CircuitOpened)
	}
	if event.Source != SourceGateway {
		t.Errorf("Source = %q, want %q", event.Source, SourceGateway)
	}
	if event.Subject != "target/weather-service" {
		t.Errorf("Subject = %q, want %q", event.Subject, "target/weather-service")
	}
	if event.Target != "weather-service" {
		t.Errorf("Target extension = %q, want %q", event.Target, "weather-service")
	}
	if event.SpecVersion != "1.0" {
		t.Errorf("SpecVersion = %q, want %q", event.SpecVersion, "1.0")
	}
	if event.ID == "" {
		t.Error("ID is empty")
	}

	data, ok := event.Data.(CircuitStateChangedData)
	if !ok {
		t.Fatalf("Data is %T, want CircuitStateChangedData", event.Data)
	}
	if data.From != "closed" || data.To != "open" {
		t.Errorf("transition = %s -> %s, want closed -> open", data.From, data.To)
	}
	if data.ConsecutiveFailures != 5 {
		t.Errorf("ConsecutiveFailures = %d, want 5", data.ConsecutiveFailures)
	}
	if !data.LastFailureAt.Equal(failedAt) {
		t.Errorf("LastFailureAt = %v, want %v", data.LastFailureAt, failedAt)
	}
}

func TestCreateCircuitEventUnknownState(t *testing.T) {
	factory := NewEventFactory(SourceGateway)
	if event := factory.CreateCircuitEvent(context.Background(), "t", "open", "melted", 0, time.Time{}); event != nil {
		t.Errorf("CreateCircuitEvent() = %+v for unknown state, want nil", event)
	}
}

func TestCreateResponseDegradedEvent(t *testing.T) {
	factory := NewEventFactory(SourceGateway)

	event := factory.CreateResponseDegradedEvent(context.Background(), "field-overview", []string{"weather", "imagery"}, "/api/v1/fields/FLD-001/overview")
	if event.Type != ResponseDegraded {
		t.Errorf("Type = %q, want %q", event.Type, ResponseDegraded)
	}
	if event.Subject != "aggregate/field-overview" {
		t.Errorf("Subject = %q, want %q", event.Subject, "aggregate/field-overview")
	}

	data, ok := event.Data.(ResponseDegradedData)
	if !ok {
		t.Fatalf("Data is %T, want ResponseDegradedData", event.Data)
	}
	if len(data.UnavailableBranches) != 2 || data.UnavailableBranches[0] != "weather" {
		t.Errorf("UnavailableBranches = %v, want [weather imagery]", data.UnavailableBranches)
	}
}

func TestWithBuilders(t *testing.T) {
	factory := NewEventFactory(SourceGateway)

	event := factory.CreateEvent(context.Background(), CircuitOpened, "target/x", nil).
		WithCorrelation("corr-123").
		WithField("FLD-001", "FARM-9")

	if event.CorrelationID != "corr-123" {
		t.Errorf("CorrelationID = %q, want %q", event.CorrelationID, "corr-123")
	}
	if event.FieldID != "FLD-001" || event.FarmID != "FARM-9" {
		t.Errorf("field context = %s/%s, want FLD-001/FARM-9", event.FieldID, event.FarmID)
	}
}
