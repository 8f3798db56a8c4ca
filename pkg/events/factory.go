package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventFactory creates CloudEvents for gateway domain events
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent creates a new GatewayCloudEvent with the given parameters
func (f *EventFactory) CreateEvent(
	ctx context.Context,
	eventType string,
	subject string,
	data interface{},
) *GatewayCloudEvent {
	return &GatewayCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}
}

// CreateCircuitEvent creates a circuit lifecycle event for a target. The
// event type follows from the state being entered; a transition into an
// unnamed state yields nil.
func (f *EventFactory) CreateCircuitEvent(
	ctx context.Context,
	target string,
	from string,
	to string,
	consecutiveFailures int,
	lastFailureAt time.Time,
) *GatewayCloudEvent {
	eventType := CircuitEventType(to)
	if eventType == "" {
		return nil
	}

	data := CircuitStateChangedData{
		Target:              target,
		From:                from,
		To:                  to,
		ConsecutiveFailures: consecutiveFailures,
		LastFailureAt:       lastFailureAt,
	}
	event := f.CreateEvent(ctx, eventType, "target/"+target, data)
	event.Target = target
	return event
}

// CreateResponseDegradedEvent creates a ResponseDegraded event for an
// aggregate that was served with one or more branches missing
func (f *EventFactory) CreateResponseDegradedEvent(
	ctx context.Context,
	aggregate string,
	unavailableBranches []string,
	requestPath string,
) *GatewayCloudEvent {
	data := ResponseDegradedData{
		Aggregate:           aggregate,
		UnavailableBranches: unavailableBranches,
		RequestPath:         requestPath,
	}
	return f.CreateEvent(ctx, ResponseDegraded, "aggregate/"+aggregate, data)
}
