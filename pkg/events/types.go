package events

import (
	"time"
)

// EventType constants for gateway domain events
const (
	// Circuit breaker lifecycle events
	CircuitOpened  = "agrimesh.gateway.circuit-opened"
	CircuitClosed  = "agrimesh.gateway.circuit-closed"
	CircuitProbing = "agrimesh.gateway.circuit-probing"

	// Aggregation events
	ResponseDegraded = "agrimesh.gateway.response-degraded"
)

// Source constants for event sources
const (
	SourceGateway = "/agrimesh/edge-gateway"
)

// CloudEvents extension attribute names for gateway context
const (
	ExtCorrelationID = "agricorrelationid"
	ExtTarget        = "agritarget"
	ExtFieldID       = "agrifieldid"
	ExtFarmID        = "agrifarmid"
)

// GatewayCloudEvent represents a CloudEvents v1.0 compliant event emitted by
// the edge gateway
type GatewayCloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`

	// Gateway-specific extensions
	CorrelationID string `json:"agricorrelationid,omitempty"`
	Target        string `json:"agritarget,omitempty"`
	FieldID       string `json:"agrifieldid,omitempty"`
	FarmID        string `json:"agrifarmid,omitempty"`

	// W3C trace context, carried so consumers can join the trace
	TraceParent string `json:"traceparent,omitempty"`
	TraceState  string `json:"tracestate,omitempty"`
}

// WithCorrelation sets the correlation ID and returns the event
func (e *GatewayCloudEvent) WithCorrelation(correlationID string) *GatewayCloudEvent {
	e.CorrelationID = correlationID
	return e
}

// WithField sets the field and farm context and returns the event
func (e *GatewayCloudEvent) WithField(fieldID, farmID string) *GatewayCloudEvent {
	e.FieldID = fieldID
	e.FarmID = farmID
	return e
}

// CircuitStateChangedData is the payload for circuit lifecycle events
type CircuitStateChangedData struct {
	Target              string    `json:"target"`
	From                string    `json:"from"`
	To                  string    `json:"to"`
	ConsecutiveFailures int       `json:"consecutiveFailures,omitempty"`
	LastFailureAt       time.Time `json:"lastFailureAt,omitempty"`
}

// ResponseDegradedData is the payload for ResponseDegraded events
type ResponseDegradedData struct {
	Aggregate           string   `json:"aggregate"`
	UnavailableBranches []string `json:"unavailableBranches"`
	RequestPath         string   `json:"requestPath,omitempty"`
}

// CircuitEventType maps a breaker state name to the event type announcing the
// transition into that state. Unknown states map to an empty string.
func CircuitEventType(state string) string {
	switch state {
	case "open":
		return CircuitOpened
	case "closed":
		return CircuitClosed
	case "half-open":
		return CircuitProbing
	default:
		return ""
	}
}
