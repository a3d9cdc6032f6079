package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/helpline/escalation-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRequestCreated    EventType = "help_request_created"
	EventRequestClaimed    EventType = "help_request_claimed"
	EventRequestEscalated  EventType = "help_request_escalated"
	EventRequestResolved   EventType = "help_request_resolved"
	EventRequestUnresolved EventType = "help_request_unresolved"
)

// AllEventTypes lists every type the engine publishes.
var AllEventTypes = []EventType{
	EventRequestCreated,
	EventRequestClaimed,
	EventRequestEscalated,
	EventRequestResolved,
	EventRequestUnresolved,
}

// Actor identifies who caused an event. Empty SupervisorID means the system.
type Actor struct {
	SupervisorID string `json:"supervisor_id,omitempty"`
	System       bool   `json:"system,omitempty"`
}

// SystemActor is used for sweep driven transitions.
var SystemActor = Actor{System: true}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	RequestID int64     `json:"request_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// New stamps an event with a fresh ID.
func New(eventType EventType, requestID int64, actor Actor, at time.Time, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		RequestID: requestID,
		Actor:     actor,
		Timestamp: at.UTC(),
		Payload:   payload,
	}
}

// RequestCreatedPayload payload.
type RequestCreatedPayload struct {
	CustomerID string                 `json:"customer_id"`
	Priority   domain.RequestPriority `json:"priority"`
	TimeoutAt  time.Time              `json:"timeout_at"`
	Tags       []string               `json:"tags,omitempty"`
}

// RequestClaimedPayload payload.
type RequestClaimedPayload struct {
	AssignedTo string `json:"assigned_to"`
}

// RequestEscalatedPayload payload.
type RequestEscalatedPayload struct {
	Level      int       `json:"level"`
	AssignedTo string    `json:"assigned_to"`
	Reason     string    `json:"reason"`
	TimeoutAt  time.Time `json:"timeout_at"`
}

// RequestClosedPayload is shared by resolved and unresolved events.
type RequestClosedPayload struct {
	OldStatus  domain.RequestStatus `json:"old_status"`
	NewStatus  domain.RequestStatus `json:"new_status"`
	Resolution string               `json:"resolution"`
	Level      int                  `json:"level"`
}
