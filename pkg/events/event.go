package events

import (
	"context"
	"time"
)

// Session lifecycle event types.
const (
	ChatSessionCreated = "CHAT_SESSION_CREATED"
	ChatSessionClosed  = "CHAT_SESSION_CLOSED"
)

// Reasons carried by ChatSessionClosed.
const (
	CloseReasonDisconnect = "disconnect"
	CloseReasonExpired    = "expired"
	CloseReasonTransport  = "transport_error"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "CHAT_SESSION_CREATED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Publisher is anything that can put an event on a bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// SessionEvent builds a lifecycle event for one chat session.
func SessionEvent(eventType, sessionID, userID, reason string, at time.Time) BaseEvent {
	data := map[string]interface{}{
		"session_id": sessionID,
		"user_id":    userID,
	}
	if reason != "" {
		data["reason"] = reason
	}
	return BaseEvent{Type: eventType, Data: data, OccurredAt: at}
}
