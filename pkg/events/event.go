package events

import "time"

// Chat event type codes, shared between the hub, the backend ingest stream
// and the NATS subjects.
const (
	TypeMessageCreated    = "CHAT_MESSAGE_CREATED"
	TypeReadStatusUpdated = "CHAT_READ_STATUS_UPDATED"
	TypeTaskStatusChanged = "TASK_STATUS_CHANGED"
	TypeTyping            = "CHAT_TYPING"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "CHAT_MESSAGE_CREATED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is the generic implementation used by publishers.
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
