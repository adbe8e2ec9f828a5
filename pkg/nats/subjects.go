package nats

import (
	"fmt"

	"github.com/google/uuid"
)

// Room subject suffixes. "messages" carries confirmed message broadcasts,
// "events" the remaining envelopes, "send"/"typing"/"read" are inbound from
// requester clients.
const (
	RoomMessages = "messages"
	RoomEvents   = "events"
	RoomSend     = "send"
	RoomTyping   = "typing"
	RoomRead     = "read"
)

// RoomSubject builds the core-NATS subject for one ticket room channel.
func RoomSubject(requestId uuid.UUID, suffix string) string {
	return fmt.Sprintf("chat.room.%s.%s", requestId, suffix)
}
