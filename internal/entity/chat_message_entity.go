package entity

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus only applies to locally originated messages. Messages that
// arrive from the hub are always Sent.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// SystemPayloadDelimiter separates the event code from its payload when a
// system message embeds one in Content (e.g. "STATUS_CHANGED|Solved").
const SystemPayloadDelimiter = "|"

type ChatMessage struct {
	Id        uuid.UUID
	RequestId uuid.UUID
	// Nil SenderId denotes a system message.
	SenderId           *uuid.UUID
	SenderName         string
	Content            string
	IsScreenshot       bool
	ScreenshotFileName string
	FileName           string
	FileSize           int64
	FileMimeType       string
	// SequenceNumber is zero until the hub confirms the message.
	SequenceNumber int64
	// Metadata holds structured event data on system messages, mirrored
	// into the jsonb column.
	Metadata map[string]interface{}
	// IpAddress is recorded hub-side for audit; never broadcast to rooms.
	IpAddress string
	CreatedAt time.Time

	// Client-side only fields.
	TempId uuid.UUID
	Status DeliveryStatus
}

// Confirmed reports whether the hub has assigned a sequence number.
func (m *ChatMessage) Confirmed() bool {
	return m.SequenceNumber > 0
}

// IsSystem reports whether this is a system-generated message.
func (m *ChatMessage) IsSystem() bool {
	return m.SenderId == nil
}

// Key returns the identity used for dedup: the server id once assigned,
// otherwise the client temp id.
func (m *ChatMessage) Key() uuid.UUID {
	if m.Id != uuid.Nil {
		return m.Id
	}
	return m.TempId
}
