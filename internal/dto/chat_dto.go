package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"helpdesk-chat-core/internal/entity"
)

// Envelope frames every websocket payload in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Envelope types.
const (
	TypeMessageSend      = "message.send"
	TypeMessageConfirmed = "message.confirmed"
	TypeReadMark         = "read.mark"
	TypeReadUpdated      = "read.updated"
	TypeTyping           = "typing"
	TypeTaskStatus       = "task.status"
	TypeError            = "error"
)

func NewEnvelope(envType string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: envType, Data: raw})
}

// SendMessageRequest is the outbound optimistic send. TempId is generated by
// the client and echoed back on the confirmed broadcast.
type SendMessageRequest struct {
	TempId    uuid.UUID `json:"temp_id" validate:"required"`
	RequestId uuid.UUID `json:"request_id" validate:"required"`
	// Sender identity travels in the payload on the message-bus path; the
	// websocket path overwrites both from the connection's claims.
	SenderId           uuid.UUID `json:"sender_id,omitempty"`
	SenderName         string    `json:"sender_name,omitempty"`
	SenderIp           string    `json:"sender_ip,omitempty"`
	Content            string    `json:"content"`
	IsScreenshot       bool      `json:"is_screenshot"`
	ScreenshotFileName string    `json:"screenshot_file_name,omitempty" validate:"omitempty,max=255"`
	FileName           string    `json:"file_name,omitempty" validate:"omitempty,max=255"`
	FileSize           int64     `json:"file_size,omitempty" validate:"omitempty,min=0"`
	FileMimeType       string    `json:"file_mime_type,omitempty" validate:"omitempty,max=100"`
}

// ConfirmedMessage is broadcast to the ticket room once a message is
// persisted and sequenced. ClientTempId is only set on the sender's echo.
type ConfirmedMessage struct {
	Id                 uuid.UUID  `json:"id"`
	RequestId          uuid.UUID  `json:"request_id"`
	SenderId           *uuid.UUID `json:"sender_id"`
	SenderName         string     `json:"sender_name"`
	Content            string     `json:"content"`
	IsScreenshot       bool       `json:"is_screenshot"`
	ScreenshotFileName string     `json:"screenshot_file_name,omitempty"`
	FileName           string     `json:"file_name,omitempty"`
	FileSize           int64      `json:"file_size,omitempty"`
	FileMimeType       string     `json:"file_mime_type,omitempty"`
	SequenceNumber     int64      `json:"sequence_number"`
	CreatedAt          time.Time  `json:"created_at"`
	ClientTempId       *uuid.UUID `json:"client_temp_id,omitempty"`
}

func ConfirmedFromEntity(m *entity.ChatMessage, clientTempId *uuid.UUID) ConfirmedMessage {
	return ConfirmedMessage{
		Id:                 m.Id,
		RequestId:          m.RequestId,
		SenderId:           m.SenderId,
		SenderName:         m.SenderName,
		Content:            m.Content,
		IsScreenshot:       m.IsScreenshot,
		ScreenshotFileName: m.ScreenshotFileName,
		FileName:           m.FileName,
		FileSize:           m.FileSize,
		FileMimeType:       m.FileMimeType,
		SequenceNumber:     m.SequenceNumber,
		CreatedAt:          m.CreatedAt,
		ClientTempId:       clientTempId,
	}
}

// ToEntity converts a confirmed broadcast back into the domain shape.
func (c ConfirmedMessage) ToEntity() *entity.ChatMessage {
	e := &entity.ChatMessage{
		Id:                 c.Id,
		RequestId:          c.RequestId,
		SenderId:           c.SenderId,
		SenderName:         c.SenderName,
		Content:            c.Content,
		IsScreenshot:       c.IsScreenshot,
		ScreenshotFileName: c.ScreenshotFileName,
		FileName:           c.FileName,
		FileSize:           c.FileSize,
		FileMimeType:       c.FileMimeType,
		SequenceNumber:     c.SequenceNumber,
		CreatedAt:          c.CreatedAt,
		Status:             entity.DeliverySent,
	}
	if c.ClientTempId != nil {
		e.TempId = *c.ClientTempId
	}
	return e
}

// MarkReadRequest marks a ticket chat as read up to an optional message.
// UserId matters only on the message-bus path; the websocket path uses the
// connection's claims.
type MarkReadRequest struct {
	RequestId     uuid.UUID  `json:"request_id" validate:"required"`
	UserId        uuid.UUID  `json:"user_id,omitempty"`
	LastMessageId *uuid.UUID `json:"last_message_id,omitempty"`
}

type ReadStatusEvent struct {
	RequestId   uuid.UUID  `json:"request_id"`
	UserId      uuid.UUID  `json:"user_id"`
	UnreadCount int        `json:"unread_count"`
	LastReadAt  *time.Time `json:"last_read_at,omitempty"`
}

type TypingEvent struct {
	RequestId uuid.UUID `json:"request_id"`
	UserId    uuid.UUID `json:"user_id"`
	UserName  string    `json:"user_name"`
	IsTyping  bool      `json:"is_typing"`
}

type TaskStatusEvent struct {
	RequestId     uuid.UUID `json:"request_id"`
	StatusCode    string    `json:"status_code"`
	CountAsSolved bool      `json:"count_as_solved"`
}

type ErrorEvent struct {
	Code         string     `json:"code"`
	Message      string     `json:"message"`
	ClientTempId *uuid.UUID `json:"client_temp_id,omitempty"`
}

// HistoryQuery pages chat history backwards by sequence number.
type HistoryQuery struct {
	RequestId      uuid.UUID `json:"request_id" validate:"required"`
	BeforeSequence *int64    `json:"before_sequence,omitempty"`
	Limit          int       `json:"limit" validate:"min=1,max=200"`
}
