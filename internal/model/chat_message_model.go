package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ChatMessage struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RequestId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_chat_messages_request_seq,priority:1"`
	// Null sender denotes a system message.
	SenderId           *uuid.UUID `gorm:"type:uuid"`
	SenderName         string     `gorm:"type:varchar(150)"`
	Content            string     `gorm:"type:text;not null"`
	IsScreenshot       bool       `gorm:"default:false"`
	ScreenshotFileName *string    `gorm:"type:varchar(255)"`
	FileName           *string    `gorm:"type:varchar(255)"`
	FileSize           *int64
	FileMimeType       *string        `gorm:"type:varchar(100)"`
	SequenceNumber     int64          `gorm:"not null;uniqueIndex:idx_chat_messages_request_seq,priority:2"`
	Metadata           datatypes.JSON `gorm:"type:jsonb"`
	IpAddress          *string        `gorm:"type:varchar(45)"`
	CreatedAt          time.Time      `gorm:"autoCreateTime"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
