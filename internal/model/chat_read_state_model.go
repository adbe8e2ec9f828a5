package model

import (
	"time"

	"github.com/google/uuid"
)

// ChatReadState tracks per-user, per-ticket unread counts and viewing presence.
type ChatReadState struct {
	RequestId         uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId            uuid.UUID `gorm:"type:uuid;primaryKey"`
	UnreadCount       int       `gorm:"not null;default:0"`
	IsViewing         bool      `gorm:"not null;default:false"`
	LastReadAt        *time.Time
	LastReadMessageId *uuid.UUID `gorm:"type:uuid"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime"`
}

func (ChatReadState) TableName() string {
	return "chat_read_states"
}
