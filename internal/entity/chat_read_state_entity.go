package entity

import (
	"time"

	"github.com/google/uuid"
)

type ChatReadState struct {
	RequestId         uuid.UUID
	UserId            uuid.UUID
	UnreadCount       int
	IsViewing         bool
	LastReadAt        *time.Time
	LastReadMessageId *uuid.UUID
	UpdatedAt         time.Time
}
