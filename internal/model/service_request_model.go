package model

import (
	"time"

	"github.com/google/uuid"
)

type ServiceRequest struct {
	Id          uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Title       string     `gorm:"type:text;not null"`
	RequesterId uuid.UUID  `gorm:"type:uuid;not null;index"`
	AssigneeId  *uuid.UUID `gorm:"type:uuid;index"`
	StatusCode  string     `gorm:"type:varchar(50);not null;default:'open'"`
	// Statuses flagged count_as_solved make the chat read-only.
	CountAsSolved   bool `gorm:"default:false"`
	FirstResponseAt *time.Time
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

func (ServiceRequest) TableName() string {
	return "service_requests"
}
