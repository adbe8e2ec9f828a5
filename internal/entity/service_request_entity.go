package entity

import (
	"time"

	"github.com/google/uuid"
)

type ServiceRequest struct {
	Id              uuid.UUID
	Title           string
	RequesterId     uuid.UUID
	AssigneeId      *uuid.UUID
	StatusCode      string
	CountAsSolved   bool
	FirstResponseAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Solved requests are read-only: no new connection, no sends.
func (r *ServiceRequest) Solved() bool {
	return r.CountAsSolved
}
