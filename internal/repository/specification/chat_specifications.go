package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByRequestID struct {
	RequestID uuid.UUID
}

func (s ByRequestID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("request_id = ?", s.RequestID)
}

type BeforeSequence struct {
	Sequence int64
}

func (s BeforeSequence) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("sequence_number < ?", s.Sequence)
}

type OrderBySequence struct {
	Descending bool
}

func (s OrderBySequence) Apply(db *gorm.DB) *gorm.DB {
	if s.Descending {
		return db.Order("sequence_number DESC")
	}
	return db.Order("sequence_number ASC")
}
