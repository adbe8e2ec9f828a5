package implementation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"helpdesk-chat-core/internal/entity"
	"helpdesk-chat-core/internal/mapper"
	"helpdesk-chat-core/internal/model"
	"helpdesk-chat-core/internal/repository/contract"
	"helpdesk-chat-core/internal/repository/specification"
)

type ChatMessageRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewChatMessageRepository(db *gorm.DB) contract.ChatMessageRepository {
	return &ChatMessageRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ChatMessageRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

// CreateWithSequence locks the parent request row to serialize concurrent
// message creation, then assigns max(sequence)+1 and inserts atomically.
func (r *ChatMessageRepositoryImpl) CreateWithSequence(ctx context.Context, message *entity.ChatMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var request model.ServiceRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&request, "id = ?", message.RequestId).Error; err != nil {
			return err
		}

		var maxSeq int64
		if err := tx.Model(&model.ChatMessage{}).
			Where("request_id = ?", message.RequestId).
			Select("COALESCE(MAX(sequence_number), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}

		message.SequenceNumber = maxSeq + 1
		m := r.mapper.ChatMessageToModel(message)
		if err := tx.Create(m).Error; err != nil {
			return err
		}

		confirmed := r.mapper.ChatMessageToEntity(m)
		confirmed.TempId = message.TempId
		*message = *confirmed
		return nil
	})
}

func (r *ChatMessageRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatMessage, error) {
	var m model.ChatMessage
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ChatMessageToEntity(&m), nil
}

func (r *ChatMessageRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error) {
	var models []*model.ChatMessage
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.ChatMessage, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ChatMessageToEntity(m)
	}
	return entities, nil
}

func (r *ChatMessageRepositoryImpl) FindPage(ctx context.Context, requestId uuid.UUID, beforeSequence *int64, limit int) ([]*entity.ChatMessage, error) {
	// Fetch newest-first so the limit trims the oldest end, then flip.
	specs := []specification.Specification{
		specification.ByRequestID{RequestID: requestId},
		specification.OrderBySequence{Descending: true},
		specification.Limit{Count: limit},
	}
	if beforeSequence != nil {
		specs = append(specs, specification.BeforeSequence{Sequence: *beforeSequence})
	}
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)

	var models []*model.ChatMessage
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	entities := make([]*entity.ChatMessage, len(models))
	for i, m := range models {
		entities[len(models)-1-i] = r.mapper.ChatMessageToEntity(m)
	}
	return entities, nil
}

func (r *ChatMessageRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.ChatMessage{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ChatMessageRepositoryImpl) MaxSequence(ctx context.Context, requestId uuid.UUID) (int64, error) {
	var maxSeq int64
	err := r.db.WithContext(ctx).Model(&model.ChatMessage{}).
		Where("request_id = ?", requestId).
		Select("COALESCE(MAX(sequence_number), 0)").
		Scan(&maxSeq).Error
	if err != nil {
		return 0, err
	}
	return maxSeq, nil
}
