package implementation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"helpdesk-chat-core/internal/entity"
	"helpdesk-chat-core/internal/mapper"
	"helpdesk-chat-core/internal/model"
	"helpdesk-chat-core/internal/repository/contract"
)

type ChatReadStateRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewChatReadStateRepository(db *gorm.DB) contract.ChatReadStateRepository {
	return &ChatReadStateRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ChatReadStateRepositoryImpl) GetOrCreate(ctx context.Context, requestId, userId uuid.UUID) (*entity.ChatReadState, error) {
	m := model.ChatReadState{RequestId: requestId, UserId: userId}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&m).Error
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		First(&m, "request_id = ? AND user_id = ?", requestId, userId).Error; err != nil {
		return nil, err
	}
	return r.mapper.ChatReadStateToEntity(&m), nil
}

func (r *ChatReadStateRepositoryImpl) MarkRead(ctx context.Context, requestId, userId uuid.UUID, lastMessageId *uuid.UUID) (*entity.ChatReadState, error) {
	if _, err := r.GetOrCreate(ctx, requestId, userId); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"unread_count": 0,
		"last_read_at": now,
	}
	if lastMessageId != nil {
		updates["last_read_message_id"] = *lastMessageId
	}

	err := r.db.WithContext(ctx).Model(&model.ChatReadState{}).
		Where("request_id = ? AND user_id = ?", requestId, userId).
		Updates(updates).Error
	if err != nil {
		return nil, err
	}

	var m model.ChatReadState
	if err := r.db.WithContext(ctx).
		First(&m, "request_id = ? AND user_id = ?", requestId, userId).Error; err != nil {
		return nil, err
	}
	return r.mapper.ChatReadStateToEntity(&m), nil
}

func (r *ChatReadStateRepositoryImpl) IncrementUnread(ctx context.Context, requestId uuid.UUID, userIds []uuid.UUID) error {
	if len(userIds) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, userId := range userIds {
			m := model.ChatReadState{RequestId: requestId, UserId: userId}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
				return err
			}
		}
		// Viewers are already caught up; only absent users accumulate unread.
		return tx.Model(&model.ChatReadState{}).
			Where("request_id = ? AND user_id IN ? AND is_viewing = false", requestId, userIds).
			Update("unread_count", gorm.Expr("unread_count + 1")).Error
	})
}

func (r *ChatReadStateRepositoryImpl) SetViewing(ctx context.Context, requestId, userId uuid.UUID, viewing bool) error {
	if _, err := r.GetOrCreate(ctx, requestId, userId); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&model.ChatReadState{}).
		Where("request_id = ? AND user_id = ?", requestId, userId).
		Update("is_viewing", viewing).Error
}
