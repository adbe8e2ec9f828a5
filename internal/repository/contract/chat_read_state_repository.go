package contract

import (
	"context"

	"github.com/google/uuid"

	"helpdesk-chat-core/internal/entity"
)

type ChatReadStateRepository interface {
	GetOrCreate(ctx context.Context, requestId, userId uuid.UUID) (*entity.ChatReadState, error)
	MarkRead(ctx context.Context, requestId, userId uuid.UUID, lastMessageId *uuid.UUID) (*entity.ChatReadState, error)
	// IncrementUnread bumps the unread count for every listed user except
	// those currently viewing the chat.
	IncrementUnread(ctx context.Context, requestId uuid.UUID, userIds []uuid.UUID) error
	SetViewing(ctx context.Context, requestId, userId uuid.UUID, viewing bool) error
}
