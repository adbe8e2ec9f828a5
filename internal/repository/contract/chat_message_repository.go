package contract

import (
	"context"

	"github.com/google/uuid"

	"helpdesk-chat-core/internal/entity"
	"helpdesk-chat-core/internal/repository/specification"
)

type ChatMessageRepository interface {
	// CreateWithSequence assigns the next sequence number for the request
	// under a row lock and persists the message in the same transaction.
	CreateWithSequence(ctx context.Context, message *entity.ChatMessage) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatMessage, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error)
	// FindPage returns up to limit messages for a request strictly older than
	// beforeSequence (nil means newest), ordered ascending.
	FindPage(ctx context.Context, requestId uuid.UUID, beforeSequence *int64, limit int) ([]*entity.ChatMessage, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	MaxSequence(ctx context.Context, requestId uuid.UUID) (int64, error)
}
