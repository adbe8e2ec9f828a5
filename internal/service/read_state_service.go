package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"helpdesk-chat-core/internal/dto"
	"helpdesk-chat-core/internal/pkg/logger"
	"helpdesk-chat-core/internal/repository/contract"
	"helpdesk-chat-core/pkg/events"
)

type IReadStateService interface {
	// MarkRead zeroes the unread counter and returns the event to broadcast
	// to the other participant.
	MarkRead(ctx context.Context, userId uuid.UUID, req *dto.MarkReadRequest) (*dto.ReadStatusEvent, error)
	// SetViewing flags whether the user has the chat open, which suppresses
	// unread increments for them.
	SetViewing(ctx context.Context, requestId, userId uuid.UUID, viewing bool) error
	UnreadCount(ctx context.Context, requestId, userId uuid.UUID) (int, error)
}

type readStateService struct {
	readRepo  contract.ChatReadStateRepository
	publisher EventPublisher
	logger    logger.ILogger
}

func NewReadStateService(readRepo contract.ChatReadStateRepository, publisher EventPublisher, log logger.ILogger) IReadStateService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &readStateService{
		readRepo:  readRepo,
		publisher: publisher,
		logger:    log,
	}
}

func (s *readStateService) MarkRead(ctx context.Context, userId uuid.UUID, req *dto.MarkReadRequest) (*dto.ReadStatusEvent, error) {
	state, err := s.readRepo.MarkRead(ctx, req.RequestId, userId, req.LastMessageId)
	if err != nil {
		return nil, err
	}

	s.publishReadStatus(ctx, req.RequestId, userId, state.UnreadCount)

	return &dto.ReadStatusEvent{
		RequestId:   req.RequestId,
		UserId:      userId,
		UnreadCount: state.UnreadCount,
		LastReadAt:  state.LastReadAt,
	}, nil
}

func (s *readStateService) publishReadStatus(ctx context.Context, requestId, userId uuid.UUID, unread int) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.BaseEvent{
		Type: events.TypeReadStatusUpdated,
		Data: map[string]interface{}{
			"request_id":   requestId.String(),
			"user_id":      userId.String(),
			"unread_count": unread,
		},
		OccurredAt: time.Now(),
	}); err != nil {
		s.logger.Warn("CHAT", "Failed to publish read status event", map[string]interface{}{
			"request_id": requestId.String(),
			"error":      err.Error(),
		})
	}
}

func (s *readStateService) SetViewing(ctx context.Context, requestId, userId uuid.UUID, viewing bool) error {
	return s.readRepo.SetViewing(ctx, requestId, userId, viewing)
}

func (s *readStateService) UnreadCount(ctx context.Context, requestId, userId uuid.UUID) (int, error) {
	state, err := s.readRepo.GetOrCreate(ctx, requestId, userId)
	if err != nil {
		return 0, err
	}
	return state.UnreadCount, nil
}
