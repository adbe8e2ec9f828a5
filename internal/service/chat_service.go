package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"helpdesk-chat-core/internal/dto"
	"helpdesk-chat-core/internal/entity"
	"helpdesk-chat-core/internal/pkg/logger"
	"helpdesk-chat-core/internal/repository/contract"
	"helpdesk-chat-core/pkg/events"
)

var (
	ErrRequestNotFound = errors.New("service request not found")
	ErrRequestSolved   = errors.New("service request is solved")
	ErrEmptyMessage    = errors.New("message content is empty")
)

// EventPublisher is the durable event sink. Satisfied by the NATS JetStream
// publisher; nil disables event emission.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type IChatService interface {
	// SendMessage persists a message with the next sequence number for the
	// ticket and returns the confirmed broadcast payload. The caller decides
	// who receives the ClientTempId echo.
	SendMessage(ctx context.Context, senderId uuid.UUID, senderName string, req *dto.SendMessageRequest) (*dto.ConfirmedMessage, error)
	// PostSystemMessage records a system line (nil sender) on the ticket.
	PostSystemMessage(ctx context.Context, requestId uuid.UUID, code, payload string) (*dto.ConfirmedMessage, error)
	GetHistory(ctx context.Context, query *dto.HistoryQuery) ([]dto.ConfirmedMessage, error)
	// UpdateTaskStatus flips the request status and posts the system message
	// that announces it.
	UpdateTaskStatus(ctx context.Context, requestId uuid.UUID, statusCode string, countAsSolved bool) (*dto.TaskStatusEvent, error)
}

type chatService struct {
	messageRepo contract.ChatMessageRepository
	requestRepo contract.ServiceRequestRepository
	readRepo    contract.ChatReadStateRepository
	publisher   EventPublisher
	validate    *validator.Validate
	logger      logger.ILogger
}

func NewChatService(
	messageRepo contract.ChatMessageRepository,
	requestRepo contract.ServiceRequestRepository,
	readRepo contract.ChatReadStateRepository,
	publisher EventPublisher,
	log logger.ILogger,
) IChatService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &chatService{
		messageRepo: messageRepo,
		requestRepo: requestRepo,
		readRepo:    readRepo,
		publisher:   publisher,
		validate:    validator.New(),
		logger:      log,
	}
}

func (s *chatService) SendMessage(ctx context.Context, senderId uuid.UUID, senderName string, req *dto.SendMessageRequest) (*dto.ConfirmedMessage, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	content, err := sanitizeContent(req.Content)
	if err != nil {
		return nil, err
	}
	if content == "" && !req.IsScreenshot && req.FileName == "" {
		return nil, ErrEmptyMessage
	}

	request, err := s.requestRepo.FindById(ctx, req.RequestId)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, ErrRequestNotFound
	}
	if request.Solved() {
		return nil, ErrRequestSolved
	}

	message := &entity.ChatMessage{
		Id:                 uuid.New(),
		RequestId:          req.RequestId,
		SenderId:           &senderId,
		SenderName:         senderName,
		Content:            content,
		IsScreenshot:       req.IsScreenshot,
		ScreenshotFileName: req.ScreenshotFileName,
		FileName:           req.FileName,
		FileSize:           req.FileSize,
		FileMimeType:       req.FileMimeType,
		IpAddress:          req.SenderIp,
		CreatedAt:          time.Now(),
	}
	if err := s.messageRepo.CreateWithSequence(ctx, message); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	// First reply from the assignee stamps the response SLA marker.
	if request.AssigneeId != nil && *request.AssigneeId == senderId && request.FirstResponseAt == nil {
		if err := s.requestRepo.MarkFirstResponse(ctx, request.Id); err != nil {
			s.logger.Warn("CHAT", "Failed to mark first response", map[string]interface{}{
				"request_id": request.Id.String(),
				"error":      err.Error(),
			})
		}
	}

	s.bumpUnread(ctx, request, senderId)
	s.publishCreated(ctx, message)

	tempId := req.TempId
	confirmed := dto.ConfirmedFromEntity(message, &tempId)
	return &confirmed, nil
}

func (s *chatService) PostSystemMessage(ctx context.Context, requestId uuid.UUID, code, payload string) (*dto.ConfirmedMessage, error) {
	content := code
	metadata := map[string]interface{}{"code": code}
	if payload != "" {
		content = code + entity.SystemPayloadDelimiter + payload
		metadata["payload"] = payload
	}
	message := &entity.ChatMessage{
		Id:         uuid.New(),
		RequestId:  requestId,
		SenderId:   nil,
		SenderName: "System",
		Content:    content,
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	}
	if err := s.messageRepo.CreateWithSequence(ctx, message); err != nil {
		return nil, fmt.Errorf("persist system message: %w", err)
	}

	s.publishCreated(ctx, message)
	confirmed := dto.ConfirmedFromEntity(message, nil)
	return &confirmed, nil
}

func (s *chatService) GetHistory(ctx context.Context, query *dto.HistoryQuery) ([]dto.ConfirmedMessage, error) {
	if err := s.validate.Struct(query); err != nil {
		return nil, err
	}

	messages, err := s.messageRepo.FindPage(ctx, query.RequestId, query.BeforeSequence, query.Limit)
	if err != nil {
		return nil, err
	}

	result := make([]dto.ConfirmedMessage, 0, len(messages))
	for _, m := range messages {
		result = append(result, dto.ConfirmedFromEntity(m, nil))
	}
	return result, nil
}

func (s *chatService) UpdateTaskStatus(ctx context.Context, requestId uuid.UUID, statusCode string, countAsSolved bool) (*dto.TaskStatusEvent, error) {
	request, err := s.requestRepo.FindById(ctx, requestId)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, ErrRequestNotFound
	}

	if err := s.requestRepo.UpdateStatus(ctx, requestId, statusCode, countAsSolved); err != nil {
		return nil, err
	}

	if _, err := s.PostSystemMessage(ctx, requestId, "STATUS_CHANGED", statusCode); err != nil {
		s.logger.Warn("CHAT", "Failed to post status system message", map[string]interface{}{
			"request_id": requestId.String(),
			"error":      err.Error(),
		})
	}

	s.publishTaskStatus(ctx, requestId, statusCode, countAsSolved)

	return &dto.TaskStatusEvent{
		RequestId:     requestId,
		StatusCode:    statusCode,
		CountAsSolved: countAsSolved,
	}, nil
}

func (s *chatService) publishTaskStatus(ctx context.Context, requestId uuid.UUID, statusCode string, countAsSolved bool) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.BaseEvent{
		Type: events.TypeTaskStatusChanged,
		Data: map[string]interface{}{
			"request_id":      requestId.String(),
			"status_code":     statusCode,
			"count_as_solved": countAsSolved,
		},
		OccurredAt: time.Now(),
	}); err != nil {
		s.logger.Warn("CHAT", "Failed to publish task status event", map[string]interface{}{
			"request_id": requestId.String(),
			"error":      err.Error(),
		})
	}
}

// bumpUnread increments counters for every participant except the sender.
// Viewers are skipped inside the repository.
func (s *chatService) bumpUnread(ctx context.Context, request *entity.ServiceRequest, senderId uuid.UUID) {
	recipients := make([]uuid.UUID, 0, 2)
	if request.RequesterId != senderId {
		recipients = append(recipients, request.RequesterId)
	}
	if request.AssigneeId != nil && *request.AssigneeId != senderId {
		recipients = append(recipients, *request.AssigneeId)
	}
	if len(recipients) == 0 {
		return
	}
	if err := s.readRepo.IncrementUnread(ctx, request.Id, recipients); err != nil {
		s.logger.Warn("CHAT", "Failed to increment unread counters", map[string]interface{}{
			"request_id": request.Id.String(),
			"error":      err.Error(),
		})
	}
}

func (s *chatService) publishCreated(ctx context.Context, message *entity.ChatMessage) {
	if s.publisher == nil {
		return
	}
	payload := map[string]interface{}{
		"message_id":      message.Id.String(),
		"request_id":      message.RequestId.String(),
		"sender_name":     message.SenderName,
		"sequence_number": message.SequenceNumber,
		"is_screenshot":   message.IsScreenshot,
	}
	if message.SenderId != nil {
		payload["sender_id"] = message.SenderId.String()
	}
	if err := s.publisher.Publish(ctx, events.BaseEvent{
		Type:       events.TypeMessageCreated,
		Data:       payload,
		OccurredAt: time.Now(),
	}); err != nil {
		s.logger.Warn("CHAT", "Failed to publish message created event", map[string]interface{}{
			"request_id": message.RequestId.String(),
			"error":      err.Error(),
		})
	}
}
