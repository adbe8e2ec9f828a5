package mapper

import (
	"encoding/json"

	"gorm.io/datatypes"

	"helpdesk-chat-core/internal/entity"
	"helpdesk-chat-core/internal/model"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// Message Mappers

func (m *ChatMapper) ChatMessageToEntity(msg *model.ChatMessage) *entity.ChatMessage {
	if msg == nil {
		return nil
	}

	e := &entity.ChatMessage{
		Id:             msg.Id,
		RequestId:      msg.RequestId,
		SenderId:       msg.SenderId,
		SenderName:     msg.SenderName,
		Content:        msg.Content,
		IsScreenshot:   msg.IsScreenshot,
		SequenceNumber: msg.SequenceNumber,
		CreatedAt:      msg.CreatedAt,
		Status:         entity.DeliverySent,
	}
	if msg.ScreenshotFileName != nil {
		e.ScreenshotFileName = *msg.ScreenshotFileName
	}
	if msg.FileName != nil {
		e.FileName = *msg.FileName
	}
	if msg.FileSize != nil {
		e.FileSize = *msg.FileSize
	}
	if msg.FileMimeType != nil {
		e.FileMimeType = *msg.FileMimeType
	}
	if len(msg.Metadata) > 0 {
		_ = json.Unmarshal(msg.Metadata, &e.Metadata)
	}
	if msg.IpAddress != nil {
		e.IpAddress = *msg.IpAddress
	}
	return e
}

func (m *ChatMapper) ChatMessageToModel(e *entity.ChatMessage) *model.ChatMessage {
	if e == nil {
		return nil
	}

	msg := &model.ChatMessage{
		Id:             e.Id,
		RequestId:      e.RequestId,
		SenderId:       e.SenderId,
		SenderName:     e.SenderName,
		Content:        e.Content,
		IsScreenshot:   e.IsScreenshot,
		SequenceNumber: e.SequenceNumber,
		CreatedAt:      e.CreatedAt,
	}
	if e.ScreenshotFileName != "" {
		v := e.ScreenshotFileName
		msg.ScreenshotFileName = &v
	}
	if e.FileName != "" {
		v := e.FileName
		msg.FileName = &v
	}
	if e.FileSize > 0 {
		v := e.FileSize
		msg.FileSize = &v
	}
	if e.FileMimeType != "" {
		v := e.FileMimeType
		msg.FileMimeType = &v
	}
	if len(e.Metadata) > 0 {
		if raw, err := json.Marshal(e.Metadata); err == nil {
			msg.Metadata = datatypes.JSON(raw)
		}
	}
	if e.IpAddress != "" {
		v := e.IpAddress
		msg.IpAddress = &v
	}
	return msg
}

// Request Mappers

func (m *ChatMapper) ServiceRequestToEntity(r *model.ServiceRequest) *entity.ServiceRequest {
	if r == nil {
		return nil
	}
	return &entity.ServiceRequest{
		Id:              r.Id,
		Title:           r.Title,
		RequesterId:     r.RequesterId,
		AssigneeId:      r.AssigneeId,
		StatusCode:      r.StatusCode,
		CountAsSolved:   r.CountAsSolved,
		FirstResponseAt: r.FirstResponseAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (m *ChatMapper) ServiceRequestToModel(r *entity.ServiceRequest) *model.ServiceRequest {
	if r == nil {
		return nil
	}
	return &model.ServiceRequest{
		Id:              r.Id,
		Title:           r.Title,
		RequesterId:     r.RequesterId,
		AssigneeId:      r.AssigneeId,
		StatusCode:      r.StatusCode,
		CountAsSolved:   r.CountAsSolved,
		FirstResponseAt: r.FirstResponseAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// Read State Mappers

func (m *ChatMapper) ChatReadStateToEntity(s *model.ChatReadState) *entity.ChatReadState {
	if s == nil {
		return nil
	}
	return &entity.ChatReadState{
		RequestId:         s.RequestId,
		UserId:            s.UserId,
		UnreadCount:       s.UnreadCount,
		IsViewing:         s.IsViewing,
		LastReadAt:        s.LastReadAt,
		LastReadMessageId: s.LastReadMessageId,
		UpdatedAt:         s.UpdatedAt,
	}
}

func (m *ChatMapper) ChatReadStateToModel(s *entity.ChatReadState) *model.ChatReadState {
	if s == nil {
		return nil
	}
	return &model.ChatReadState{
		RequestId:         s.RequestId,
		UserId:            s.UserId,
		UnreadCount:       s.UnreadCount,
		IsViewing:         s.IsViewing,
		LastReadAt:        s.LastReadAt,
		LastReadMessageId: s.LastReadMessageId,
		UpdatedAt:         s.UpdatedAt,
	}
}
