package hub

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"helpdesk-chat-core/internal/dto"
	"helpdesk-chat-core/internal/service"
	"helpdesk-chat-core/pkg/events"
)

// StreamIngest tails the backend's Redis event stream and replays the
// events into the ticket rooms. Messages created outside a live connection
// (REST uploads, automation, system lines) reach connected clients this way.
type StreamIngest struct {
	rdb      *redis.Client
	stream   string
	group    string
	consumer string
	hub      *Hub
}

func NewStreamIngest(rdb *redis.Client, stream, group, consumer string, h *Hub) *StreamIngest {
	return &StreamIngest{
		rdb:      rdb,
		stream:   stream,
		group:    group,
		consumer: consumer,
		hub:      h,
	}
}

// Run blocks until ctx is cancelled.
func (i *StreamIngest) Run(ctx context.Context) {
	err := i.rdb.XGroupCreateMkStream(ctx, i.stream, i.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		i.hub.logger.Error("Ingest", "Failed to create consumer group", map[string]interface{}{
			"stream": i.stream,
			"error":  err.Error(),
		})
		return
	}

	i.hub.logger.Info("Ingest", "Consuming event stream", map[string]interface{}{
		"stream": i.stream,
		"group":  i.group,
	})

	for {
		if ctx.Err() != nil {
			return
		}

		streams, err := i.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    i.group,
			Consumer: i.consumer,
			Streams:  []string{i.stream, ">"},
			Count:    32,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			i.hub.logger.Warn("Ingest", "Stream read failed", map[string]interface{}{"error": err.Error()})
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				i.handle(msg)
				i.rdb.XAck(ctx, i.stream, i.group, msg.ID)
			}
		}
	}
}

func (i *StreamIngest) handle(msg redis.XMessage) {
	eventType, _ := msg.Values["type"].(string)
	payload, _ := msg.Values["payload"].(string)
	if eventType == "" || payload == "" {
		return
	}

	switch eventType {
	case events.TypeMessageCreated:
		var confirmed dto.ConfirmedMessage
		if err := json.Unmarshal([]byte(payload), &confirmed); err != nil {
			return
		}
		i.hub.BroadcastSystem(confirmed)

	case events.TypeTaskStatusChanged:
		var ev dto.TaskStatusEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return
		}
		if data, err := dto.NewEnvelope(dto.TypeTaskStatus, ev); err == nil {
			i.hub.BroadcastRoom(ev.RequestId, data)
		}

	case events.TypeReadStatusUpdated:
		var ev dto.ReadStatusEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return
		}
		if data, err := dto.NewEnvelope(dto.TypeReadUpdated, ev); err == nil {
			i.hub.BroadcastRoom(ev.RequestId, data)
		}
	}
}

// BusRelay answers the inbound NATS room subjects so requester clients on
// the message bus get the same semantics as websocket connections.
type BusRelay struct {
	nc          *nats.Conn
	hub         *Hub
	chatService service.IChatService
	readService service.IReadStateService

	subs []*nats.Subscription
}

func NewBusRelay(nc *nats.Conn, h *Hub, chatSvc service.IChatService, readSvc service.IReadStateService) *BusRelay {
	return &BusRelay{
		nc:          nc,
		hub:         h,
		chatService: chatSvc,
		readService: readSvc,
	}
}

func (r *BusRelay) Start() error {
	sendSub, err := r.nc.QueueSubscribe("chat.room.*.send", "hub", r.handleSend)
	if err != nil {
		return err
	}
	typingSub, err := r.nc.QueueSubscribe("chat.room.*.typing", "hub", r.handleTyping)
	if err != nil {
		return err
	}
	readSub, err := r.nc.QueueSubscribe("chat.room.*.read", "hub", r.handleRead)
	if err != nil {
		return err
	}
	r.subs = append(r.subs, sendSub, typingSub, readSub)
	return nil
}

func (r *BusRelay) Stop() {
	for _, sub := range r.subs {
		_ = sub.Unsubscribe()
	}
	r.subs = nil
}

func (r *BusRelay) handleSend(m *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var req dto.SendMessageRequest
	if err := json.Unmarshal(m.Data, &req); err != nil {
		r.replyError(m, "bad_payload", "malformed send request", nil)
		return
	}
	if req.SenderId == uuid.Nil {
		tempId := req.TempId
		r.replyError(m, "missing_sender", "sender identity is required", &tempId)
		return
	}
	if !r.hub.sendLimits.Allow(req.SenderId) {
		tempId := req.TempId
		r.replyError(m, "rate_limited", "too many messages, slow down", &tempId)
		return
	}

	confirmed, err := r.chatService.SendMessage(ctx, req.SenderId, req.SenderName, &req)
	if err != nil {
		tempId := req.TempId
		r.replyError(m, sendErrorCode(err), err.Error(), &tempId)
		return
	}

	if reply, err := dto.NewEnvelope(dto.TypeMessageConfirmed, confirmed); err == nil {
		_ = m.Respond(reply)
	}
	r.hub.BroadcastConfirmed(req.SenderId, *confirmed)
}

func (r *BusRelay) handleTyping(m *nats.Msg) {
	var env dto.Envelope
	if err := json.Unmarshal(m.Data, &env); err != nil || env.Type != dto.TypeTyping {
		return
	}
	var ev dto.TypingEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return
	}
	r.hub.BroadcastRoomExcept(ev.RequestId, ev.UserId, m.Data)
}

func (r *BusRelay) handleRead(m *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var env dto.Envelope
	if err := json.Unmarshal(m.Data, &env); err != nil || env.Type != dto.TypeReadMark {
		return
	}
	var req dto.MarkReadRequest
	if err := json.Unmarshal(env.Data, &req); err != nil || req.UserId == uuid.Nil {
		return
	}

	ev, err := r.readService.MarkRead(ctx, req.UserId, &req)
	if err != nil {
		r.hub.logger.Warn("Hub", "Bus mark read failed", map[string]interface{}{
			"request_id": req.RequestId.String(),
			"error":      err.Error(),
		})
		return
	}
	if data, err := dto.NewEnvelope(dto.TypeReadUpdated, ev); err == nil {
		r.hub.BroadcastRoom(req.RequestId, data)
	}
}

func (r *BusRelay) replyError(m *nats.Msg, code, message string, tempId *uuid.UUID) {
	payload, err := dto.NewEnvelope(dto.TypeError, dto.ErrorEvent{
		Code:         code,
		Message:      message,
		ClientTempId: tempId,
	})
	if err != nil {
		return
	}
	_ = m.Respond(payload)
}
