package hub

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"helpdesk-chat-core/internal/dto"
	"helpdesk-chat-core/pkg/events"
	pktNats "helpdesk-chat-core/pkg/nats"
)

// EventRelay replays durable events from the JetStream CHAT stream into the
// ticket rooms. It stands in for the Redis stream ingest when the hub runs
// without Redis: status and read-state changes published by other processes
// still reach connected clients. Message bodies are not on the durable
// stream, so message-created events are not relayed here.
type EventRelay struct {
	sub *pktNats.Subscriber
	hub *Hub
}

func NewEventRelay(sub *pktNats.Subscriber, h *Hub) *EventRelay {
	return &EventRelay{sub: sub, hub: h}
}

func (r *EventRelay) Start() error {
	return r.sub.Subscribe("chat.events.>", "hub-events", r.handle)
}

func (r *EventRelay) Close() {
	r.sub.Close()
}

func (r *EventRelay) handle(ctx context.Context, event events.Event) error {
	payload := event.Payload()
	requestId, err := uuid.Parse(stringField(payload, "request_id"))
	if err != nil {
		return nil
	}

	switch {
	case strings.HasSuffix(event.EventType(), strings.ToLower(events.TypeTaskStatusChanged)):
		ev := dto.TaskStatusEvent{
			RequestId:     requestId,
			StatusCode:    stringField(payload, "status_code"),
			CountAsSolved: boolField(payload, "count_as_solved"),
		}
		if data, err := dto.NewEnvelope(dto.TypeTaskStatus, ev); err == nil {
			r.hub.broadcastLocal(requestId, data)
		}

	case strings.HasSuffix(event.EventType(), strings.ToLower(events.TypeReadStatusUpdated)):
		userId, err := uuid.Parse(stringField(payload, "user_id"))
		if err != nil {
			return nil
		}
		ev := dto.ReadStatusEvent{
			RequestId:   requestId,
			UserId:      userId,
			UnreadCount: intField(payload, "unread_count"),
		}
		if data, err := dto.NewEnvelope(dto.TypeReadUpdated, ev); err == nil {
			r.hub.broadcastLocal(requestId, data)
		}
	}
	return nil
}

func stringField(payload map[string]interface{}, key string) string {
	v, _ := payload[key].(string)
	return v
}

func boolField(payload map[string]interface{}, key string) bool {
	v, _ := payload[key].(bool)
	return v
}

// intField tolerates json numbers decoding as float64.
func intField(payload map[string]interface{}, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
