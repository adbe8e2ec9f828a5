package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"helpdesk-chat-core/internal/pkg/logger"
	pktNats "helpdesk-chat-core/pkg/nats"
)

// Hub keeps the ticket rooms. A room is every open connection for one
// service request; broadcasts fan out locally, over Redis to the other hub
// instances, and over NATS room subjects for requester clients that connect
// through the message bus instead of a websocket.
type Hub struct {
	// RequestID -> connections (both participants, multi-device).
	rooms map[uuid.UUID][]*Client

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	rdb            *redis.Client
	clusterChannel string
	publisher      *pktNats.Publisher

	sendLimits *sendLimiter

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, clusterChannel string, publisher *pktNats.Publisher, log logger.ILogger) *Hub {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Hub{
		rooms:          make(map[uuid.UUID][]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		rdb:            rdb,
		clusterChannel: clusterChannel,
		publisher:      publisher,
		sendLimits:     newSendLimiter(sendRatePerMinute),
		logger:         log,
	}
}

func (h *Hub) Run() {
	if h.rdb != nil {
		go h.subscribeToCluster()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.rooms[client.RequestID] = append(h.rooms[client.RequestID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client joined room", map[string]interface{}{
				"request_id": client.RequestID.String(),
				"user_id":    client.UserID.String(),
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.RequestID]; ok {
				for i, c := range clients {
					if c == client {
						// A client leaves the room exactly once, so this
						// close cannot double-fire even when a broadcast
						// drop races the read pump's unregister.
						h.rooms[client.RequestID] = append(clients[:i], clients[i+1:]...)
						close(client.done)
						break
					}
				}
				if len(h.rooms[client.RequestID]) == 0 {
					delete(h.rooms, client.RequestID)
					h.logger.Info("Hub", "Room emptied", map[string]interface{}{
						"request_id": client.RequestID.String(),
					})
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastRoom delivers an encoded envelope to every connection in a ticket
// room, relays it to the other hub instances through Redis, and mirrors it
// onto the NATS room subject.
func (h *Hub) BroadcastRoom(requestId uuid.UUID, data []byte) {
	h.broadcastLocal(requestId, data)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterEnvelope{
			RequestID: requestId.String(),
			Message:   data,
		})
		h.rdb.Publish(context.Background(), h.clusterChannel, payload)
	}

	if h.publisher != nil {
		if err := h.publisher.PublishRoom(pktNats.RoomSubject(requestId, "events"), data); err != nil {
			h.logger.Warn("Hub", "NATS room publish failed", map[string]interface{}{
				"request_id": requestId.String(),
				"error":      err.Error(),
			})
		}
	}
}

// SendTo delivers an envelope to one user's connections in the room, local
// and on sibling instances, used for the ClientTempId echo on confirmed
// messages: the sender's other devices may be connected elsewhere.
func (h *Hub) SendTo(requestId, userId uuid.UUID, data []byte) {
	h.sendToLocal(requestId, userId, data)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterEnvelope{
			RequestID:  requestId.String(),
			TargetUser: userId.String(),
			Message:    data,
		})
		h.rdb.Publish(context.Background(), h.clusterChannel, payload)
	}
}

func (h *Hub) sendToLocal(requestId, userId uuid.UUID, data []byte) {
	h.mu.RLock()
	clients := h.rooms[requestId]
	h.mu.RUnlock()

	for _, client := range clients {
		if client.UserID != userId {
			continue
		}
		select {
		case client.Send <- data:
		default:
			h.drop(client)
		}
	}
}

func (h *Hub) broadcastLocal(requestId uuid.UUID, data []byte) {
	h.mu.RLock()
	clients := h.rooms[requestId]
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.Send <- data:
		default:
			h.drop(client)
		}
	}
}

// broadcastExcept skips the originating user, for typing relays.
func (h *Hub) broadcastExcept(requestId, userId uuid.UUID, data []byte) {
	h.mu.RLock()
	clients := h.rooms[requestId]
	h.mu.RUnlock()

	for _, client := range clients {
		if client.UserID == userId {
			continue
		}
		select {
		case client.Send <- data:
		default:
			h.drop(client)
		}
	}
}

// drop queues a slow client for removal. Only Run closes the client's done
// channel; a second drop or the read pump's own unregister is a no-op once
// the client has left the room.
func (h *Hub) drop(client *Client) {
	h.logger.Warn("Hub", "Client send buffer full, dropping connection", map[string]interface{}{
		"request_id": client.RequestID.String(),
		"user_id":    client.UserID.String(),
	})
	h.unregister <- client
}

// BroadcastRoomExcept is BroadcastRoom minus the originating user's own
// connections, for typing relays. The NATS mirror still reaches everyone;
// requester sessions drop their own typing events.
func (h *Hub) BroadcastRoomExcept(requestId, userId uuid.UUID, data []byte) {
	h.broadcastExcept(requestId, userId, data)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterEnvelope{
			RequestID:   requestId.String(),
			ExcludeUser: userId.String(),
			Message:     data,
		})
		h.rdb.Publish(context.Background(), h.clusterChannel, payload)
	}

	if h.publisher != nil {
		if err := h.publisher.PublishRoom(pktNats.RoomSubject(requestId, pktNats.RoomEvents), data); err != nil {
			h.logger.Warn("Hub", "NATS room publish failed", map[string]interface{}{
				"request_id": requestId.String(),
				"error":      err.Error(),
			})
		}
	}
}

type clusterEnvelope struct {
	RequestID   string          `json:"request_id"`
	ExcludeUser string          `json:"exclude_user,omitempty"`
	// TargetUser narrows delivery to one user's connections, for the
	// sender's temp-id echo reaching their devices on sibling instances.
	TargetUser string          `json:"target_user,omitempty"`
	Message    json.RawMessage `json:"message"`
}

// subscribeToCluster receives room broadcasts published by sibling hub
// instances and replays them to local connections.
func (h *Hub) subscribeToCluster() {
	ctx := context.Background()
	pubsub := h.rdb.Subscribe(ctx, h.clusterChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		h.handleClusterPayload([]byte(msg.Payload))
	}
}

func (h *Hub) handleClusterPayload(raw []byte) {
	var payload clusterEnvelope
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.logger.Warn("Hub", "Cluster message parse error", map[string]interface{}{"error": err.Error()})
		return
	}
	requestId, err := uuid.Parse(payload.RequestID)
	if err != nil {
		return
	}
	if payload.TargetUser != "" {
		if userId, err := uuid.Parse(payload.TargetUser); err == nil {
			h.sendToLocal(requestId, userId, payload.Message)
		}
		return
	}
	if payload.ExcludeUser != "" {
		if userId, err := uuid.Parse(payload.ExcludeUser); err == nil {
			h.broadcastExcept(requestId, userId, payload.Message)
			return
		}
	}
	h.broadcastLocal(requestId, payload.Message)
}
