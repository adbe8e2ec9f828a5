package hub

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"helpdesk-chat-core/internal/dto"
	pktNats "helpdesk-chat-core/pkg/nats"
)

// BroadcastConfirmed fans a persisted message out to the ticket room. The
// sender's own connections get the ClientTempId echo so their optimistic
// entry reconciles in place; everyone else gets the payload without it.
// The NATS mirror keeps the temp id: sessions that don't recognize it fall
// back to a plain append.
func (h *Hub) BroadcastConfirmed(senderId uuid.UUID, confirmed dto.ConfirmedMessage) {
	public := confirmed
	public.ClientTempId = nil

	if payload, err := dto.NewEnvelope(dto.TypeMessageConfirmed, public); err == nil {
		h.broadcastExcept(confirmed.RequestId, senderId, payload)

		if h.rdb != nil {
			cluster, _ := json.Marshal(clusterEnvelope{
				RequestID:   confirmed.RequestId.String(),
				ExcludeUser: senderId.String(),
				Message:     payload,
			})
			h.rdb.Publish(context.Background(), h.clusterChannel, cluster)
		}
	}

	if payload, err := dto.NewEnvelope(dto.TypeMessageConfirmed, confirmed); err == nil {
		h.SendTo(confirmed.RequestId, senderId, payload)
	}

	if h.publisher != nil {
		raw, err := json.Marshal(confirmed)
		if err == nil {
			err = h.publisher.PublishRoom(pktNats.RoomSubject(confirmed.RequestId, pktNats.RoomMessages), raw)
		}
		if err != nil {
			h.logger.Warn("Hub", "NATS confirmed publish failed", map[string]interface{}{
				"request_id": confirmed.RequestId.String(),
				"error":      err.Error(),
			})
		}
	}
}

// BroadcastSystem posts an already-confirmed system message to the room.
func (h *Hub) BroadcastSystem(confirmed dto.ConfirmedMessage) {
	if payload, err := dto.NewEnvelope(dto.TypeMessageConfirmed, confirmed); err == nil {
		h.BroadcastRoom(confirmed.RequestId, payload)
	}
	if h.publisher != nil {
		if raw, err := json.Marshal(confirmed); err == nil {
			h.publisher.PublishRoom(pktNats.RoomSubject(confirmed.RequestId, pktNats.RoomMessages), raw)
		}
	}
}
