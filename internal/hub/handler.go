package hub

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"helpdesk-chat-core/internal/service"
)

// ServeWs runs one authenticated connection for a ticket room. Identity
// comes from the route's JWT claims, never from the client payloads.
// Blocks until the connection drops.
func ServeWs(h *Hub, conn *websocket.Conn, userId uuid.UUID, userName string, requestId uuid.UUID, chatSvc service.IChatService, readSvc service.IReadStateService) {
	client := &Client{
		Hub:         h,
		Conn:        conn,
		UserID:      userId,
		UserName:    userName,
		RequestID:   requestId,
		Send:        make(chan []byte, 256),
		done:        make(chan struct{}),
		chatService: chatSvc,
		readService: readSvc,
	}
	client.Hub.register <- client

	// An open connection counts as viewing, which suppresses unread bumps.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := readSvc.SetViewing(ctx, requestId, userId, true); err != nil {
		h.logger.Warn("Hub", "Failed to set viewing flag", map[string]interface{}{
			"request_id": requestId.String(),
			"user_id":    userId.String(),
			"error":      err.Error(),
		})
	}
	cancel()

	go client.writePump()
	client.readPump()

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := readSvc.SetViewing(ctx, requestId, userId, false); err != nil {
		h.logger.Warn("Hub", "Failed to clear viewing flag", map[string]interface{}{
			"request_id": requestId.String(),
			"user_id":    userId.String(),
			"error":      err.Error(),
		})
	}
}
