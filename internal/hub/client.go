package hub

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"helpdesk-chat-core/internal/dto"
	"helpdesk-chat-core/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	Hub *Hub

	Conn *websocket.Conn

	UserID    uuid.UUID
	UserName  string
	RequestID uuid.UUID

	// Buffered channel of outbound messages. Never closed; the hub signals
	// shutdown through done so concurrent broadcasts cannot hit a closed
	// channel.
	Send chan []byte

	// done is closed by the hub's Run loop when the client leaves its room.
	done chan struct{}

	chatService service.IChatService
	readService service.IReadStateService
}

// readPump pumps inbound envelopes from the websocket connection into the
// services and broadcasts the results.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Hub", "Unexpected close", map[string]interface{}{
					"request_id": c.RequestID.String(),
					"user_id":    c.UserID.String(),
					"error":      err.Error(),
				})
			}
			break
		}
		c.handleInbound(data)
	}
}

func (c *Client) handleInbound(data []byte) {
	var env dto.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch env.Type {
	case dto.TypeMessageSend:
		var req dto.SendMessageRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return
		}
		req.RequestId = c.RequestID
		req.SenderIp = remoteIP(c.Conn)
		c.handleSend(ctx, &req)

	case dto.TypeTyping:
		var ev dto.TypingEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return
		}
		// Identity comes from the connection, not the payload.
		ev.RequestId = c.RequestID
		ev.UserId = c.UserID
		ev.UserName = c.UserName
		if payload, err := dto.NewEnvelope(dto.TypeTyping, ev); err == nil {
			c.Hub.BroadcastRoomExcept(c.RequestID, c.UserID, payload)
		}

	case dto.TypeReadMark:
		var req dto.MarkReadRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return
		}
		req.RequestId = c.RequestID
		ev, err := c.readService.MarkRead(ctx, c.UserID, &req)
		if err != nil {
			c.Hub.logger.Warn("Hub", "Mark read failed", map[string]interface{}{
				"request_id": c.RequestID.String(),
				"user_id":    c.UserID.String(),
				"error":      err.Error(),
			})
			return
		}
		if payload, err := dto.NewEnvelope(dto.TypeReadUpdated, ev); err == nil {
			c.Hub.BroadcastRoom(c.RequestID, payload)
		}
	}
}

func (c *Client) handleSend(ctx context.Context, req *dto.SendMessageRequest) {
	if !c.Hub.sendLimits.Allow(c.UserID) {
		tempId := req.TempId
		c.sendError("rate_limited", "too many messages, slow down", &tempId)
		return
	}
	confirmed, err := c.chatService.SendMessage(ctx, c.UserID, c.UserName, req)
	if err != nil {
		tempId := req.TempId
		c.sendError(sendErrorCode(err), err.Error(), &tempId)
		return
	}
	c.Hub.BroadcastConfirmed(c.UserID, *confirmed)
}

func (c *Client) sendError(code, message string, tempId *uuid.UUID) {
	payload, err := dto.NewEnvelope(dto.TypeError, dto.ErrorEvent{
		Code:         code,
		Message:      message,
		ClientTempId: tempId,
	})
	if err != nil {
		return
	}
	select {
	case c.Send <- payload:
	default:
	}
}

func remoteIP(conn *websocket.Conn) string {
	if conn == nil || conn.RemoteAddr() == nil {
		return ""
	}
	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func sendErrorCode(err error) string {
	switch err {
	case service.ErrRequestSolved:
		return "request_solved"
	case service.ErrRequestNotFound:
		return "request_not_found"
	case service.ErrEmptyMessage:
		return "empty_message"
	case service.ErrContentTooLong:
		return "content_too_long"
	default:
		return "send_failed"
	}
}

// writePump pumps outbound envelopes from the hub to the websocket
// connection, coalescing queued payloads into one frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					return
				}
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
