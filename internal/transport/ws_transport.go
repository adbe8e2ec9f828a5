package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"helpdesk-chat-core/internal/dto"
	"helpdesk-chat-core/internal/pkg/logger"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 64 * 1024

	wsRedialMin = time.Second
	wsRedialMax = 30 * time.Second
)

// WSTransport dials the hub's websocket endpoint directly. Unlike the NATS
// adapter it has to run its own redial loop; send rejections arrive
// asynchronously through OnError.
type WSTransport struct {
	url       string
	token     string
	requestId uuid.UUID
	handlers  Handlers
	logger    logger.ILogger

	mu     sync.Mutex
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
	state  *connState
}

func NewWSTransport(url, token string, requestId uuid.UUID, handlers Handlers, log logger.ILogger) *WSTransport {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &WSTransport{
		url:       url,
		token:     token,
		requestId: requestId,
		handlers:  handlers,
		logger:    log,
		sendCh:    make(chan []byte, 64),
		done:      make(chan struct{}),
		state:     newConnState(),
	}
}

// Connect performs the first dial synchronously so callers learn about a
// dead hub immediately, then hands the connection to the redial loop.
func (t *WSTransport) Connect(ctx context.Context) error {
	t.state.set(StatusConnecting)

	conn, err := t.dial(ctx)
	if err != nil {
		t.state.set(StatusDisconnected)
		go t.run()
		return fmt.Errorf("transport: websocket dial: %w", err)
	}

	t.setConn(conn)
	t.state.set(StatusConnected)
	go t.writePump(conn)
	go func() {
		t.readPump(conn)
		t.run()
	}()
	return nil
}

func (t *WSTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if t.token != "" {
		header.Set("Authorization", "Bearer "+t.token)
	}
	url := fmt.Sprintf("%s?request_id=%s", t.url, t.requestId)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	return conn, err
}

// run redials with capped exponential backoff until Close.
func (t *WSTransport) run() {
	backoff := wsRedialMin
	for {
		select {
		case <-t.done:
			return
		case <-time.After(backoff):
		}

		conn, err := t.dial(context.Background())
		if err != nil {
			t.logger.Warn("TRANSPORT", "Websocket redial failed", map[string]interface{}{
				"request_id": t.requestId.String(),
				"error":      err.Error(),
			})
			backoff *= 2
			if backoff > wsRedialMax {
				backoff = wsRedialMax
			}
			continue
		}

		t.setConn(conn)
		t.state.set(StatusConnected)
		t.logger.Info("TRANSPORT", "Websocket reconnected", map[string]interface{}{"request_id": t.requestId.String()})
		go t.writePump(conn)
		t.readPump(conn)
		backoff = wsRedialMin

		select {
		case <-t.done:
			return
		default:
		}
	}
}

func (t *WSTransport) setConn(conn *websocket.Conn) {
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
}

// readPump blocks until the connection drops, dispatching envelopes.
func (t *WSTransport) readPump(conn *websocket.Conn) {
	defer func() {
		t.state.set(StatusDisconnected)
		conn.Close()
	}()

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		t.dispatch(data)
	}
}

func (t *WSTransport) dispatch(data []byte) {
	var env dto.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	switch env.Type {
	case dto.TypeMessageConfirmed:
		var confirmed dto.ConfirmedMessage
		if json.Unmarshal(env.Data, &confirmed) == nil && t.handlers.OnConfirmed != nil {
			t.handlers.OnConfirmed(confirmed)
		}
	case dto.TypeReadUpdated:
		var ev dto.ReadStatusEvent
		if json.Unmarshal(env.Data, &ev) == nil && t.handlers.OnReadStatus != nil {
			t.handlers.OnReadStatus(ev)
		}
	case dto.TypeTaskStatus:
		var ev dto.TaskStatusEvent
		if json.Unmarshal(env.Data, &ev) == nil && t.handlers.OnTaskStatus != nil {
			t.handlers.OnTaskStatus(ev)
		}
	case dto.TypeTyping:
		var ev dto.TypingEvent
		if json.Unmarshal(env.Data, &ev) == nil && t.handlers.OnTyping != nil {
			t.handlers.OnTyping(ev)
		}
	case dto.TypeError:
		var ev dto.ErrorEvent
		if json.Unmarshal(env.Data, &ev) == nil && t.handlers.OnError != nil {
			t.handlers.OnError(ev)
		}
	}
}

func (t *WSTransport) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-t.done:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-t.sendCh:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (t *WSTransport) enqueue(envType string, data interface{}) error {
	if !t.Connected() {
		return ErrNotConnected
	}
	payload, err := dto.NewEnvelope(envType, data)
	if err != nil {
		return err
	}
	select {
	case t.sendCh <- payload:
		return nil
	default:
		return fmt.Errorf("transport: send buffer full")
	}
}

func (t *WSTransport) Send(ctx context.Context, req dto.SendMessageRequest) error {
	return t.enqueue(dto.TypeMessageSend, req)
}

func (t *WSTransport) SendTyping(ctx context.Context, ev dto.TypingEvent) error {
	return t.enqueue(dto.TypeTyping, ev)
}

func (t *WSTransport) MarkRead(ctx context.Context, req dto.MarkReadRequest) error {
	return t.enqueue(dto.TypeReadMark, req)
}

func (t *WSTransport) Status() Status {
	return t.state.get()
}

func (t *WSTransport) Connected() bool {
	return t.state.get() == StatusConnected
}

func (t *WSTransport) DisconnectedSince() time.Time {
	return t.state.since()
}

func (t *WSTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.mu.Unlock()
	t.state.set(StatusDisconnected)
	return nil
}
