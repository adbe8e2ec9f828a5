package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"helpdesk-chat-core/internal/dto"
	"helpdesk-chat-core/internal/pkg/logger"
	pktNats "helpdesk-chat-core/pkg/nats"
)

// NATSTransport rides the NATS client's built-in reconnect machinery: the
// adapter never redials itself, it only mirrors the connection callbacks
// into the shared state.
type NATSTransport struct {
	url       string
	requestId uuid.UUID
	handlers  Handlers
	logger    logger.ILogger

	nc    *nats.Conn
	subs  []*nats.Subscription
	state *connState
}

func NewNATSTransport(url string, requestId uuid.UUID, handlers Handlers, log logger.ILogger) *NATSTransport {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &NATSTransport{
		url:       url,
		requestId: requestId,
		handlers:  handlers,
		logger:    log,
		state:     newConnState(),
	}
}

func (t *NATSTransport) Connect(ctx context.Context) error {
	t.state.set(StatusConnecting)

	nc, err := nats.Connect(t.url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			t.state.set(StatusDisconnected)
			details := map[string]interface{}{"request_id": t.requestId.String()}
			if err != nil {
				details["error"] = err.Error()
			}
			t.logger.Warn("TRANSPORT", "NATS connection lost", details)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			t.state.set(StatusConnected)
			t.logger.Info("TRANSPORT", "NATS reconnected", map[string]interface{}{"request_id": t.requestId.String()})
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			t.state.set(StatusDisconnected)
		}),
		// With RetryOnFailedConnect the first dial may land asynchronously.
		nats.ConnectHandler(func(_ *nats.Conn) {
			t.state.set(StatusConnected)
			t.logger.Info("TRANSPORT", "NATS connected", map[string]interface{}{"request_id": t.requestId.String()})
		}),
	)
	if err != nil {
		t.state.set(StatusDisconnected)
		return fmt.Errorf("transport: nats connect: %w", err)
	}
	t.nc = nc

	msgSub, err := nc.Subscribe(pktNats.RoomSubject(t.requestId, pktNats.RoomMessages), func(m *nats.Msg) {
		var confirmed dto.ConfirmedMessage
		if err := json.Unmarshal(m.Data, &confirmed); err != nil {
			t.logger.Warn("TRANSPORT", "Bad message payload", map[string]interface{}{"error": err.Error()})
			return
		}
		if t.handlers.OnConfirmed != nil {
			t.handlers.OnConfirmed(confirmed)
		}
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("transport: subscribe messages: %w", err)
	}

	evtSub, err := nc.Subscribe(pktNats.RoomSubject(t.requestId, pktNats.RoomEvents), func(m *nats.Msg) {
		t.dispatchEvent(m.Data)
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("transport: subscribe events: %w", err)
	}

	t.subs = append(t.subs, msgSub, evtSub)

	// RetryOnFailedConnect hands back a usable handle even when no server is
	// reachable; only report connected once the connection actually is, so
	// the alert ladder engages while the client dials in the background.
	if nc.IsConnected() {
		t.state.set(StatusConnected)
	}
	return nil
}

func (t *NATSTransport) dispatchEvent(data []byte) {
	var env dto.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	switch env.Type {
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

// Send is request/reply: the hub answers with an ack or an error envelope,
// so a rejected send fails here instead of arriving asynchronously.
func (t *NATSTransport) Send(ctx context.Context, req dto.SendMessageRequest) error {
	if t.nc == nil || !t.Connected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	reply, err := t.nc.RequestWithContext(ctx, pktNats.RoomSubject(t.requestId, pktNats.RoomSend), payload)
	if err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}

	var env dto.Envelope
	if err := json.Unmarshal(reply.Data, &env); err != nil {
		return fmt.Errorf("transport: bad send reply: %w", err)
	}
	if env.Type == dto.TypeError {
		var ev dto.ErrorEvent
		if json.Unmarshal(env.Data, &ev) == nil && ev.Message != "" {
			return fmt.Errorf("%w: %s", ErrSendRejected, ev.Message)
		}
		return ErrSendRejected
	}
	return nil
}

func (t *NATSTransport) SendTyping(ctx context.Context, ev dto.TypingEvent) error {
	if t.nc == nil || !t.Connected() {
		return ErrNotConnected
	}
	payload, err := dto.NewEnvelope(dto.TypeTyping, ev)
	if err != nil {
		return err
	}
	return t.nc.Publish(pktNats.RoomSubject(t.requestId, pktNats.RoomTyping), payload)
}

func (t *NATSTransport) MarkRead(ctx context.Context, req dto.MarkReadRequest) error {
	if t.nc == nil || !t.Connected() {
		return ErrNotConnected
	}
	payload, err := dto.NewEnvelope(dto.TypeReadMark, req)
	if err != nil {
		return err
	}
	return t.nc.Publish(pktNats.RoomSubject(t.requestId, pktNats.RoomRead), payload)
}

func (t *NATSTransport) Status() Status {
	return t.state.get()
}

func (t *NATSTransport) Connected() bool {
	return t.state.get() == StatusConnected
}

func (t *NATSTransport) DisconnectedSince() time.Time {
	return t.state.since()
}

func (t *NATSTransport) Close() error {
	for _, sub := range t.subs {
		_ = sub.Unsubscribe()
	}
	t.subs = nil
	if t.nc != nil {
		t.nc.Close()
		t.nc = nil
	}
	t.state.set(StatusDisconnected)
	return nil
}
