package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"helpdesk-chat-core/internal/dto"
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrSendRejected = errors.New("transport: send rejected by hub")
)

// Handlers receive typed events from the hub. Nil handlers are skipped.
type Handlers struct {
	OnConfirmed  func(dto.ConfirmedMessage)
	OnReadStatus func(dto.ReadStatusEvent)
	OnTaskStatus func(dto.TaskStatusEvent)
	OnTyping     func(dto.TypingEvent)
	// OnError carries hub-side send rejections for adapters without a
	// request/reply path (the websocket adapter).
	OnError func(dto.ErrorEvent)
}

// Transport owns the single live connection for one ticket chat. Reconnect
// is the adapter's business; callers only observe Connected and the
// disconnect timestamp used for alert derivation.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
	Send(ctx context.Context, req dto.SendMessageRequest) error
	SendTyping(ctx context.Context, ev dto.TypingEvent) error
	MarkRead(ctx context.Context, req dto.MarkReadRequest) error
	Status() Status
	Connected() bool
	// DisconnectedSince is the zero time while connected.
	DisconnectedSince() time.Time
}

// connState is the shared connection bookkeeping for both adapters.
type connState struct {
	mu                sync.RWMutex
	status            Status
	disconnectedSince time.Time
}

func newConnState() *connState {
	return &connState{status: StatusDisconnected, disconnectedSince: time.Now()}
}

func (s *connState) set(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == status {
		return
	}
	s.status = status
	if status == StatusConnected {
		s.disconnectedSince = time.Time{}
	} else if s.disconnectedSince.IsZero() {
		s.disconnectedSince = time.Now()
	}
}

func (s *connState) get() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *connState) since() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disconnectedSince
}
