package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"helpdesk-chat-core/internal/cache"
	"helpdesk-chat-core/internal/dto"
	"helpdesk-chat-core/internal/entity"
	"helpdesk-chat-core/internal/pkg/logger"
	"helpdesk-chat-core/internal/transport"
)

var (
	ErrChatReadOnly        = errors.New("chat: request is solved, chat is read-only")
	ErrMessagingNotAllowed = errors.New("chat: messaging not permitted")
	ErrUnknownTempId       = errors.New("chat: no failed message with that temp id")
)

// User is the minimal identity attached to outgoing messages for optimistic
// rendering before the hub echo.
type User struct {
	Id          uuid.UUID
	Username    string
	DisplayName string
}

// MessagingPermission is computed elsewhere (assignee/requester/role checks)
// and treated as an opaque, advisory input here.
type MessagingPermission struct {
	Allowed bool
	Reason  string
}

type Options struct {
	RequestId  uuid.UUID
	User       User
	Permission MessagingPermission
	// Solved marks the ticket terminal: the session never connects and all
	// sends fail with ErrChatReadOnly.
	Solved bool
	Cache  *cache.MessageCache
	Logger logger.ILogger
	Alerts transport.AlertThresholds
	// ScreenshotURL maps a stored screenshot file name to a display URL.
	ScreenshotURL func(fileName string) string
}

// Session is the one object the UI consumes: cache history and live
// transport events merged into a single ordered message sequence, plus the
// derived screenshot projection and the connection alert state.
type Session struct {
	requestId uuid.UUID
	user      User
	cache     *cache.MessageCache
	logger    logger.ILogger
	alert     *transport.AlertMonitor
	urlFor    func(string) string

	mu          sync.Mutex
	transport   transport.Transport
	perm        MessagingPermission
	readOnly    bool
	needsReload bool
	pending     map[uuid.UUID]dto.SendMessageRequest
	inflight    map[uuid.UUID]bool
	readStatus  map[uuid.UUID]dto.ReadStatusEvent
	typing      map[uuid.UUID]typingEntry
	viewer      viewerState
}

type typingEntry struct {
	name string
	at   time.Time
}

func NewSession(opts Options) *Session {
	if opts.Cache == nil {
		panic("chat: session requires a message cache")
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	urlFor := opts.ScreenshotURL
	if urlFor == nil {
		urlFor = func(name string) string { return name }
	}
	thresholds := opts.Alerts
	if thresholds == (transport.AlertThresholds{}) {
		thresholds = transport.DefaultAlertThresholds()
	}
	return &Session{
		requestId:  opts.RequestId,
		user:       opts.User,
		cache:      opts.Cache,
		logger:     log,
		alert:      transport.NewAlertMonitor(thresholds, time.Now()),
		urlFor:     urlFor,
		perm:       opts.Permission,
		readOnly:   opts.Solved,
		pending:    make(map[uuid.UUID]dto.SendMessageRequest),
		inflight:   make(map[uuid.UUID]bool),
		readStatus: make(map[uuid.UUID]dto.ReadStatusEvent),
		typing:     make(map[uuid.UUID]typingEntry),
	}
}

// Handlers returns the callbacks to hand the transport adapter at
// construction time.
func (s *Session) Handlers() transport.Handlers {
	return transport.Handlers{
		OnConfirmed:  s.onConfirmed,
		OnReadStatus: s.onReadStatus,
		OnTaskStatus: s.onTaskStatus,
		OnTyping:     s.onTyping,
		OnError:      s.onError,
	}
}

// Attach binds the transport built with this session's Handlers.
func (s *Session) Attach(t transport.Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport != nil {
		panic("chat: session already has a transport")
	}
	s.transport = t
}

// Start warms the cache and, unless the ticket is solved, opens the
// connection. A failed initial connect flips NeedsReload; the adapter keeps
// redialing regardless.
func (s *Session) Start(ctx context.Context) error {
	if _, err := s.cache.Preload(ctx, s.requestId); err != nil {
		return err
	}

	s.mu.Lock()
	t := s.transport
	readOnly := s.readOnly
	s.mu.Unlock()

	if readOnly || t == nil {
		return nil
	}
	if err := t.Connect(ctx); err != nil {
		s.mu.Lock()
		s.needsReload = true
		s.mu.Unlock()
		s.logger.Error("CHAT", "Initial connect failed", map[string]interface{}{
			"request_id": s.requestId.String(),
			"error":      err.Error(),
		})
		return err
	}
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t != nil {
		return t.Close()
	}
	return nil
}

// Event handlers.

func (s *Session) onConfirmed(msg dto.ConfirmedMessage) {
	if msg.RequestId != s.requestId {
		return
	}
	e := msg.ToEntity()
	if msg.ClientTempId != nil {
		if s.cache.Confirm(s.requestId, *msg.ClientTempId, e) {
			s.mu.Lock()
			delete(s.pending, *msg.ClientTempId)
			delete(s.inflight, *msg.ClientTempId)
			s.mu.Unlock()
			return
		}
	}
	s.cache.Append(e)
}

func (s *Session) onReadStatus(ev dto.ReadStatusEvent) {
	if ev.RequestId != s.requestId {
		return
	}
	s.mu.Lock()
	s.readStatus[ev.UserId] = ev
	s.mu.Unlock()
}

func (s *Session) onTaskStatus(ev dto.TaskStatusEvent) {
	if ev.RequestId != s.requestId {
		return
	}
	s.mu.Lock()
	s.readOnly = ev.CountAsSolved
	s.mu.Unlock()
}

func (s *Session) onTyping(ev dto.TypingEvent) {
	if ev.RequestId != s.requestId || ev.UserId == s.user.Id {
		return
	}
	s.mu.Lock()
	if ev.IsTyping {
		s.typing[ev.UserId] = typingEntry{name: ev.UserName, at: time.Now()}
	} else {
		delete(s.typing, ev.UserId)
	}
	s.mu.Unlock()
}

func (s *Session) onError(ev dto.ErrorEvent) {
	if ev.ClientTempId != nil {
		s.cache.SetStatus(s.requestId, *ev.ClientTempId, entity.DeliveryFailed)
		s.mu.Lock()
		delete(s.inflight, *ev.ClientTempId)
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	s.needsReload = true
	s.mu.Unlock()
	s.logger.Warn("CHAT", "Hub reported error", map[string]interface{}{
		"request_id": s.requestId.String(),
		"code":       ev.Code,
		"message":    ev.Message,
	})
}

// Send creates the optimistic pending message and dispatches it. Returns the
// temp id the caller can use for retry/discard.
func (s *Session) Send(ctx context.Context, content string) (uuid.UUID, error) {
	return s.SendWithAttachment(ctx, content, Attachment{})
}

// Attachment describes an optional screenshot or file riding on a message.
type Attachment struct {
	IsScreenshot       bool
	ScreenshotFileName string
	FileName           string
	FileSize           int64
	FileMimeType       string
}

func (s *Session) SendWithAttachment(ctx context.Context, content string, att Attachment) (uuid.UUID, error) {
	if ok, reason := s.CanMessage(); !ok {
		if reason == solvedReason {
			return uuid.Nil, ErrChatReadOnly
		}
		return uuid.Nil, ErrMessagingNotAllowed
	}

	tempId := uuid.New()
	senderId := s.user.Id
	s.cache.Append(&entity.ChatMessage{
		RequestId:          s.requestId,
		SenderId:           &senderId,
		SenderName:         s.user.DisplayName,
		Content:            content,
		IsScreenshot:       att.IsScreenshot,
		ScreenshotFileName: att.ScreenshotFileName,
		FileName:           att.FileName,
		FileSize:           att.FileSize,
		FileMimeType:       att.FileMimeType,
		CreatedAt:          time.Now(),
		TempId:             tempId,
		Status:             entity.DeliveryPending,
	})

	req := dto.SendMessageRequest{
		TempId:             tempId,
		RequestId:          s.requestId,
		SenderId:           s.user.Id,
		SenderName:         s.user.DisplayName,
		Content:            content,
		IsScreenshot:       att.IsScreenshot,
		ScreenshotFileName: att.ScreenshotFileName,
		FileName:           att.FileName,
		FileSize:           att.FileSize,
		FileMimeType:       att.FileMimeType,
	}

	s.mu.Lock()
	s.pending[tempId] = req
	s.mu.Unlock()

	s.dispatch(ctx, tempId, req)
	return tempId, nil
}

// dispatch guarantees at most one in-flight attempt per temp id.
func (s *Session) dispatch(ctx context.Context, tempId uuid.UUID, req dto.SendMessageRequest) {
	s.mu.Lock()
	if s.inflight[tempId] {
		s.mu.Unlock()
		return
	}
	s.inflight[tempId] = true
	t := s.transport
	s.mu.Unlock()

	if t == nil {
		s.cache.SetStatus(s.requestId, tempId, entity.DeliveryFailed)
		s.mu.Lock()
		delete(s.inflight, tempId)
		s.mu.Unlock()
		return
	}

	go func() {
		err := t.Send(ctx, req)
		s.mu.Lock()
		delete(s.inflight, tempId)
		s.mu.Unlock()
		if err != nil {
			s.cache.SetStatus(s.requestId, tempId, entity.DeliveryFailed)
			s.logger.Warn("CHAT", "Message send failed", map[string]interface{}{
				"request_id": s.requestId.String(),
				"temp_id":    tempId.String(),
				"error":      err.Error(),
			})
		}
	}()
}

// Retry re-attempts a failed message with its original payload.
func (s *Session) Retry(ctx context.Context, tempId uuid.UUID) error {
	s.mu.Lock()
	req, ok := s.pending[tempId]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownTempId
	}
	if !s.cache.SetStatus(s.requestId, tempId, entity.DeliveryPending) {
		return ErrUnknownTempId
	}
	s.dispatch(ctx, tempId, req)
	return nil
}

// Discard removes a failed message locally. The hub is never contacted.
func (s *Session) Discard(tempId uuid.UUID) error {
	if !s.cache.Remove(s.requestId, tempId) {
		return ErrUnknownTempId
	}
	s.mu.Lock()
	delete(s.pending, tempId)
	delete(s.inflight, tempId)
	s.mu.Unlock()
	return nil
}

// Reads.

func (s *Session) RequestId() uuid.UUID {
	return s.requestId
}

func (s *Session) Messages() []*entity.ChatMessage {
	return s.cache.MessagesSync(s.requestId)
}

func (s *Session) Preload(ctx context.Context) ([]*entity.ChatMessage, error) {
	return s.cache.Preload(ctx, s.requestId)
}

func (s *Session) LoadOlder(ctx context.Context, limit int) (int, error) {
	return s.cache.LoadOlder(ctx, s.requestId, limit)
}

func (s *Session) Subscribe(fn func(cache.ChangeEvent)) func() {
	return s.cache.Subscribe(s.requestId, fn)
}

const solvedReason = "request is solved"

// CanMessage is advisory for the UI input state; it never alters cache or
// transport state.
func (s *Session) CanMessage() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return false, solvedReason
	}
	if !s.perm.Allowed {
		reason := s.perm.Reason
		if reason == "" {
			reason = "messaging not permitted"
		}
		return false, reason
	}
	return true, ""
}

func (s *Session) ReadOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readOnly
}

func (s *Session) NeedsReload() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsReload
}

// AlertLevel derives the graduated connection banner state.
func (s *Session) AlertLevel(now time.Time) transport.AlertLevel {
	s.mu.Lock()
	t := s.transport
	readOnly := s.readOnly
	s.mu.Unlock()
	if readOnly || t == nil {
		return transport.AlertNone
	}
	return s.alert.Level(now, t.Connected(), t.DisconnectedSince())
}

// TypingUsers lists display names with a typing signal fresher than 5s.
func (s *Session) TypingUsers(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for id, e := range s.typing {
		if now.Sub(e.at) > 5*time.Second {
			delete(s.typing, id)
			continue
		}
		names = append(names, e.name)
	}
	return names
}

// ReadStatus returns the last read-status event seen for a user.
func (s *Session) ReadStatus(userId uuid.UUID) (dto.ReadStatusEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.readStatus[userId]
	return ev, ok
}

// MarkRead tells the hub this user has caught up on the ticket.
func (s *Session) MarkRead(ctx context.Context) error {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil || !t.Connected() {
		return transport.ErrNotConnected
	}
	var lastId *uuid.UUID
	msgs := s.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Confirmed() {
			id := msgs[i].Id
			lastId = &id
			break
		}
	}
	return t.MarkRead(ctx, dto.MarkReadRequest{RequestId: s.requestId, UserId: s.user.Id, LastMessageId: lastId})
}

// Typing publishes this user's typing signal.
func (s *Session) Typing(ctx context.Context, isTyping bool) error {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil || !t.Connected() {
		return transport.ErrNotConnected
	}
	return t.SendTyping(ctx, dto.TypingEvent{
		RequestId: s.requestId,
		UserId:    s.user.Id,
		UserName:  s.user.DisplayName,
		IsTyping:  isTyping,
	})
}
