package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk-chat-core/internal/dto"
	"helpdesk-chat-core/internal/entity"
	"helpdesk-chat-core/internal/repository/specification"
	"helpdesk-chat-core/pkg/events"
)

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[string][]*entity.ChatMessage
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[string][]*entity.ChatMessage)}
}

func (f *fakeMessageRepo) CreateWithSequence(ctx context.Context, message *entity.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := message.RequestId.String()
	var maxSeq int64
	for _, m := range f.messages[key] {
		if m.SequenceNumber > maxSeq {
			maxSeq = m.SequenceNumber
		}
	}
	message.SequenceNumber = maxSeq + 1
	if message.Id == uuid.Nil {
		message.Id = uuid.New()
	}
	stored := *message
	f.messages[key] = append(f.messages[key], &stored)
	return nil
}

func (f *fakeMessageRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatMessage, error) {
	return nil, nil
}

func (f *fakeMessageRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error) {
	return nil, nil
}

func (f *fakeMessageRepo) FindPage(ctx context.Context, requestId uuid.UUID, beforeSequence *int64, limit int) ([]*entity.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.ChatMessage
	for _, m := range f.messages[requestId.String()] {
		if beforeSequence != nil && m.SequenceNumber >= *beforeSequence {
			continue
		}
		out = append(out, m)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeMessageRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	return 0, nil
}

func (f *fakeMessageRepo) MaxSequence(ctx context.Context, requestId uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var maxSeq int64
	for _, m := range f.messages[requestId.String()] {
		if m.SequenceNumber > maxSeq {
			maxSeq = m.SequenceNumber
		}
	}
	return maxSeq, nil
}

type fakeRequestRepo struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*entity.ServiceRequest
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: make(map[uuid.UUID]*entity.ServiceRequest)}
}

func (f *fakeRequestRepo) Create(ctx context.Context, request *entity.ServiceRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[request.Id] = request
	return nil
}

func (f *fakeRequestRepo) FindById(ctx context.Context, id uuid.UUID) (*entity.ServiceRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.requests[id]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeRequestRepo) UpdateStatus(ctx context.Context, id uuid.UUID, statusCode string, countAsSolved bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.requests[id]; ok {
		r.StatusCode = statusCode
		r.CountAsSolved = countAsSolved
	}
	return nil
}

func (f *fakeRequestRepo) MarkFirstResponse(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.requests[id]; ok && r.FirstResponseAt == nil {
		now := time.Now()
		r.FirstResponseAt = &now
	}
	return nil
}

type fakeReadRepo struct {
	mu         sync.Mutex
	increments map[uuid.UUID][]uuid.UUID
	viewing    map[uuid.UUID]bool
}

func newFakeReadRepo() *fakeReadRepo {
	return &fakeReadRepo{
		increments: make(map[uuid.UUID][]uuid.UUID),
		viewing:    make(map[uuid.UUID]bool),
	}
}

func (f *fakeReadRepo) GetOrCreate(ctx context.Context, requestId, userId uuid.UUID) (*entity.ChatReadState, error) {
	return &entity.ChatReadState{RequestId: requestId, UserId: userId}, nil
}

func (f *fakeReadRepo) MarkRead(ctx context.Context, requestId, userId uuid.UUID, lastMessageId *uuid.UUID) (*entity.ChatReadState, error) {
	now := time.Now()
	return &entity.ChatReadState{
		RequestId:         requestId,
		UserId:            userId,
		UnreadCount:       0,
		LastReadAt:        &now,
		LastReadMessageId: lastMessageId,
	}, nil
}

func (f *fakeReadRepo) IncrementUnread(ctx context.Context, requestId uuid.UUID, userIds []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.increments[requestId] = append(f.increments[requestId], userIds...)
	return nil
}

func (f *fakeReadRepo) SetViewing(ctx context.Context, requestId, userId uuid.UUID, viewing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewing[userId] = viewing
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakePublisher) Publish(ctx context.Context, event events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) typesSeen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.EventType()
	}
	return out
}

func seedRequest(repo *fakeRequestRepo, solved bool) *entity.ServiceRequest {
	assignee := uuid.New()
	r := &entity.ServiceRequest{
		Id:            uuid.New(),
		Title:         "VPN not connecting",
		RequesterId:   uuid.New(),
		AssigneeId:    &assignee,
		StatusCode:    "in_progress",
		CountAsSolved: solved,
	}
	repo.requests[r.Id] = r
	return r
}

func newTestChatService(t *testing.T) (IChatService, *fakeMessageRepo, *fakeRequestRepo, *fakeReadRepo, *fakePublisher) {
	t.Helper()
	messages := newFakeMessageRepo()
	requests := newFakeRequestRepo()
	reads := newFakeReadRepo()
	pub := &fakePublisher{}
	svc := NewChatService(messages, requests, reads, pub, nil)
	return svc, messages, requests, reads, pub
}

func sendReq(requestId uuid.UUID, content string) *dto.SendMessageRequest {
	return &dto.SendMessageRequest{
		TempId:    uuid.New(),
		RequestId: requestId,
		Content:   content,
	}
}

func TestSendMessageAssignsIncreasingSequence(t *testing.T) {
	svc, _, requests, _, pub := newTestChatService(t)
	r := seedRequest(requests, false)

	first, err := svc.SendMessage(context.Background(), r.RequesterId, "Requester", sendReq(r.Id, "hello"))
	require.NoError(t, err)
	second, err := svc.SendMessage(context.Background(), *r.AssigneeId, "Agent", sendReq(r.Id, "hi there"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.SequenceNumber)
	assert.Equal(t, int64(2), second.SequenceNumber)
	assert.Contains(t, pub.typesSeen(), events.TypeMessageCreated)
}

func TestSendMessageEchoesClientTempId(t *testing.T) {
	svc, _, requests, _, _ := newTestChatService(t)
	r := seedRequest(requests, false)

	req := sendReq(r.Id, "hello")
	confirmed, err := svc.SendMessage(context.Background(), r.RequesterId, "Requester", req)
	require.NoError(t, err)
	require.NotNil(t, confirmed.ClientTempId)
	assert.Equal(t, req.TempId, *confirmed.ClientTempId)
}

func TestSendMessageRejectedWhenSolved(t *testing.T) {
	svc, messages, requests, _, _ := newTestChatService(t)
	r := seedRequest(requests, true)

	_, err := svc.SendMessage(context.Background(), r.RequesterId, "Requester", sendReq(r.Id, "too late"))
	assert.ErrorIs(t, err, ErrRequestSolved)
	assert.Empty(t, messages.messages[r.Id.String()])
}

func TestSendMessageUnknownRequest(t *testing.T) {
	svc, _, _, _, _ := newTestChatService(t)

	_, err := svc.SendMessage(context.Background(), uuid.New(), "Ghost", sendReq(uuid.New(), "hello?"))
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestSendMessageValidation(t *testing.T) {
	svc, _, requests, _, _ := newTestChatService(t)
	r := seedRequest(requests, false)

	// Missing temp id fails struct validation.
	_, err := svc.SendMessage(context.Background(), r.RequesterId, "Requester", &dto.SendMessageRequest{
		RequestId: r.Id,
		Content:   "hello",
	})
	assert.Error(t, err)

	// Whitespace-only content with no attachment is rejected after trim.
	req := sendReq(r.Id, "   ")
	req.Content = "   "
	_, err = svc.SendMessage(context.Background(), r.RequesterId, "Requester", req)
	assert.Error(t, err)

	// Over the content cap.
	_, err = svc.SendMessage(context.Background(), r.RequesterId, "Requester", sendReq(r.Id, strings.Repeat("x", maxContentLength+1)))
	assert.ErrorIs(t, err, ErrContentTooLong)
}

func TestSendMessageStripsDisallowedMarkup(t *testing.T) {
	svc, messages, requests, _, _ := newTestChatService(t)
	r := seedRequest(requests, false)

	confirmed, err := svc.SendMessage(context.Background(), r.RequesterId, "Requester", sendReq(r.Id, `<b>hi</b><script>alert("x")</script>`))
	require.NoError(t, err)
	assert.Equal(t, "<b>hi</b>", confirmed.Content)

	stored := messages.messages[r.Id.String()]
	require.Len(t, stored, 1)
	assert.Equal(t, "<b>hi</b>", stored[0].Content)

	// Markup-only content that sanitizes away counts as empty.
	_, err = svc.SendMessage(context.Background(), r.RequesterId, "Requester", sendReq(r.Id, `<script>alert("x")</script>`))
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSendMessageRecordsSenderIp(t *testing.T) {
	svc, messages, requests, _, _ := newTestChatService(t)
	r := seedRequest(requests, false)

	req := sendReq(r.Id, "hello")
	req.SenderIp = "203.0.113.9"
	_, err := svc.SendMessage(context.Background(), r.RequesterId, "Requester", req)
	require.NoError(t, err)

	stored := messages.messages[r.Id.String()]
	require.Len(t, stored, 1)
	assert.Equal(t, "203.0.113.9", stored[0].IpAddress)
}

func TestSendMessageBumpsUnreadForOtherParticipantsOnly(t *testing.T) {
	svc, _, requests, reads, _ := newTestChatService(t)
	r := seedRequest(requests, false)

	_, err := svc.SendMessage(context.Background(), r.RequesterId, "Requester", sendReq(r.Id, "ping"))
	require.NoError(t, err)

	recipients := reads.increments[r.Id]
	require.Len(t, recipients, 1)
	assert.Equal(t, *r.AssigneeId, recipients[0])
}

func TestAssigneeFirstReplyStampsFirstResponse(t *testing.T) {
	svc, _, requests, _, _ := newTestChatService(t)
	r := seedRequest(requests, false)

	_, err := svc.SendMessage(context.Background(), *r.AssigneeId, "Agent", sendReq(r.Id, "on it"))
	require.NoError(t, err)

	stored, _ := requests.FindById(context.Background(), r.Id)
	assert.NotNil(t, stored.FirstResponseAt)
}

func TestPostSystemMessageEmbedsPayload(t *testing.T) {
	svc, messages, requests, _, _ := newTestChatService(t)
	r := seedRequest(requests, false)

	confirmed, err := svc.PostSystemMessage(context.Background(), r.Id, "STATUS_CHANGED", "Solved")
	require.NoError(t, err)
	assert.Nil(t, confirmed.SenderId)
	assert.Equal(t, "STATUS_CHANGED|Solved", confirmed.Content)
	assert.Equal(t, int64(1), confirmed.SequenceNumber)
	require.Len(t, messages.messages[r.Id.String()], 1)

	// The event code and payload are also stored structured, not only
	// delimiter-embedded in the content.
	stored := messages.messages[r.Id.String()][0]
	assert.Equal(t, "STATUS_CHANGED", stored.Metadata["code"])
	assert.Equal(t, "Solved", stored.Metadata["payload"])
}

func TestUpdateTaskStatusPostsSystemLineAndPublishes(t *testing.T) {
	svc, messages, requests, _, pub := newTestChatService(t)
	r := seedRequest(requests, false)

	ev, err := svc.UpdateTaskStatus(context.Background(), r.Id, "solved", true)
	require.NoError(t, err)
	assert.True(t, ev.CountAsSolved)

	stored, _ := requests.FindById(context.Background(), r.Id)
	assert.True(t, stored.CountAsSolved)
	require.Len(t, messages.messages[r.Id.String()], 1)
	assert.Contains(t, pub.typesSeen(), events.TypeTaskStatusChanged)

	// Follow-up sends bounce off the solved gate.
	_, err = svc.SendMessage(context.Background(), r.RequesterId, "Requester", sendReq(r.Id, "wait"))
	assert.ErrorIs(t, err, ErrRequestSolved)
}

func TestGetHistoryPagesBackwards(t *testing.T) {
	svc, _, requests, _, _ := newTestChatService(t)
	r := seedRequest(requests, false)

	for i := 0; i < 5; i++ {
		_, err := svc.SendMessage(context.Background(), r.RequesterId, "Requester", sendReq(r.Id, "msg"))
		require.NoError(t, err)
	}

	page, err := svc.GetHistory(context.Background(), &dto.HistoryQuery{RequestId: r.Id, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(4), page[0].SequenceNumber)
	assert.Equal(t, int64(5), page[1].SequenceNumber)

	before := int64(4)
	page, err = svc.GetHistory(context.Background(), &dto.HistoryQuery{RequestId: r.Id, BeforeSequence: &before, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].SequenceNumber)
	assert.Equal(t, int64(3), page[1].SequenceNumber)
}

func TestMarkReadZeroesUnread(t *testing.T) {
	reads := newFakeReadRepo()
	pub := &fakePublisher{}
	svc := NewReadStateService(reads, pub, nil)

	requestId, userId := uuid.New(), uuid.New()
	ev, err := svc.MarkRead(context.Background(), userId, &dto.MarkReadRequest{RequestId: requestId})
	require.NoError(t, err)
	assert.Zero(t, ev.UnreadCount)
	assert.NotNil(t, ev.LastReadAt)
	assert.Contains(t, pub.typesSeen(), events.TypeReadStatusUpdated)
}
