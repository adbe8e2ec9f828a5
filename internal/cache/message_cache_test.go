package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk-chat-core/internal/entity"
)

type fakeStore struct {
	mu    sync.Mutex
	pages map[string][]*entity.ChatMessage
	calls int
	err   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{pages: make(map[string][]*entity.ChatMessage)}
}

func (f *fakeStore) Page(ctx context.Context, requestId uuid.UUID, beforeSequence *int64, limit int) ([]*entity.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	all := f.pages[requestId.String()]
	var out []*entity.ChatMessage
	for _, m := range all {
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

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func confirmedMsg(requestId uuid.UUID, seq int64, content string) *entity.ChatMessage {
	sender := uuid.New()
	return &entity.ChatMessage{
		Id:             uuid.New(),
		RequestId:      requestId,
		SenderId:       &sender,
		SenderName:     "Agent",
		Content:        content,
		SequenceNumber: seq,
		CreatedAt:      time.Now(),
		Status:         entity.DeliverySent,
	}
}

func pendingMsg(requestId uuid.UUID, content string) *entity.ChatMessage {
	sender := uuid.New()
	return &entity.ChatMessage{
		RequestId:  requestId,
		SenderId:   &sender,
		SenderName: "Me",
		Content:    content,
		CreatedAt:  time.Now(),
		TempId:     uuid.New(),
		Status:     entity.DeliveryPending,
	}
}

func sequences(msgs []*entity.ChatMessage) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.SequenceNumber
	}
	return out
}

func TestPreloadWarmsOnceAndIsIdempotent(t *testing.T) {
	requestId := uuid.New()
	store := newFakeStore()
	store.pages[requestId.String()] = []*entity.ChatMessage{
		confirmedMsg(requestId, 1, "hello"),
		confirmedMsg(requestId, 2, "world"),
	}

	c := NewMessageCache(store, nil, 100)
	defer c.Close()

	msgs, err := c.Preload(context.Background(), requestId)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, 1, store.callCount())

	// Warm bucket: no second storage hit.
	msgs, err = c.Preload(context.Background(), requestId)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, 1, store.callCount())
}

func TestPreloadFailureDegradesToResidentSet(t *testing.T) {
	requestId := uuid.New()
	store := newFakeStore()
	store.err = errors.New("db down")

	c := NewMessageCache(store, nil, 100)
	defer c.Close()

	live := confirmedMsg(requestId, 7, "from the wire")
	c.Append(live)

	msgs, err := c.Preload(context.Background(), requestId)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, live.Id, msgs[0].Id)

	// Bucket stayed cold, so a later preload retries storage.
	store.mu.Lock()
	store.err = nil
	store.pages[requestId.String()] = []*entity.ChatMessage{confirmedMsg(requestId, 1, "old")}
	store.mu.Unlock()

	msgs, err = c.Preload(context.Background(), requestId)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, []int64{1, 7}, sequences(msgs))
}

func TestMessagesSyncNeverBlocksOnColdTicket(t *testing.T) {
	store := newFakeStore()
	c := NewMessageCache(store, nil, 100)
	defer c.Close()

	msgs := c.MessagesSync(uuid.New())
	assert.Empty(t, msgs)
	assert.Equal(t, 0, store.callCount())
}

func TestLoadOlderMergesAndDedupes(t *testing.T) {
	requestId := uuid.New()
	store := newFakeStore()
	older := []*entity.ChatMessage{
		confirmedMsg(requestId, 1, "first"),
		confirmedMsg(requestId, 2, "second"),
	}
	newest := confirmedMsg(requestId, 3, "third")
	store.pages[requestId.String()] = append(append([]*entity.ChatMessage{}, older...), newest)

	c := NewMessageCache(store, nil, 1)
	defer c.Close()

	// Preload brings only the newest chunk.
	msgs, err := c.Preload(context.Background(), requestId)
	require.NoError(t, err)
	require.Equal(t, []int64{3}, sequences(msgs))

	added, err := c.LoadOlder(context.Background(), requestId, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, []int64{1, 2, 3}, sequences(c.MessagesSync(requestId)))

	// Nothing older left: merge adds zero.
	added, err = c.LoadOlder(context.Background(), requestId, 10)
	require.NoError(t, err)
	assert.Zero(t, added)
}

func TestAppendDedupesByKey(t *testing.T) {
	requestId := uuid.New()
	c := NewMessageCache(newFakeStore(), nil, 100)
	defer c.Close()

	msg := pendingMsg(requestId, "draft")
	c.Append(msg)
	c.Append(msg)

	assert.Len(t, c.MessagesSync(requestId), 1)
}

func TestConfirmSwapsInPlaceWithoutJump(t *testing.T) {
	requestId := uuid.New()
	c := NewMessageCache(newFakeStore(), nil, 100)
	defer c.Close()

	c.Append(confirmedMsg(requestId, 1, "a"))
	c.Append(confirmedMsg(requestId, 2, "b"))

	mine := pendingMsg(requestId, "mine")
	c.Append(mine)

	confirmed := confirmedMsg(requestId, 3, "mine")
	ok := c.Confirm(requestId, mine.TempId, confirmed)
	require.True(t, ok)

	msgs := c.MessagesSync(requestId)
	require.Len(t, msgs, 3)
	// Same slot, now carrying the server identity.
	assert.Equal(t, confirmed.Id, msgs[2].Id)
	assert.Equal(t, mine.TempId, msgs[2].TempId)
	assert.Equal(t, entity.DeliverySent, msgs[2].Status)
	assert.Equal(t, []int64{1, 2, 3}, sequences(msgs))
}

func TestConfirmReordersWhenInterleaved(t *testing.T) {
	requestId := uuid.New()
	c := NewMessageCache(newFakeStore(), nil, 100)
	defer c.Close()

	c.Append(confirmedMsg(requestId, 1, "a"))
	mine := pendingMsg(requestId, "sent offline")
	c.Append(mine)
	// The other side got sequence 3 in while ours was pending.
	c.Append(confirmedMsg(requestId, 3, "their reply"))

	// Hub assigned us 2: list must re-sort.
	ok := c.Confirm(requestId, mine.TempId, confirmedMsg(requestId, 2, "sent offline"))
	require.True(t, ok)
	assert.Equal(t, []int64{1, 2, 3}, sequences(c.MessagesSync(requestId)))
}

func TestConfirmUnknownTempIdReturnsFalse(t *testing.T) {
	requestId := uuid.New()
	c := NewMessageCache(newFakeStore(), nil, 100)
	defer c.Close()

	assert.False(t, c.Confirm(requestId, uuid.New(), confirmedMsg(requestId, 1, "x")))
}

func TestPendingSortAfterConfirmed(t *testing.T) {
	requestId := uuid.New()
	c := NewMessageCache(newFakeStore(), nil, 100)
	defer c.Close()

	p1 := pendingMsg(requestId, "one")
	p2 := pendingMsg(requestId, "two")
	c.Append(p1)
	c.Append(p2)
	c.Append(confirmedMsg(requestId, 5, "confirmed"))

	msgs := c.MessagesSync(requestId)
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(5), msgs[0].SequenceNumber)
	// Pending retain arrival order after the confirmed block.
	assert.Equal(t, p1.TempId, msgs[1].TempId)
	assert.Equal(t, p2.TempId, msgs[2].TempId)
}

func TestRemoveRefusesConfirmed(t *testing.T) {
	requestId := uuid.New()
	c := NewMessageCache(newFakeStore(), nil, 100)
	defer c.Close()

	confirmed := confirmedMsg(requestId, 1, "kept")
	c.Append(confirmed)
	pending := pendingMsg(requestId, "dropped")
	c.Append(pending)

	assert.False(t, c.Remove(requestId, confirmed.Id))
	assert.True(t, c.Remove(requestId, pending.TempId))
	assert.Len(t, c.MessagesSync(requestId), 1)
}

func TestSubscribeDeliversChangeEvents(t *testing.T) {
	requestId := uuid.New()
	c := NewMessageCache(newFakeStore(), nil, 100)
	defer c.Close()

	events := make(chan ChangeEvent, 8)
	cancel := c.Subscribe(requestId, func(ev ChangeEvent) { events <- ev })
	defer cancel()

	msg := pendingMsg(requestId, "hello")
	c.Append(msg)

	select {
	case ev := <-events:
		assert.Equal(t, ChangeAppended, ev.Kind)
		assert.Equal(t, msg.TempId, ev.Key)
		assert.Equal(t, requestId, ev.RequestId)
	case <-time.After(2 * time.Second):
		t.Fatal("no change event delivered")
	}
}

func TestSubscribeIsScopedToTicket(t *testing.T) {
	c := NewMessageCache(newFakeStore(), nil, 100)
	defer c.Close()

	watched := uuid.New()
	other := uuid.New()

	events := make(chan ChangeEvent, 8)
	cancel := c.Subscribe(watched, func(ev ChangeEvent) { events <- ev })
	defer cancel()

	c.Append(pendingMsg(other, "elsewhere"))

	select {
	case ev := <-events:
		t.Fatalf("unexpected event for other ticket: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}
