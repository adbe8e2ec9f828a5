package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(h *Hub, requestId, userId uuid.UUID, buffer int) *Client {
	return &Client{
		Hub:       h,
		UserID:    userId,
		RequestID: requestId,
		Send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
	}
}

func roomSize(h *Hub, requestId uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[requestId])
}

func TestSlowClientDroppedWithoutStoppingHub(t *testing.T) {
	h := NewHub(nil, "", nil, nil)
	go h.Run()

	requestId := uuid.New()
	slow := newTestClient(h, requestId, uuid.New(), 1)
	healthy := newTestClient(h, requestId, uuid.New(), 16)
	h.register <- slow
	h.register <- healthy
	require.Eventually(t, func() bool { return roomSize(h, requestId) == 2 }, time.Second, 5*time.Millisecond)

	// The first broadcast fills the slow client's buffer, the second
	// overflows it and queues the drop.
	h.broadcastLocal(requestId, []byte("one"))
	h.broadcastLocal(requestId, []byte("two"))
	require.Eventually(t, func() bool { return roomSize(h, requestId) == 1 }, time.Second, 5*time.Millisecond)

	select {
	case <-slow.done:
	default:
		t.Fatal("dropped client was not signalled")
	}

	// The hub keeps serving the remaining connection.
	h.broadcastLocal(requestId, []byte("three"))
	assert.Eventually(t, func() bool { return len(healthy.Send) == 3 }, time.Second, 5*time.Millisecond)
}

func TestRepeatedUnregisterSignalsOnce(t *testing.T) {
	h := NewHub(nil, "", nil, nil)
	go h.Run()

	requestId := uuid.New()
	c := newTestClient(h, requestId, uuid.New(), 1)
	h.register <- c
	require.Eventually(t, func() bool { return roomSize(h, requestId) == 1 }, time.Second, 5*time.Millisecond)

	// A broadcast drop and the read pump's own unregister can both queue the
	// same client; the second pass must find it gone and do nothing.
	h.unregister <- c
	h.unregister <- c
	require.Eventually(t, func() bool { return roomSize(h, requestId) == 0 }, time.Second, 5*time.Millisecond)

	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("client was never signalled")
	}
}

func TestClusterPayloadTargetsOneUsersConnections(t *testing.T) {
	h := NewHub(nil, "", nil, nil)
	go h.Run()

	requestId := uuid.New()
	senderId := uuid.New()
	phone := newTestClient(h, requestId, senderId, 4)
	laptop := newTestClient(h, requestId, senderId, 4)
	other := newTestClient(h, requestId, uuid.New(), 4)
	h.register <- phone
	h.register <- laptop
	h.register <- other
	require.Eventually(t, func() bool { return roomSize(h, requestId) == 3 }, time.Second, 5*time.Millisecond)

	raw, err := json.Marshal(clusterEnvelope{
		RequestID:  requestId.String(),
		TargetUser: senderId.String(),
		Message:    json.RawMessage(`{"type":"message.confirmed"}`),
	})
	require.NoError(t, err)
	h.handleClusterPayload(raw)

	// The echo from a sibling instance reaches every one of the sender's
	// devices here, and nobody else.
	assert.Len(t, phone.Send, 1)
	assert.Len(t, laptop.Send, 1)
	assert.Empty(t, other.Send)
}

func TestClusterPayloadSkipsExcludedUser(t *testing.T) {
	h := NewHub(nil, "", nil, nil)
	go h.Run()

	requestId := uuid.New()
	typist := newTestClient(h, requestId, uuid.New(), 4)
	other := newTestClient(h, requestId, uuid.New(), 4)
	h.register <- typist
	h.register <- other
	require.Eventually(t, func() bool { return roomSize(h, requestId) == 2 }, time.Second, 5*time.Millisecond)

	raw, err := json.Marshal(clusterEnvelope{
		RequestID:   requestId.String(),
		ExcludeUser: typist.UserID.String(),
		Message:     json.RawMessage(`{"type":"typing"}`),
	})
	require.NoError(t, err)
	h.handleClusterPayload(raw)

	assert.Empty(t, typist.Send)
	assert.Len(t, other.Send, 1)
}

func TestClusterPayloadWithoutRoutingReachesWholeRoom(t *testing.T) {
	h := NewHub(nil, "", nil, nil)
	go h.Run()

	requestId := uuid.New()
	a := newTestClient(h, requestId, uuid.New(), 4)
	b := newTestClient(h, requestId, uuid.New(), 4)
	h.register <- a
	h.register <- b
	require.Eventually(t, func() bool { return roomSize(h, requestId) == 2 }, time.Second, 5*time.Millisecond)

	raw, err := json.Marshal(clusterEnvelope{
		RequestID: requestId.String(),
		Message:   json.RawMessage(`{"type":"task.status"}`),
	})
	require.NoError(t, err)
	h.handleClusterPayload(raw)

	assert.Len(t, a.Send, 1)
	assert.Len(t, b.Send, 1)
}
