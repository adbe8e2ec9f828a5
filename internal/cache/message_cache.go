package cache

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"helpdesk-chat-core/internal/entity"
	"helpdesk-chat-core/internal/pkg/logger"
)

// HistoryStore is the durable backing store the cache preloads from. The
// gorm chat message repository satisfies it through a thin adapter; tests
// plug in fakes.
type HistoryStore interface {
	Page(ctx context.Context, requestId uuid.UUID, beforeSequence *int64, limit int) ([]*entity.ChatMessage, error)
}

// Change kinds delivered to subscribers.
const (
	ChangeAppended  = "appended"
	ChangeConfirmed = "confirmed"
	ChangeStatus    = "status"
	ChangeRemoved   = "removed"
	ChangeHistory   = "history"
)

// ChangeEvent describes one mutation of a ticket's in-memory message set.
type ChangeEvent struct {
	RequestId uuid.UUID `json:"request_id"`
	Kind      string    `json:"kind"`
	Key       uuid.UUID `json:"key,omitempty"`
}

// MessageCache owns the per-ticket message history: a warm in-memory set with
// synchronous reads, chunked preload from the HistoryStore, and a change bus
// for subscribers. All mutation goes through its methods; subscribers never
// touch the underlying slices.
type MessageCache struct {
	mu      sync.Mutex
	buckets map[uuid.UUID]*bucket
	store   HistoryStore
	bus     *gochannel.GoChannel
	logger  logger.ILogger
	chunk   int
}

type bucket struct {
	mu       sync.Mutex
	messages []*entity.ChatMessage
	index    map[uuid.UUID]int
	warm     bool
	// Non-nil while a preload is in flight; closed when it settles.
	loading chan struct{}
}

func NewMessageCache(store HistoryStore, log logger.ILogger, chunkSize int) *MessageCache {
	if chunkSize <= 0 {
		chunkSize = 100
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &MessageCache{
		buckets: make(map[uuid.UUID]*bucket),
		store:   store,
		bus: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			watermill.NopLogger{},
		),
		logger: log,
		chunk:  chunkSize,
	}
}

func topic(requestId uuid.UUID) string {
	return "chat.messages." + requestId.String()
}

func (c *MessageCache) bucket(requestId uuid.UUID) *bucket {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.buckets[requestId]
	if !ok {
		b = &bucket{index: make(map[uuid.UUID]int)}
		c.buckets[requestId] = b
	}
	return b
}

// MessagesSync returns whatever is already resident for the ticket. Never
// blocks on storage; cold tickets yield an empty slice.
func (c *MessageCache) MessagesSync(requestId uuid.UUID) []*entity.ChatMessage {
	b := c.bucket(requestId)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// Preload warms the ticket from the durable store (newest chunk; older pages
// arrive via LoadOlder). Redundant calls while warm are no-ops; concurrent
// calls share one load. Storage failures degrade to the resident set so
// network-confirmed messages can repopulate later.
func (c *MessageCache) Preload(ctx context.Context, requestId uuid.UUID) ([]*entity.ChatMessage, error) {
	b := c.bucket(requestId)

	b.mu.Lock()
	if b.warm {
		snap := b.snapshotLocked()
		b.mu.Unlock()
		return snap, nil
	}
	if b.loading != nil {
		done := b.loading
		b.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return c.MessagesSync(requestId), nil
	}
	done := make(chan struct{})
	b.loading = done
	b.mu.Unlock()

	page, err := c.store.Page(ctx, requestId, nil, c.chunk)

	b.mu.Lock()
	if err != nil {
		c.logger.Warn("CACHE", "History preload failed, continuing with resident set", map[string]interface{}{
			"request_id": requestId.String(),
			"error":      err.Error(),
		})
	} else {
		b.mergeLocked(page)
		b.warm = true
	}
	b.loading = nil
	close(done)
	snap := b.snapshotLocked()
	b.mu.Unlock()

	if err == nil && len(page) > 0 {
		c.publish(requestId, ChangeHistory, uuid.Nil)
	}
	return snap, nil
}

// LoadOlder backfills one page before the oldest confirmed message resident
// in memory. Returns how many messages were actually added; zero means the
// top of the history has been reached.
func (c *MessageCache) LoadOlder(ctx context.Context, requestId uuid.UUID, limit int) (int, error) {
	if limit <= 0 {
		limit = c.chunk
	}
	b := c.bucket(requestId)

	b.mu.Lock()
	var before *int64
	for _, m := range b.messages {
		if m.Confirmed() {
			seq := m.SequenceNumber
			before = &seq
			break
		}
	}
	b.mu.Unlock()

	page, err := c.store.Page(ctx, requestId, before, limit)
	if err != nil {
		c.logger.Warn("CACHE", "History backfill failed", map[string]interface{}{
			"request_id": requestId.String(),
			"error":      err.Error(),
		})
		return 0, err
	}

	b.mu.Lock()
	added := b.mergeLocked(page)
	b.mu.Unlock()

	if added > 0 {
		c.publish(requestId, ChangeHistory, uuid.Nil)
	}
	return added, nil
}

// Append adds a message (confirmed or locally pending). Duplicate keys update
// the stored copy in place instead of growing the set.
func (c *MessageCache) Append(msg *entity.ChatMessage) {
	b := c.bucket(msg.RequestId)

	b.mu.Lock()
	if i, ok := b.index[msg.Key()]; ok {
		b.messages[i] = msg
		if msg.Id != uuid.Nil {
			b.index[msg.Id] = i
		}
		if msg.TempId != uuid.Nil {
			b.index[msg.TempId] = i
		}
		b.mu.Unlock()
		c.publish(msg.RequestId, ChangeStatus, msg.Key())
		return
	}
	b.messages = append(b.messages, msg)
	if !b.orderedLocked() {
		b.sortLocked()
	} else {
		i := len(b.messages) - 1
		if msg.Id != uuid.Nil {
			b.index[msg.Id] = i
		}
		if msg.TempId != uuid.Nil {
			b.index[msg.TempId] = i
		}
	}
	b.mu.Unlock()

	c.publish(msg.RequestId, ChangeAppended, msg.Key())
}

// Confirm swaps a pending message for its server-confirmed form, preserving
// the list position when the relative order is already correct. Returns false
// when no pending message carries the temp id.
func (c *MessageCache) Confirm(requestId, tempId uuid.UUID, confirmed *entity.ChatMessage) bool {
	b := c.bucket(requestId)

	b.mu.Lock()
	i, ok := b.index[tempId]
	if !ok {
		b.mu.Unlock()
		return false
	}
	confirmed.TempId = tempId
	confirmed.Status = entity.DeliverySent
	b.messages[i] = confirmed
	b.index[confirmed.Id] = i
	if !b.orderedLocked() {
		b.sortLocked()
	}
	b.mu.Unlock()

	c.publish(requestId, ChangeConfirmed, confirmed.Id)
	return true
}

// SetStatus updates the delivery status of a locally originated message.
func (c *MessageCache) SetStatus(requestId, tempId uuid.UUID, status entity.DeliveryStatus) bool {
	b := c.bucket(requestId)

	b.mu.Lock()
	i, ok := b.index[tempId]
	if !ok {
		b.mu.Unlock()
		return false
	}
	b.messages[i].Status = status
	b.mu.Unlock()

	c.publish(requestId, ChangeStatus, tempId)
	return true
}

// Remove drops a message, used to discard failed sends. Server-confirmed
// messages are never removed through this path.
func (c *MessageCache) Remove(requestId, tempId uuid.UUID) bool {
	b := c.bucket(requestId)

	b.mu.Lock()
	i, ok := b.index[tempId]
	if !ok || b.messages[i].Confirmed() {
		b.mu.Unlock()
		return false
	}
	b.messages = append(b.messages[:i], b.messages[i+1:]...)
	b.reindexLocked()
	b.mu.Unlock()

	c.publish(requestId, ChangeRemoved, tempId)
	return true
}

// Subscribe registers a change listener for one ticket. The returned func
// releases the subscription; callers must invoke it on teardown.
func (c *MessageCache) Subscribe(requestId uuid.UUID, fn func(ChangeEvent)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := c.bus.Subscribe(ctx, topic(requestId))
	if err != nil {
		c.logger.Error("CACHE", "Subscription failed", map[string]interface{}{
			"request_id": requestId.String(),
			"error":      err.Error(),
		})
		cancel()
		return func() {}
	}

	go func() {
		for msg := range ch {
			var ev ChangeEvent
			if err := json.Unmarshal(msg.Payload, &ev); err == nil {
				fn(ev)
			}
			msg.Ack()
		}
	}()

	return cancel
}

func (c *MessageCache) publish(requestId uuid.UUID, kind string, key uuid.UUID) {
	payload, err := json.Marshal(ChangeEvent{RequestId: requestId, Kind: kind, Key: key})
	if err != nil {
		return
	}
	if err := c.bus.Publish(topic(requestId), message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		c.logger.Warn("CACHE", "Change publish failed", map[string]interface{}{
			"request_id": requestId.String(),
			"error":      err.Error(),
		})
	}
}

// Close shuts the change bus down. Pending subscriber channels are closed.
func (c *MessageCache) Close() error {
	return c.bus.Close()
}

// bucket internals. Callers hold b.mu.

func (b *bucket) snapshotLocked() []*entity.ChatMessage {
	out := make([]*entity.ChatMessage, len(b.messages))
	copy(out, b.messages)
	return out
}

// mergeLocked folds a history page in, skipping ids already resident.
// Returns the number of new messages.
func (b *bucket) mergeLocked(page []*entity.ChatMessage) int {
	added := 0
	for _, m := range page {
		if _, ok := b.index[m.Key()]; ok {
			continue
		}
		b.messages = append(b.messages, m)
		b.index[m.Key()] = len(b.messages) - 1
		added++
	}
	if added > 0 && !b.orderedLocked() {
		b.sortLocked()
	}
	return added
}

// Order invariant: confirmed messages ascending by sequence number, pending
// messages after the last confirmed one in arrival order.
func messageLess(a, c *entity.ChatMessage) bool {
	if a.Confirmed() && c.Confirmed() {
		return a.SequenceNumber < c.SequenceNumber
	}
	if a.Confirmed() != c.Confirmed() {
		return a.Confirmed()
	}
	return false
}

func (b *bucket) orderedLocked() bool {
	for i := 1; i < len(b.messages); i++ {
		if messageLess(b.messages[i], b.messages[i-1]) {
			return false
		}
	}
	return true
}

func (b *bucket) sortLocked() {
	sort.SliceStable(b.messages, func(i, j int) bool {
		return messageLess(b.messages[i], b.messages[j])
	})
	b.reindexLocked()
}

func (b *bucket) reindexLocked() {
	b.index = make(map[uuid.UUID]int, len(b.messages))
	for i, m := range b.messages {
		if m.Id != uuid.Nil {
			b.index[m.Id] = i
		}
		if m.TempId != uuid.Nil {
			b.index[m.TempId] = i
		}
	}
}
