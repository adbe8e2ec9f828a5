package viewport

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"helpdesk-chat-core/internal/repository/memory"
)

// ScrollKeeper persists the scroll offset per ticket and restores it exactly
// once per ticket mount. Saves happen on every scroll event, on a periodic
// tick, and on detach; go-cache makes all three cheap.
type ScrollKeeper struct {
	repo     *memory.ViewportStateRepository
	interval time.Duration

	mu        sync.Mutex
	current   uuid.UUID
	restored  bool
	lastSave  time.Time
	lastKnown float64
}

func NewScrollKeeper(repo *memory.ViewportStateRepository, interval time.Duration) *ScrollKeeper {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &ScrollKeeper{
		repo:     repo,
		interval: interval,
	}
}

// SwitchTicket re-arms the one-shot restore for a new ticket. Switching back
// to a previous ticket restores again from its saved offset.
func (k *ScrollKeeper) SwitchTicket(requestId uuid.UUID) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.current == requestId {
		return
	}
	if k.current != uuid.Nil {
		k.repo.Save(k.current, k.lastKnown)
	}
	k.current = requestId
	k.restored = false
	k.lastKnown = 0
	k.lastSave = time.Time{}
}

// OnScroll records and persists the new offset.
func (k *ScrollKeeper) OnScroll(offset float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.current == uuid.Nil {
		return
	}
	k.lastKnown = offset
	k.repo.Save(k.current, offset)
	k.lastSave = time.Now()
}

// Tick persists the last known offset when the save interval has elapsed.
// Callers drive it from their render loop.
func (k *ScrollKeeper) Tick(now time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.current == uuid.Nil || now.Sub(k.lastSave) < k.interval {
		return
	}
	k.repo.Save(k.current, k.lastKnown)
	k.lastSave = now
}

// Detach persists the final offset when the ticket view unmounts.
func (k *ScrollKeeper) Detach() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.current == uuid.Nil {
		return
	}
	k.repo.Save(k.current, k.lastKnown)
	k.current = uuid.Nil
	k.restored = false
}

// Restore returns the offset to apply after the first layout of a ticket.
// ok is false when there is no usable saved offset, in which case the caller
// scrolls to the bottom. Either way the restore is consumed: later calls for
// the same mount return ok=false with the bottom position.
func (k *ScrollKeeper) Restore(contentHeight, viewportHeight float64) (float64, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	bottom := contentHeight - viewportHeight
	if bottom < 0 {
		bottom = 0
	}

	if k.current == uuid.Nil || k.restored {
		return bottom, false
	}
	k.restored = true

	state, found := k.repo.Get(k.current)
	if !found || state.ScrollOffset > contentHeight {
		return bottom, false
	}
	k.lastKnown = state.ScrollOffset
	return state.ScrollOffset, true
}
