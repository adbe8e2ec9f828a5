package viewport

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"helpdesk-chat-core/internal/pkg/logger"
)

// LoaderFunc fetches one older page for a ticket and reports how many
// messages it added. Zero added with no error means history is exhausted.
type LoaderFunc func(ctx context.Context, requestId uuid.UUID) (int, error)

// BackfillController triggers history loads when the user scrolls near the
// top. At most one load per ticket runs at a time, and tickets whose history
// is exhausted are never re-fetched.
type BackfillController struct {
	threshold float64
	loader    LoaderFunc
	logger    logger.ILogger

	mu        sync.Mutex
	inflight  map[uuid.UUID]bool
	exhausted map[uuid.UUID]bool
}

func NewBackfillController(threshold float64, loader LoaderFunc, log logger.ILogger) *BackfillController {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &BackfillController{
		threshold: threshold,
		loader:    loader,
		logger:    log,
		inflight:  make(map[uuid.UUID]bool),
		exhausted: make(map[uuid.UUID]bool),
	}
}

// MaybeLoad starts a backfill when the offset is within the near-top
// threshold and nothing is already in flight. Returns true when a load was
// started.
func (c *BackfillController) MaybeLoad(ctx context.Context, requestId uuid.UUID, scrollOffset float64) bool {
	if scrollOffset > c.threshold {
		return false
	}

	c.mu.Lock()
	if c.inflight[requestId] || c.exhausted[requestId] {
		c.mu.Unlock()
		return false
	}
	c.inflight[requestId] = true
	c.mu.Unlock()

	go func() {
		added, err := c.loader(ctx, requestId)

		c.mu.Lock()
		delete(c.inflight, requestId)
		if err == nil && added == 0 {
			c.exhausted[requestId] = true
		}
		c.mu.Unlock()

		if err != nil {
			c.logger.Warn("VIEWPORT", "History backfill failed", map[string]interface{}{
				"request_id": requestId.String(),
				"error":      err.Error(),
			})
		}
	}()
	return true
}

// InFlight reports whether a load is currently running for the ticket.
func (c *BackfillController) InFlight(requestId uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[requestId]
}

// Reset clears the exhausted marker, for when new history may have appeared.
func (c *BackfillController) Reset(requestId uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.exhausted, requestId)
}
