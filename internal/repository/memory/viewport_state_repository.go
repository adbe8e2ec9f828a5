package memory

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ViewportState is the persisted scroll position for one ticket.
type ViewportState struct {
	ScrollOffset float64
	SavedAt      time.Time
}

// ViewportStateRepository keeps per-ticket scroll offsets. Session-scoped UI
// state, so entries expire instead of being persisted durably.
type ViewportStateRepository struct {
	cache *cache.Cache
}

func NewViewportStateRepository() *ViewportStateRepository {
	// Offsets older than an hour are stale anyway; purge every 10 minutes.
	c := cache.New(1*time.Hour, 10*time.Minute)
	return &ViewportStateRepository{
		cache: c,
	}
}

func (r *ViewportStateRepository) Save(requestId uuid.UUID, offset float64) {
	r.cache.Set(requestId.String(), ViewportState{
		ScrollOffset: offset,
		SavedAt:      time.Now(),
	}, cache.DefaultExpiration)
}

func (r *ViewportStateRepository) Get(requestId uuid.UUID) (ViewportState, bool) {
	if x, found := r.cache.Get(requestId.String()); found {
		return x.(ViewportState), true
	}
	return ViewportState{}, false
}

func (r *ViewportStateRepository) Delete(requestId uuid.UUID) {
	r.cache.Delete(requestId.String())
}
