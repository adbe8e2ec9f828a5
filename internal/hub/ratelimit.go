package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// sendRatePerMinute is the per-user message creation budget, matching the
// backend's chat endpoint limit.
const sendRatePerMinute = 30

// sendLimiter hands each user a token bucket shared across all of their
// connections and both inbound paths (websocket and message bus).
type sendLimiter struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	users map[uuid.UUID]*rate.Limiter
}

func newSendLimiter(perMinute int) *sendLimiter {
	return &sendLimiter{
		limit: rate.Every(time.Minute / time.Duration(perMinute)),
		burst: perMinute,
		users: make(map[uuid.UUID]*rate.Limiter),
	}
}

func (l *sendLimiter) Allow(userId uuid.UUID) bool {
	l.mu.Lock()
	lim, ok := l.users[userId]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.users[userId] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
