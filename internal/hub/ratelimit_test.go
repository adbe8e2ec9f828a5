package hub

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSendLimiterEnforcesPerUserBudget(t *testing.T) {
	l := newSendLimiter(sendRatePerMinute)
	user := uuid.New()

	for i := 0; i < sendRatePerMinute; i++ {
		assert.True(t, l.Allow(user), "send %d should fit the budget", i+1)
	}
	assert.False(t, l.Allow(user), "send past the budget should be rejected")

	// Budgets are per user, not global.
	assert.True(t, l.Allow(uuid.New()))
}
