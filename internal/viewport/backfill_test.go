package viewport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackfillTriggersOnlyNearTop(t *testing.T) {
	var calls int32
	c := NewBackfillController(200, func(ctx context.Context, requestId uuid.UUID) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 5, nil
	}, nil)

	ticket := uuid.New()
	assert.False(t, c.MaybeLoad(context.Background(), ticket, 800))
	assert.True(t, c.MaybeLoad(context.Background(), ticket, 150))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 10*time.Millisecond)
}

func TestBackfillSuppressesConcurrentLoads(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	c := NewBackfillController(200, func(ctx context.Context, requestId uuid.UUID) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 5, nil
	}, nil)

	ticket := uuid.New()
	assert.True(t, c.MaybeLoad(context.Background(), ticket, 0))
	require.Eventually(t, func() bool { return c.InFlight(ticket) }, time.Second, 5*time.Millisecond)

	// Second trigger while the first is still running is a no-op.
	assert.False(t, c.MaybeLoad(context.Background(), ticket, 0))
	close(release)

	require.Eventually(t, func() bool { return !c.InFlight(ticket) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBackfillStopsWhenHistoryExhausted(t *testing.T) {
	var calls int32
	c := NewBackfillController(200, func(ctx context.Context, requestId uuid.UUID) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, nil
	}, nil)

	ticket := uuid.New()
	assert.True(t, c.MaybeLoad(context.Background(), ticket, 0))
	require.Eventually(t, func() bool { return !c.InFlight(ticket) }, time.Second, 5*time.Millisecond)

	assert.False(t, c.MaybeLoad(context.Background(), ticket, 0))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// Reset re-enables loading for the ticket.
	c.Reset(ticket)
	assert.True(t, c.MaybeLoad(context.Background(), ticket, 0))
}

func TestBackfillIsPerTicket(t *testing.T) {
	block := make(chan struct{})
	c := NewBackfillController(200, func(ctx context.Context, requestId uuid.UUID) (int, error) {
		<-block
		return 1, nil
	}, nil)
	defer close(block)

	assert.True(t, c.MaybeLoad(context.Background(), uuid.New(), 0))
	assert.True(t, c.MaybeLoad(context.Background(), uuid.New(), 0))
}
