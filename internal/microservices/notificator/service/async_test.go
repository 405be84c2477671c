package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-orders/internal/domain"
)

// gatedFanout blocks every Publish until gate is closed.
type gatedFanout struct {
	gate chan struct{}
	mu   sync.Mutex
	got  []string
}

func (g *gatedFanout) Publish(ctx context.Context, o domain.Order) error {
	<-g.gate
	g.mu.Lock()
	g.got = append(g.got, o.OrderID)
	g.mu.Unlock()
	return nil
}

func (g *gatedFanout) delivered() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.got...)
}

func TestAsyncPublisher_DoesNotWaitForSubscribers(t *testing.T) {
	slow := &gatedFanout{gate: make(chan struct{})}
	p := NewAsyncPublisher(slow, 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	start := time.Now()
	for _, id := range []string{"o1", "o2", "o3"} {
		require.NoError(t, p.Publish(context.Background(), domain.Order{OrderID: id}))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Empty(t, slow.delivered())

	close(slow.gate)
	require.Eventually(t, func() bool { return len(slow.delivered()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"o1", "o2", "o3"}, slow.delivered())
}

func TestAsyncPublisher_FullBufferHonorsContext(t *testing.T) {
	p := NewAsyncPublisher(&gatedFanout{gate: make(chan struct{})}, 1, nil)
	require.NoError(t, p.Publish(context.Background(), domain.Order{OrderID: "o1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Publish(ctx, domain.Order{OrderID: "o2"}), context.DeadlineExceeded)
}
