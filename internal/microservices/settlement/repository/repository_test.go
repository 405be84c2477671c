package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-orders/internal/domain"
)

func TestAuditKey(t *testing.T) {
	o := domain.Order{OrderID: "o1", UpdatedAt: time.Date(2026, 2, 3, 23, 30, 0, 0, time.UTC)}
	assert.Equal(t, "logs/2026/02/03/o1.json", AuditKey(o))
}

func TestMemoryAudit_WriteOnce(t *testing.T) {
	a := NewMemoryAudit()
	at := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)

	require.NoError(t, a.Record(context.Background(), domain.Order{OrderID: "o1", Status: domain.StatusWaiting, UpdatedAt: at}))
	require.NoError(t, a.Record(context.Background(), domain.Order{OrderID: "o1", Status: domain.StatusPaymentDeclined, UpdatedAt: at}))

	recs := a.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.StatusWaiting, recs["logs/2026/02/03/o1.json"].Status)
}

func TestMemoryLocker(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.clock = func() time.Time { return now }
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	release2, ok, _ := l.Acquire(ctx, "k", time.Minute)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	release3, ok, _ := l.Acquire(ctx, "k", time.Minute)
	assert.True(t, ok, "expired lease is taken over")

	release2()
	_, ok, _ = l.Acquire(ctx, "k", time.Minute)
	assert.False(t, ok, "stale release must not drop the new holder")
	release3()
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	l := NewRedisLocker(rdb)
	ctx := context.Background()
	key := LockKey("r1", "o1")

	release, ok, err := l.Acquire(ctx, key, 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(key))

	_, ok, err = l.Acquire(ctx, key, 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists(key))

	_, ok, err = l.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	mr.FastForward(2 * time.Second)
	_, ok, err = l.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
