package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Locker hands out short-lived per-order locks. ok is false when someone else holds
// the key; release is then nil.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// LockKey names the settlement lock of one order.
func LockKey(restaurantID, orderID string) string {
	return "settlement:lock:" + restaurantID + ":" + orderID
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisLocker struct {
	rdb goredis.UniversalClient
}

func NewRedisLocker(rdb goredis.UniversalClient) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{key}, token).Err()
	}
	return release, true, nil
}

type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]lease
	clock func() time.Time
}

type lease struct {
	token   string
	expires time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]lease), clock: time.Now}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return nil, false, nil
	}
	token := uuid.NewString()
	l.held[key] = lease{token: token, expires: now.Add(ttl)}
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[key]; ok && cur.token == token {
			delete(l.held, key)
		}
	}, true, nil
}
