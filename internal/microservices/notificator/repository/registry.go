package repository

import (
	"context"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

// RegistryInterface holds the live connections fanout delivers to. Safe for concurrent use.
type RegistryInterface interface {
	Register(ctx context.Context, connectionID string) error
	Unregister(ctx context.Context, connectionID string) error
	ListAll(ctx context.Context) ([]string, error)
}

type MemoryRegistry struct {
	mu    sync.RWMutex
	conns map[string]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{conns: make(map[string]struct{})}
}

func (r *MemoryRegistry) Register(_ context.Context, id string) error {
	r.mu.Lock()
	r.conns[id] = struct{}{}
	r.mu.Unlock()
	return nil
}

func (r *MemoryRegistry) Unregister(_ context.Context, id string) error {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRegistry) ListAll(context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out, nil
}

// RedisRegistry keeps this node's connections in one Redis set so operators can see
// who is subscribed where. Each node only lists its own set.
type RedisRegistry struct {
	rdb goredis.UniversalClient
	key string
}

func NewRedisRegistry(rdb goredis.UniversalClient, prefix, nodeID string) *RedisRegistry {
	return &RedisRegistry{rdb: rdb, key: prefix + ":" + nodeID}
}

func (r *RedisRegistry) Key() string { return r.key }

func (r *RedisRegistry) Register(ctx context.Context, id string) error {
	return r.rdb.SAdd(ctx, r.key, id).Err()
}

func (r *RedisRegistry) Unregister(ctx context.Context, id string) error {
	return r.rdb.SRem(ctx, r.key, id).Err()
}

func (r *RedisRegistry) ListAll(ctx context.Context) ([]string, error) {
	return r.rdb.SMembers(ctx, r.key).Result()
}

// Reset drops whatever a previous run of this node left behind.
func (r *RedisRegistry) Reset(ctx context.Context) error {
	return r.rdb.Del(ctx, r.key).Err()
}
