package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const registryKeyPrefix = "gateway:authkey:"

// RedisKeyRegistry claims authorization keys with SET NX so concurrent
// attempts on the same key resolve to a single transaction.
type RedisKeyRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

var _ KeyRegistry = (*RedisKeyRegistry)(nil)

func NewRedisKeyRegistry(client *redis.Client, ttl time.Duration) *RedisKeyRegistry {
	return &RedisKeyRegistry{client: client, ttl: ttl}
}

func (r *RedisKeyRegistry) Claim(ctx context.Context, key, transactionID string) (string, bool, error) {
	redisKey := registryKeyPrefix + key

	ok, err := r.client.SetNX(ctx, redisKey, transactionID, r.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to claim authorization key: %w", err)
	}
	if ok {
		return transactionID, true, nil
	}

	winner, err := r.client.Get(ctx, redisKey).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to read authorization key owner: %w", err)
	}
	return winner, false, nil
}

// MemoryKeyRegistry is an in-memory KeyRegistry for tests.
type MemoryKeyRegistry struct {
	mu   sync.Mutex
	keys map[string]string
}

var _ KeyRegistry = (*MemoryKeyRegistry)(nil)

func NewMemoryKeyRegistry() *MemoryKeyRegistry {
	return &MemoryKeyRegistry{keys: make(map[string]string)}
}

func (r *MemoryKeyRegistry) Claim(ctx context.Context, key, transactionID string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if winner, ok := r.keys[key]; ok {
		return winner, false, nil
	}
	r.keys[key] = transactionID
	return transactionID, true, nil
}
