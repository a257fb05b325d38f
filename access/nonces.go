package access

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spongetheory/marketplace/pkg/cache"
)

const noncePrefix = "product_access:"

// RedisNonces keeps nonces in Redis so tokens can be redeemed on any instance.
type RedisNonces struct {
	client redis.Cmdable
}

// NewRedisNonces stores nonces in Redis with a per-key TTL.
func NewRedisNonces(client redis.Cmdable) *RedisNonces {
	return &RedisNonces{client: client}
}

// Put stores the nonce until ttl elapses.
func (n *RedisNonces) Put(ctx context.Context, nonce, userID string, ttl time.Duration) error {
	return n.client.Set(ctx, noncePrefix+nonce, userID, ttl).Err()
}

// Consume deletes the nonce and returns its user. GETDEL makes a second
// redemption fail with ErrTokenReused even under concurrent callers.
func (n *RedisNonces) Consume(ctx context.Context, nonce string) (string, error) {
	userID, err := n.client.GetDel(ctx, noncePrefix+nonce).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenReused
	}
	return userID, err
}

// MemoryNonces is the single-instance fallback.
type MemoryNonces struct {
	lru *cache.LRU[string, string]
}

// NewMemoryNonces keeps up to capacity nonces in process memory.
func NewMemoryNonces(capacity int) *MemoryNonces {
	return &MemoryNonces{lru: cache.New[string, string](capacity)}
}

// Put stores the nonce until ttl elapses.
func (n *MemoryNonces) Put(_ context.Context, nonce, userID string, ttl time.Duration) error {
	n.lru.Put(nonce, userID, ttl)
	return nil
}

// Consume removes the nonce and returns its user.
func (n *MemoryNonces) Consume(_ context.Context, nonce string) (string, error) {
	userID, ok := n.lru.Take(nonce)
	if !ok {
		return "", ErrTokenReused
	}
	return userID, nil
}
