package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/redirectgate/internal/pkg/logger"
)

// redisLockPrefix namespaces gateway lock keys in the shared Redis
// instance, so "blacklist-snapshot-leader" doesn't collide with keys
// some other service happens to pick.
const redisLockPrefix = "redirectgate:lock:"

// RedisLock provides distributed locking via Redis using SET NX with TTL.
// It uses a random ownership value and a Lua script for atomic release
// to prevent accidental release of locks held by other replicas —
// exactly the failure mode that matters for the snapshot-leader
// election, where every replica runs the identical election loop.
type RedisLock struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

// NewRedisLock creates a new distributed lock backed by Redis.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	b := make([]byte, 16)
	rand.Read(b)
	return &RedisLock{
		client: client,
		key:    redisLockPrefix + key,
		owner:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

// Acquire tries to acquire the lock. Returns true if successful.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire redis lock %s: %w", l.key, err)
	}
	if !acquired {
		logger.Debug("redis lock held by another replica", "key", l.key)
	}
	return acquired, nil
}

// Release releases the lock only if we still own it (using Lua script for atomicity).
func (l *RedisLock) Release(ctx context.Context) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	released, err := script.Run(ctx, l.client, []string{l.key}, l.owner).Result()
	if err != nil {
		return fmt.Errorf("release redis lock %s: %w", l.key, err)
	}
	if n, _ := released.(int64); n == 0 {
		logger.Warn("redis lock release was a no-op, lock not owned by this replica", "key", l.key)
	}
	return nil
}
