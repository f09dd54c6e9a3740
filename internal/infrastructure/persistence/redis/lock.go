package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/loes-hub/outcome-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISTRIBUTED LOCK
// ══════════════════════════════════════════════════════════════════════════════

// ErrLockHeld is returned by Acquire when another owner holds the lock.
var ErrLockHeld = errors.New("lock: held by another owner")

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out SETNX-based locks with a TTL.
type Locker struct {
	cache *Cache
}

// NewLocker creates a Locker on top of the cache client.
func NewLocker(cache *Cache) *Locker {
	return &Locker{cache: cache}
}

// Lock is a held lock. Release it when done; the TTL frees it if the owner dies.
type Lock struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Acquire takes the lock for resource. It does not wait for a holder;
// transport failures are marked retryable.
func (l *Locker) Acquire(ctx context.Context, resource string, ttl time.Duration) (*Lock, error) {
	if resource == "" {
		return nil, ErrCacheKeyEmpty
	}
	if ttl <= 0 {
		ttl = TTLDistributedLock
	}

	key := l.cache.key(LockKey(resource))
	token := uuid.NewString()

	ok, err := l.cache.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		wrapped := fmt.Errorf("acquire lock %s: %w", resource, err)
		if ctx.Err() != nil {
			return nil, wrapped
		}
		// Сетевые сбои стоит повторить.
		return nil, retry.Retryable(wrapped)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return &Lock{client: l.cache.client, key: key, token: token}, nil
}

// Release frees the lock if it is still ours. Releasing an expired or
// stolen lock is not an error.
func (lk *Lock) Release(ctx context.Context) error {
	if lk == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, lk.client, []string{lk.key}, lk.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// TryLock is Acquire returning the release function. When another owner
// holds the lock both the function and the error are nil.
func (l *Locker) TryLock(ctx context.Context, resource string, ttl time.Duration) (func(context.Context) error, error) {
	lk, err := l.Acquire(ctx, resource, ttl)
	if errors.Is(err, ErrLockHeld) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lk.Release, nil
}
