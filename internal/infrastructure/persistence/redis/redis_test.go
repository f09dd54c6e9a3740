package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loes-hub/outcome-engine/pkg/retry"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "lock:recompute_attainment", LockKey("recompute_attainment"))
	assert.Equal(t, "job:last_run:recompute_attainment", JobRunKey("recompute_attainment"))
	assert.Equal(t, "localhost:6379", DefaultConfig().Addr())
}

func TestCache_Validation(t *testing.T) {
	c := NewCacheFromClient(nil, "t:")
	ctx := context.Background()

	assert.ErrorIs(t, c.Set(ctx, "", 1, 0), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Set(ctx, "k", 1, -time.Second), ErrCacheInvalidTTL)
	assert.ErrorIs(t, c.Set(ctx, "k", func() {}, 0), ErrCacheSerialization)
	assert.ErrorIs(t, c.Get(ctx, "", nil), ErrCacheKeyEmpty)

	_, err := NewLocker(c).Acquire(ctx, "", time.Second)
	assert.ErrorIs(t, err, ErrCacheKeyEmpty)

	var lk *Lock
	assert.NoError(t, lk.Release(ctx))
}

func TestLocker_UnreachableServerIsRetryable(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	_, err := NewLocker(NewCacheFromClient(client, "t:")).Acquire(context.Background(), "job", time.Second)
	require.Error(t, err)
	assert.True(t, retry.IsRetryable(err))
	assert.NotErrorIs(t, err, ErrLockHeld)
}

// liveCache connects to the Redis at REDIS_TEST_HOST or skips.
func liveCache(t *testing.T) *Cache {
	t.Helper()
	if os.Getenv("REDIS_TEST_HOST") == "" {
		t.Skip("REDIS_TEST_HOST not set")
	}
	cfg := DefaultConfig()
	cfg.Host = os.Getenv("REDIS_TEST_HOST")
	cfg.KeyPrefix = "outcomes-test:" + t.Name() + ":"

	c, err := NewCache(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		_ = c.client.Del(ctx, c.key(LockKey("job")), c.key(JobRunKey("job"))).Err()
		c.Close()
	})
	return c
}

func TestLocker_Live(t *testing.T) {
	c := liveCache(t)
	ctx := context.Background()
	l := NewLocker(c)

	first, err := l.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "job", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	release, err := l.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, release, "held lock yields no release func")

	require.NoError(t, first.Release(ctx))

	release, err = l.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, release)
	require.NoError(t, release(ctx))
}

func TestRunReportStore_Live(t *testing.T) {
	c := liveCache(t)
	ctx := context.Background()
	s := NewRunReportStore(c, time.Minute)

	type report struct {
		Courses int `json:"courses"`
	}
	var got report
	assert.ErrorIs(t, s.LoadReport(ctx, "job", &got), ErrCacheMiss)

	require.NoError(t, s.SaveReport(ctx, "job", report{Courses: 3}))
	require.NoError(t, s.LoadReport(ctx, "job", &got))
	assert.Equal(t, 3, got.Courses)
}
