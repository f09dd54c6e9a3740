package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fast(opts ...Option) *Retrier {
	return New(append([]Option{WithInitialDelay(time.Millisecond), WithMaxDelay(2 * time.Millisecond)}, opts...)...)
}

func TestDo_RetriesRetryable(t *testing.T) {
	calls := 0
	err := fast().Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errBoom)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PlainErrorNotRetried(t *testing.T) {
	calls := 0
	err := fast().Do(context.Background(), func(context.Context) error {
		calls++
		return errBoom
	})

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustedReturnsUnwrapped(t *testing.T) {
	calls := 0
	err := fast(WithMaxAttempts(2)).Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errBoom)
	})

	assert.Equal(t, errBoom, err)
	assert.Equal(t, 2, calls)
}

func TestDo_RetryIfOverridesMarker(t *testing.T) {
	calls := 0
	r := fast(WithRetryIf(func(err error) bool { return errors.Is(err, errBoom) }))
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errBoom
	})

	assert.Equal(t, errBoom, err)
	assert.Equal(t, 3, calls)
}

func TestLockRetrier_OptionsOverridePreset(t *testing.T) {
	assert.Equal(t, 5, LockRetrier().Config().MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, LockRetrier().Config().InitialDelay)

	cfg := LockRetrier(WithMaxAttempts(2), WithInitialDelay(time.Millisecond)).Config()
	assert.Equal(t, 2, cfg.MaxAttempts)
	assert.Equal(t, time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 1.5, cfg.Multiplier)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	r := fast(WithMaxAttempts(3), WithOnRetry(func(attempt int, _ error, _ time.Duration) {
		attempts = append(attempts, attempt)
	}))

	_ = r.Do(context.Background(), func(context.Context) error { return Retryable(errBoom) })
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fast().Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithData(t *testing.T) {
	calls := 0
	got, err := DoWithData(context.Background(), fast(), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, Retryable(errBoom)
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestDelay_CappedWithoutJitter(t *testing.T) {
	r := New(WithInitialDelay(100*time.Millisecond), WithMaxDelay(300*time.Millisecond), WithJitter(0))

	assert.Equal(t, 100*time.Millisecond, r.delay(1))
	assert.Equal(t, 200*time.Millisecond, r.delay(2))
	assert.Equal(t, 300*time.Millisecond, r.delay(3))
}
