package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_Attempts(t *testing.T) {
	tests := []struct {
		name          string
		failUntil     int
		maxRetries    int
		wantAttempts  int
		shouldSucceed bool
	}{
		{"first attempt succeeds", 1, 3, 1, true},
		{"succeeds on third attempt", 3, 3, 3, true},
		{"succeeds on last retry", 4, 3, 4, true},
		{"exhausts retries", 10, 3, 4, false},
		{"no retries", 10, 0, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), func() error {
				attempts++
				if attempts < tt.failUntil {
					return errors.New("temporary failure")
				}
				return nil
			}, WithMaxRetries(tt.maxRetries), WithInitialDelay(time.Millisecond))

			assert.Equal(t, tt.wantAttempts, attempts)
			if tt.shouldSucceed {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "temporary failure")
			}
		})
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	cause := errors.New("missing credentials")
	attempts := 0

	err := Do(context.Background(), func() error {
		attempts++
		return Permanent(cause)
	}, WithMaxRetries(5), WithInitialDelay(time.Millisecond))

	assert.Equal(t, 1, attempts)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, cause)
}

func TestDo_PermanentAfterTransient(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		if attempts == 1 {
			return errors.New("flaky")
		}
		return Permanent(errors.New("404"))
	}, WithMaxRetries(5), WithInitialDelay(time.Millisecond))

	assert.Equal(t, 2, attempts)
	assert.True(t, IsPermanent(err))
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := Do(ctx, func() error {
		attempts++
		return errors.New("always fails")
	}, WithInitialDelay(200*time.Millisecond), WithMaxRetries(5))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDo_ContextTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := Do(ctx, func() error {
		return errors.New("always fails")
	}, WithInitialDelay(30*time.Millisecond), WithMaxRetries(10))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_NilFunction(t *testing.T) {
	assert.Error(t, Do(context.Background(), nil))
}

func TestDo_OnRetryHook(t *testing.T) {
	var seen []int
	_ = Do(context.Background(), func() error {
		return errors.New("nope")
	},
		WithMaxRetries(2),
		WithInitialDelay(time.Millisecond),
		WithOnRetry(func(attempt int, err error) { seen = append(seen, attempt) }),
	)

	assert.Equal(t, []int{1, 2}, seen)
}

func TestDelaySchedules(t *testing.T) {
	exp := &Config{initialDelay: 100 * time.Millisecond, maxDelay: time.Second, multiplier: 2, backoff: Exponential}
	assert.Equal(t, 100*time.Millisecond, exp.delay(1))
	assert.Equal(t, 200*time.Millisecond, exp.delay(2))
	assert.Equal(t, 400*time.Millisecond, exp.delay(3))
	assert.Equal(t, time.Second, exp.delay(10))

	lin := &Config{initialDelay: 100 * time.Millisecond, maxDelay: 250 * time.Millisecond, backoff: Linear}
	assert.Equal(t, 100*time.Millisecond, lin.delay(1))
	assert.Equal(t, 200*time.Millisecond, lin.delay(2))
	assert.Equal(t, 250*time.Millisecond, lin.delay(3))
}

func TestInvalidOptionsKeepDefaults(t *testing.T) {
	cfg := defaultConfig()
	for _, opt := range []Option{WithMaxRetries(-1), WithInitialDelay(0), WithMaxDelay(-time.Second), WithMultiplier(0)} {
		opt(cfg)
	}

	assert.Equal(t, 3, cfg.maxRetries)
	assert.Equal(t, time.Second, cfg.initialDelay)
	assert.Equal(t, 30*time.Second, cfg.maxDelay)
	assert.Equal(t, 2.0, cfg.multiplier)
}

func TestAppError(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(ErrCodeDatabase, "保存日报失败", cause)

	assert.Equal(t, "[DATABASE_ERROR] 保存日报失败: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrCodeDatabase, CodeOf(err))
	assert.Equal(t, "[NOT_FOUND] 日报不存在", NewError(ErrCodeNotFound, "日报不存在").Error())
	assert.Equal(t, "", CodeOf(cause))
}
