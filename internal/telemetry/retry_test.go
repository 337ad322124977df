package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetry(t *testing.T) {
	t.Run("success_after_retry", func(t *testing.T) {
		attempts := 0
		err := Retry(context.Background(), noJitter, func() error {
			attempts++
			if attempts < 2 {
				return errors.New("failed")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, attempts)
	})

	t.Run("exhaust_retries", func(t *testing.T) {
		attempts := 0
		err := Retry(context.Background(), noJitter, func() error {
			attempts++
			return errors.New("always")
		})
		assert.EqualError(t, err, "always")
		assert.Equal(t, 3, attempts)
	})

	t.Run("context_cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		policy := RetryPolicy{MaxRetries: 5, BaseBackoff: time.Hour, MaxBackoff: time.Hour}
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		err := Retry(ctx, policy, func() error { return errors.New("fail") })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDefaultRetryPolicy_JitterBounded(t *testing.T) {
	p := DefaultRetryPolicy(3, 100*time.Millisecond)
	for i := 0; i < 100; i++ {
		d := p.next(100 * time.Millisecond)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
	assert.Equal(t, p.MaxBackoff, p.next(time.Hour))
}

func TestBackoff_DoublesAndCaps(t *testing.T) {
	b := newBackoff(time.Millisecond, 3*time.Millisecond)
	assert.True(t, b.wait(context.Background()))
	assert.Equal(t, 2*time.Millisecond, b.current)
	assert.True(t, b.wait(context.Background()))
	assert.Equal(t, 3*time.Millisecond, b.current)
	b.reset()
	assert.Equal(t, time.Millisecond, b.current)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, newBackoff(time.Hour, time.Hour).wait(ctx))
}
