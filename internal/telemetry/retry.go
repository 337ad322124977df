package telemetry

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls retry behavior for source reads.
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration // initial backoff duration
	MaxBackoff  time.Duration // upper bound on backoff
	JitterFn    func(time.Duration) time.Duration
}

// DefaultRetryPolicy adds up to 50% random jitter to each delay.
func DefaultRetryPolicy(retries int, base time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxRetries:  retries,
		BaseBackoff: base,
		MaxBackoff:  30 * time.Second,
		JitterFn: func(d time.Duration) time.Duration {
			if d <= 0 {
				return 0
			}
			return rand.N(d/2 + 1)
		},
	}
}

// Retry executes fn with retries, backoff, and cancellation support.
// Any non-nil error from fn is treated as retryable.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	var attempt int
	backoff := policy.BaseBackoff

	for {
		err := fn()
		if err == nil {
			return nil
		}

		attempt++
		if attempt > policy.MaxRetries {
			return err
		}

		delay := policy.next(backoff)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
			backoff *= 2
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (p RetryPolicy) next(backoff time.Duration) time.Duration {
	delay := backoff
	if p.JitterFn != nil {
		delay += p.JitterFn(backoff)
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	return delay
}

// backoff is the capped doubling delay the long-running consumers use between
// reconnect attempts.
type backoff struct {
	current time.Duration
	base    time.Duration
	max     time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{current: base, base: base, max: max}
}

// wait sleeps for the current delay and doubles it. It returns false when ctx ends first.
func (b *backoff) wait(ctx context.Context) bool {
	timer := time.NewTimer(b.current)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return true
}

func (b *backoff) reset() { b.current = b.base }
