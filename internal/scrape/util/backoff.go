package util

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// LinearBackOff waits Step, 2*Step, 3*Step... between attempts.
type LinearBackOff struct {
	Step time.Duration
	n    int64
}

func (b *LinearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.Step * time.Duration(b.n)
}

func (b *LinearBackOff) Reset() { b.n = 0 }

// NewExponentialBackOff doubles from initial up to max (with the library's
// default jitter) and never gives up on elapsed time; callers bound it by
// retries instead.
func NewExponentialBackOff(initial, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	if max > 0 {
		b.MaxInterval = max
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Retry runs op until it succeeds, fails retries+1 times, returns a
// backoff.Permanent error, or ctx is done (then ctx.Err() is returned).
// notify, when set, sees every failure that is about to be retried.
func Retry(ctx context.Context, policy backoff.BackOff, retries int, op func() error, notify backoff.Notify) error {
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx)
	return backoff.RetryNotify(op, b, notify)
}
