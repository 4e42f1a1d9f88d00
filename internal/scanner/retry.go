package scanner

import (
	"context"
	"math/rand"
	"time"

	"positionscope/internal/model"
)

const maxRetryDelay = 10 * time.Second

// withRetry runs fn with exponential backoff and jitter. Only transient RPC
// failures are retried; anything else surfaces immediately.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !model.IsTransientRPC(err) {
			return err
		}
		if attempt >= maxRetries {
			return err
		}

		if err := backoffWait(ctx, delay); err != nil {
			return err
		}
		delay = nextDelay(delay)
	}
}

// backoffWait sleeps for a jittered delay, honoring context cancellation.
func backoffWait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(jittered(delay))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextDelay(delay time.Duration) time.Duration {
	delay *= 2
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

// jittered spreads a delay over [delay/2, delay] so retries from parallel
// workers do not land in lockstep.
func jittered(delay time.Duration) time.Duration {
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
