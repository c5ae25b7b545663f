package rest

import (
	"context"
	"math/rand"
	"time"
)

const (
	rateLimitMaxAttempts = 5
	transientMaxAttempts = 3

	backoffBase = 2 * time.Second
	backoffCap  = 60 * time.Second
)

// expBackoff returns the delay before the given 429 retry attempt:
// exponential with jitter, capped at backoffCap.
func expBackoff(attempt int) time.Duration {
	delay := backoffBase << (attempt - 1)
	if delay > backoffCap {
		delay = backoffCap
	}
	// up to 25% jitter to avoid retry alignment across chunked requests
	jitter := time.Duration(rand.Int63n(int64(delay) / 4))
	if delay+jitter > backoffCap {
		return backoffCap
	}
	return delay + jitter
}

// linearBackoff returns the delay before the given transient retry attempt.
func linearBackoff(attempt int) time.Duration {
	return time.Duration(attempt) * time.Second
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
