package resilience

import (
	"context"
	"time"
)

// RetryPolicy retries transient failures with a linearly growing pause.
// Retryable picks the errors worth another attempt; when nil, everything but
// a rate limit is retried so quota errors reach the caller at once.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	Retryable  func(error) bool
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	p := RetryPolicy{MaxRetries: maxRetries, Backoff: backoff}
	if p.MaxRetries < 1 {
		p.MaxRetries = 2
	}
	if p.Backoff <= 0 {
		p.Backoff = 200 * time.Millisecond
	}
	return p
}

// Do calls fn up to MaxRetries+1 times. It returns the last error once the
// attempts are spent, the error is not retryable or ctx is cancelled.
func (r RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempt := 0
	for {
		err := fn(ctx)
		if err == nil || attempt >= r.MaxRetries || !r.shouldRetry(err) {
			return err
		}
		attempt++
		pause := time.NewTimer(r.Backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			pause.Stop()
			return err
		case <-pause.C:
		}
	}
}

func (r RetryPolicy) shouldRetry(err error) bool {
	if r.Retryable == nil {
		return !IsRateLimit(err)
	}
	return r.Retryable(err)
}
