package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	policy := NewRetryPolicy(3, time.Millisecond)
	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetrySkipsRateLimit(t *testing.T) {
	policy := NewRetryPolicy(3, time.Millisecond)
	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return RateLimitError{Provider: "gemini"}
	})
	if !IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	policy := NewRetryPolicy(5, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func(context.Context) error {
			calls++
			return errors.New("down")
		})
	}()
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected error")
		}
	case <-time.After(time.Second):
		t.Fatalf("retry did not observe cancellation")
	}
}

func TestCircuitBreakerOpensOnRateLimits(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }

	rl := func() error { return RateLimitError{} }
	_ = cb.Call(rl)
	if !cb.Allow() {
		t.Fatalf("expected breaker closed after one failure")
	}
	_ = cb.Call(rl)
	if err := cb.Call(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("expected breaker to close after cooldown, got %v", err)
	}
}

func TestCircuitBreakerIgnoresOtherErrors(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	_ = cb.Call(func() error { return errors.New("network") })
	if !cb.Allow() {
		t.Fatalf("non rate limit errors must not open the breaker")
	}
}
