package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by guarded calls while the breaker is open.
var ErrCircuitOpen = errors.New("circuit open")

// RateLimitError is a provider saying "slow down": HTTP 429,
// gRPC RESOURCE_EXHAUSTED or a vendor quota payload.
type RateLimitError struct {
	Provider string
	Message  string
}

func (e RateLimitError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Provider != "":
		return e.Provider + ": rate limit"
	default:
		return "rate limit"
	}
}

// IsRateLimit reports whether err carries a RateLimitError anywhere in its chain.
func IsRateLimit(err error) bool {
	return errors.As(err, new(RateLimitError))
}

// CircuitBreaker trips after threshold consecutive rate limit failures and
// rejects calls until cooldown has passed. Other errors leave it untouched.
type CircuitBreaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu      sync.Mutex
	streak  int
	resumes time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	cb := &CircuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
	if cb.threshold < 1 {
		cb.threshold = 3
	}
	if cb.cooldown <= 0 {
		cb.cooldown = 30 * time.Second
	}
	return cb
}

// Allow is true while the breaker is closed.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumes.IsZero() || !c.now().Before(c.resumes)
}

func (c *CircuitBreaker) record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.streak, c.resumes = 0, time.Time{}
		return
	}
	if !IsRateLimit(err) {
		return
	}
	if c.streak++; c.streak >= c.threshold {
		c.resumes = c.now().Add(c.cooldown)
	}
}

// Call runs fn when the breaker allows it and records the outcome.
// A nil breaker always runs fn.
func (c *CircuitBreaker) Call(fn func() error) error {
	if c == nil {
		return fn()
	}
	if !c.Allow() {
		return ErrCircuitOpen
	}
	err := fn()
	c.record(err)
	return err
}
