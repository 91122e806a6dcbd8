package events

import (
	"context"
	"math"
	"time"
)

// RetryPolicy controls how failed publishes are retried with exponential backoff
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetryPolicy keeps the worst case short because publishing runs inside the
// ingestion request: 3 attempts, 100ms initial delay, 2x multiplier, 2s max delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     2 * time.Second,
	}
}

// NextDelay returns the backoff delay for the given attempt number (1-indexed)
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Execute runs fn up to MaxAttempts times, sleeping between attempts. Returns the last
// error, or the context error if ctx ends while waiting.
func (p RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(p.NextDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
