package ai

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/lestrrat-go/backoff/v2"
)

// RetryPolicy bounds how often a model call is attempted. The zero value
// makes a single attempt.
type RetryPolicy struct {
	MaxAttempts int
	MinInterval time.Duration
	MaxInterval time.Duration
}

// Do runs fn until it succeeds, returns a permanent error, or the policy is
// exhausted. Waits between attempts grow exponentially with jitter.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	minInterval := p.MinInterval
	if minInterval <= 0 {
		minInterval = 500 * time.Millisecond
	}
	maxInterval := p.MaxInterval
	if maxInterval < minInterval {
		maxInterval = minInterval
	}

	// The controller goroutine lives until its context ends.
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	policy := backoff.Exponential(
		backoff.WithMinInterval(minInterval),
		backoff.WithMaxInterval(maxInterval),
		backoff.WithMultiplier(2),
		backoff.WithJitterFactor(0.2),
		backoff.WithMaxRetries(attempts),
	)
	b := policy.Start(loopCtx)

	var lastErr error
	for n := 1; backoff.Continue(b); n++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if !IsRetryable(err) || n >= attempts {
			return err
		}
	}

	if lastErr == nil {
		return ctx.Err()
	}
	if ctx.Err() != nil {
		return fmt.Errorf("retry aborted: %w: %w", ctx.Err(), lastErr)
	}
	return lastErr
}

// IsRetryable treats throttling, server errors and transport failures as
// transient. Cancellation by the caller never is.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
