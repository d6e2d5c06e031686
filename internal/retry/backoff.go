// Package retry repeats startup operations that can fail transiently,
// such as binding a port a previous process has not released yet.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Backoff retries an operation with exponentially growing delays.
type Backoff struct {
	// Attempts is the total number of tries including the first (min 1).
	Attempts int
	// Delay is the wait before the second attempt (default 100ms).
	Delay time.Duration
	// MaxDelay caps the wait between attempts (default 2s).
	MaxDelay time.Duration
	// Jitter spreads each wait by up to ±20%.
	Jitter bool
	// Retryable decides whether an error is worth another attempt.  A
	// nil Retryable retries every error.
	Retryable func(error) bool
	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Do runs fn until it succeeds, fails with a non-retryable error, runs
// out of attempts, or ctx is done.  fn receives the 1-based attempt.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := b.Delay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if b.Retryable != nil && !b.Retryable(err) {
			return err
		}
		if attempt >= attempts {
			if attempts == 1 {
				return err
			}
			return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
		}

		wait := delay
		if b.Jitter {
			wait = jitter(delay)
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, wait, err)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(err, ctx.Err())
		case <-t.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func jitter(d time.Duration) time.Duration {
	spread := int64(d) / 5
	if spread <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(2*spread)-spread)
}
