package helper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy describes exponential backoff with jitter for remote calls.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns 4 attempts starting at 250ms, capped at 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
}

// RetryAfterError asks the retry loop to wait at least After before the next attempt.
type RetryAfterError struct {
	Err   error
	After time.Duration
}

func (e *RetryAfterError) Error() string {
	return e.Err.Error()
}

func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

// Permanent marks err as not retriable.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// retryAfterBackOff stretches the next delay to a server provided Retry-After hint.
type retryAfterBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.hint > next {
		next = b.hint
	}
	b.hint = 0
	return next
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	if exp.InitialInterval <= 0 {
		exp.InitialInterval = time.Millisecond
	}
	exp.MaxInterval = p.MaxDelay
	if exp.MaxInterval < exp.InitialInterval {
		exp.MaxInterval = exp.InitialInterval
	}
	exp.Multiplier = 2
	exp.RandomizationFactor = 0.5
	exp.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithMaxRetries(exp, uint64(attempts-1))
}

// Do runs fn until it succeeds, returns a Permanent error, the attempts are used up
// or ctx is done. The last error of fn is returned.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, operation string, fn func() error) error {
	b := &retryAfterBackOff{BackOff: p.newBackOff()}

	var lastErr error
	attempt := 0
	err := backoff.RetryNotify(
		func() error {
			attempt++
			lastErr = fn()
			var retryAfter *RetryAfterError
			if errors.As(lastErr, &retryAfter) {
				b.hint = retryAfter.After
			}
			return lastErr
		},
		backoff.WithContext(b, ctx),
		func(err error, next time.Duration) {
			if logger != nil {
				logger.Warn(
					"Retrying remote call",
					slog.String("operation", operation),
					slog.Int("attempt", attempt),
					slog.Duration("backoff", next),
					slog.Any("error", err),
				)
			}
		},
	)
	if err != nil && lastErr != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return errors.Join(err, lastErr)
	}
	return err
}
