// Package retry runs storage operations with bounded exponential backoff
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/skillpath/backend/libs/apperr"
)

// Policy bounds a retried operation
type Policy struct {
	Attempts        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy retries five times starting at 20ms
func DefaultPolicy() Policy {
	return Policy{Attempts: 5, InitialInterval: 20 * time.Millisecond, MaxInterval: 500 * time.Millisecond}
}

// WithAttempts returns a copy of the policy with the attempt count replaced
func (p Policy) WithAttempts(n uint) Policy {
	if n > 0 {
		p.Attempts = n
	}
	return p
}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// Do runs op until it succeeds, fails with an error retryable rejects, or the policy is exhausted.
// An exhausted retryable failure is reported as apperr.Unavailable; other errors are returned unchanged.
func Do[T any](ctx context.Context, p Policy, retryable func(error) bool, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}

	res, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(p.backOff()), backoff.WithMaxTries(attempts))

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	if err != nil && retryable(err) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return res, apperr.Wrap(apperr.Unavailable, err, "the service is busy, please retry")
	}
	return res, err
}
