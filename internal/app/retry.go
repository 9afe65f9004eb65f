package app

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/example/quill/internal/apperr"
	"github.com/example/quill/internal/log"
)

// RetryPolicy bounds how long retryable errors (a held lock, a lost
// conditional update) are retried before surfacing as busy.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy matches the configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// retryBusy runs op until it succeeds, fails with a non-retryable error, or
// the policy is exhausted. An exhausted retryable error is wrapped as
// apperr.ErrBusy.
func retryBusy[T any](ctx context.Context, policy RetryPolicy, what string, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}

	tries := policy.MaxAttempts
	if tries < 1 {
		tries = 1
	}

	v, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !apperr.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(tries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug("retrying", "op", what, "in", next, "err", err)
		}),
	)
	if err == nil {
		return v, nil
	}
	if apperr.IsRetryable(err) {
		return v, apperr.Busy(err)
	}
	return v, err
}
