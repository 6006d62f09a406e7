package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/mangax/internal/limiter"
	"github.com/desertthunder/mangax/internal/services"
)

// RetryPolicy retries temporary catalog failures with linearly growing delays:
// BaseDelay, 2*BaseDelay, 3*BaseDelay, ...
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy retries three times after 1s, 2s and 3s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}
}

// linearBackOff implements [backoff.BackOff] with delays growing by base each attempt.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.base
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &linearBackOff{base: p.BaseDelay}
	b = backoff.WithMaxRetries(b, uint64(max(p.MaxRetries, 0)))
	return backoff.WithContext(b, ctx)
}

// callCatalog runs op behind a limiter permit, retrying temporary failures.
//
// Every attempt (including retries) waits for its own permit. Auth, rate-limit, cancellation and
// other non-temporary errors are returned immediately.
func callCatalog[T any](ctx context.Context, queue *limiter.Queue, policy RetryPolicy, logger *log.Logger, label string, op func(context.Context) (T, error)) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		var zero T

		if _, err := queue.Acquire(ctx); err != nil {
			return zero, backoff.Permanent(err)
		}

		res, err := op(ctx)
		switch {
		case err == nil:
			return res, nil
		case ctx.Err() != nil:
			return zero, backoff.Permanent(ctx.Err())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return zero, backoff.Permanent(err)
		case !services.IsTemporary(err):
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}

	notify := func(err error, delay time.Duration) {
		logger.Warn("retrying catalog request", "query", label, "attempt", attempt, "delay", delay, "err", err)
	}

	return backoff.RetryNotifyWithData(operation, policy.backOff(ctx), notify)
}
