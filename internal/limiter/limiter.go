// Package limiter serializes outbound catalog requests into evenly spaced slots.
//
// Callers are granted permits in arrival order; consecutive grants are at least
// 60s/RequestsPerMinute + SafetyMargin apart. The queue is in-process only.
package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mangax/internal/shared"
	"golang.org/x/time/rate"
)

// Options configures a [Queue].
type Options struct {
	RequestsPerMinute int
	SafetyMargin      time.Duration
	Logger            *log.Logger
}

// DefaultOptions returns the AniList-safe defaults: 28 requests per minute plus 50ms.
func DefaultOptions() Options {
	return Options{RequestsPerMinute: 28, SafetyMargin: 50 * time.Millisecond}
}

// Queue hands out request permits.
type Queue struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	interval  time.Duration
	waiting   int
	lastGrant time.Time
	logger    *log.Logger
}

// New creates a Queue. A non-positive rate falls back to the default.
func New(opts Options) *Queue {
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = DefaultOptions().RequestsPerMinute
	}
	if opts.SafetyMargin < 0 {
		opts.SafetyMargin = 0
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewNopLogger()
	}

	interval := time.Minute/time.Duration(opts.RequestsPerMinute) + opts.SafetyMargin
	return &Queue{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
		logger:   opts.Logger,
	}
}

// Interval is the minimum spacing between grants.
func (q *Queue) Interval() time.Duration {
	return q.interval
}

// Acquire blocks until the caller's slot arrives and returns the grant time.
//
// Slots are reserved under a lock, so they are granted in the order Acquire was called. If ctx ends
// while waiting, the reservation is released for later callers and ctx's error is returned.
func (q *Queue) Acquire(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	q.mu.Lock()
	now := time.Now()
	r := q.limiter.ReserveN(now, 1)
	if !r.OK() {
		q.mu.Unlock()
		return time.Time{}, fmt.Errorf("limiter refused reservation")
	}
	delay := r.DelayFrom(now)
	grant := now.Add(delay)
	q.waiting++
	waiting := q.waiting
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.waiting--
		q.mu.Unlock()
	}()

	if delay > 0 {
		q.logger.Debug("waiting for request slot", "delay", delay, "queued", waiting)

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			r.Cancel()
			return time.Time{}, ctx.Err()
		case <-timer.C:
		}
	}

	q.mu.Lock()
	if grant.After(q.lastGrant) {
		q.lastGrant = grant
	}
	q.mu.Unlock()

	return grant, nil
}

// Waiting returns the number of callers currently holding or awaiting a slot.
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting
}

// LastGrant returns the most recent grant time, zero before the first.
func (q *Queue) LastGrant() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastGrant
}
