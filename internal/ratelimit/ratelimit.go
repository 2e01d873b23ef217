// Package ratelimit mirrors the server-side request quotas and blocks
// callers before an exhausted bucket turns into a string of 403s.
package ratelimit

import (
	"context"
	"log"
	"sync"
	"time"
)

// Category selects which quota bucket a request draws from.
type Category int

const (
	// Core covers the REST and GraphQL endpoints.
	Core Category = iota
	// Search covers the search endpoints, which carry a far smaller quota.
	Search
)

func (c Category) String() string {
	if c == Search {
		return "search"
	}
	return "core"
}

const (
	defaultCoreLimit   = 5000
	defaultSearchLimit = 30

	// resetMargin pads the advertised reset instant, which in practice can
	// lag by up to a second.
	resetMargin = time.Second

	// maxWait caps a single reset sleep so a bogus reset timestamp cannot
	// park the run for hours.
	maxWait = 2 * time.Hour

	// safetyReserve keeps the last request of every bucket unspent.
	safetyReserve = 1
)

type bucket struct {
	limit     int
	remaining int
	resetAt   time.Time
	waiting   chan struct{} // non-nil while a reset sleep is in flight
}

// Tracker keeps an independent budget per category. Acquire spends from the
// budget pessimistically and Update corrects the books from each response,
// so concurrent callers can never overdraw between responses.
type Tracker struct {
	mu      sync.Mutex
	buckets map[Category]*bucket

	logger *log.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewTracker returns a Tracker primed with the documented default quotas.
func NewTracker(logger *log.Logger) *Tracker {
	return &Tracker{
		buckets: map[Category]*bucket{
			Core:   {limit: defaultCoreLimit, remaining: defaultCoreLimit},
			Search: {limit: defaultSearchLimit, remaining: defaultSearchLimit},
		},
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Acquire reserves one request from the category's budget. When the budget
// is spent it blocks until the quota window resets; every caller that
// arrives during the wait parks on the same reset instead of sleeping
// independently. The only error it returns is ctx's.
func (t *Tracker) Acquire(ctx context.Context, c Category) error {
	for {
		t.mu.Lock()
		b := t.buckets[c]
		if b.remaining > safetyReserve {
			b.remaining--
			t.mu.Unlock()
			return nil
		}
		if b.waiting == nil {
			b.waiting = make(chan struct{})
			go t.releaseAfterReset(c, b.resetAt, b.waiting)
		}
		ch := b.waiting
		resetAt := b.resetAt
		t.mu.Unlock()

		t.logger.Printf("rate limit: %s budget exhausted, waiting until %s", c, resetAt.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// releaseAfterReset sleeps out the quota window, restores the default
// budget and wakes every parked caller. The next response overwrites the
// optimistic figure with the server's own accounting.
func (t *Tracker) releaseAfterReset(c Category, resetAt time.Time, ch chan struct{}) {
	d := resetAt.Sub(t.now()) + resetMargin
	if d < resetMargin {
		d = resetMargin
	}
	if d > maxWait {
		d = maxWait
	}
	t.sleep(context.Background(), d)

	t.mu.Lock()
	b := t.buckets[c]
	if b.waiting == ch {
		b.waiting = nil
		if b.remaining <= safetyReserve {
			b.remaining = b.limit
		}
	}
	t.mu.Unlock()
	close(ch)
}

// Update overwrites the category's books with the figures a response
// reported. A later reset timestamp starts a fresh window; within the same
// window only a lower remaining count is adopted, so out-of-order responses
// cannot inflate the budget while requests are still in flight.
func (t *Tracker) Update(c Category, limit, remaining int, resetAt time.Time) {
	if limit <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.buckets[c]
	b.limit = limit
	if resetAt.After(b.resetAt) {
		b.resetAt = resetAt
		b.remaining = remaining
		return
	}
	if remaining < b.remaining {
		b.remaining = remaining
	}
}

// Remaining reports the tracked budget for a category.
func (t *Tracker) Remaining(c Category) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buckets[c].remaining
}
