// Package retry implements bounded exponential backoff for transient
// collection failures.
package retry

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/soralab/gh-productivity/internal/domain"
)

// Policy controls how many times a unit of work is attempted and how long
// to pause between attempts.
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // pause before the second attempt
	MaxDelay    time.Duration // ceiling for any single pause

	Logger *log.Logger

	sleep func(ctx context.Context, d time.Duration) error
	rand  func(n int64) int64
}

// Default returns the policy used by collection runs.
func Default(logger *log.Logger) Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    60 * time.Second,
		Logger:      logger,
	}
}

// Do runs fn until it succeeds, fails permanently, or the attempt budget is
// spent. Transient failures are retried after an exponentially growing,
// jittered pause; an upstream retry-after hint replaces the computed pause.
// Anything non-transient propagates unchanged. When the budget runs out the
// unit is reported unavailable with the last failure as cause.
func (p Policy) Do(ctx context.Context, unit string, fn func() error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	randInt := p.rand
	if randInt == nil {
		randInt = rand.Int63n
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !domain.IsTransient(err) {
			return err
		}
		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.BaseDelay << (attempt - 1)
		if hint, ok := domain.RetryAfterHint(err); ok {
			delay = hint
		}
		if delay > p.MaxDelay || delay <= 0 {
			delay = p.MaxDelay
		}
		if j := int64(delay / 10); j > 0 {
			delay += time.Duration(randInt(j))
		}

		p.logf("retry: %s attempt %d/%d failed (%v), next in %s", unit, attempt, p.MaxAttempts, err, delay)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return &domain.CollectionError{Kind: domain.KindUnavailable, Unit: unit, Cause: lastErr}
}

func (p Policy) logf(format string, args ...any) {
	if p.Logger != nil {
		p.Logger.Printf(format, args...)
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
