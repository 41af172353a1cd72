package collector

import (
	"context"
	"time"

	"github.com/bryan-buckman/turfcollector/internal/turfapi"
)

// Policy bounds how often a request is attempted.
type Policy struct {
	MaxAttempts int
	// Backoff is waited between attempts.
	Backoff time.Duration
	// Retryable decides whether a class is worth another attempt.
	// Nil retries everything but ClassOK.
	Retryable func(turfapi.Class) bool
}

// DefaultPolicy tries twice, five seconds apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 2, Backoff: DefaultRequestDelay}
}

func (p Policy) retryable(c turfapi.Class) bool {
	if p.Retryable == nil {
		return c != turfapi.ClassOK
	}
	return p.Retryable(c)
}

// Retry runs op until it reports a class that is not retryable or the
// attempts of p are used up. It returns the last result, the number of
// attempts made and ctx's error if the context ended the loop.
func Retry[T any](ctx context.Context, p Policy, clock Clock, op func(ctx context.Context, attempt int) (T, turfapi.Class)) (T, int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var last T
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, attempt - 1, err
		}
		var class turfapi.Class
		last, class = op(ctx, attempt)
		if err := ctx.Err(); err != nil {
			return last, attempt, err
		}
		if !p.retryable(class) || attempt == maxAttempts {
			return last, attempt, nil
		}
		if err := clock.Sleep(ctx, p.Backoff); err != nil {
			return last, attempt, err
		}
	}
	return last, maxAttempts, nil
}
