package collector

import (
	"context"
	"time"
)

// Clock abstracts wall time so that the scheduler can be driven by tests.
type Clock interface {
	Now() time.Time
	// Sleep pauses for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the real clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitUntil sleeps until clock reaches t. It sleeps in chunks of at most
// chunk and re-reads the clock after each one, so a suspended or drifting
// host does not cause an oversleep of more than one chunk.
func WaitUntil(ctx context.Context, clock Clock, t time.Time, chunk time.Duration) error {
	for {
		now := clock.Now()
		if !now.Before(t) {
			return nil
		}
		d := t.Sub(now)
		if chunk > 0 && d > chunk {
			d = chunk
		}
		if err := clock.Sleep(ctx, d); err != nil {
			return err
		}
	}
}
