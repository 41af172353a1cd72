package collector

import (
	"context"
	"sync"
	"time"
)

// requestSpacer serializes requests to the API and enforces a minimum
// delay between the end of one request and the start of the next.
type requestSpacer struct {
	clock Clock
	delay time.Duration
	sem   chan struct{}

	mu          sync.Mutex
	lastRequest time.Time
}

func newRequestSpacer(clock Clock, delay time.Duration) *requestSpacer {
	return &requestSpacer{
		clock: clock,
		delay: delay,
		sem:   make(chan struct{}, 1),
	}
}

// acquire gets the request slot, blocking if necessary.
// It also enforces the minimum delay since the previous request.
func (s *requestSpacer) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	lastReq := s.lastRequest
	s.mu.Unlock()

	if !lastReq.IsZero() {
		elapsed := s.clock.Now().Sub(lastReq)
		if elapsed < s.delay {
			if err := s.clock.Sleep(ctx, s.delay-elapsed); err != nil {
				// Release the slot on cancel
				<-s.sem
				return err
			}
		}
	}
	return nil
}

// release returns the slot and records the request time.
func (s *requestSpacer) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastRequest = s.clock.Now()
	<-s.sem
}
