package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bryan-buckman/turfcollector/internal/model"
)

// Grid defaults.
const (
	DefaultPeriod = 5 * time.Minute
	// DefaultWaitChunk bounds a single sleep while waiting for a tick.
	DefaultWaitChunk = 5 * time.Second
)

// FirstTick returns the first grid point strictly after now. Grid points
// are offset past midnight UTC plus whole periods.
func FirstTick(now time.Time, period, offset time.Duration) time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := midnight.Add(offset)
	if start.After(now) {
		return start
	}
	k := now.Sub(start)/period + 1
	return start.Add(k * period)
}

// ValidateGrid checks that offset lies within the period.
func ValidateGrid(period, offset time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("period must be positive, got %s", period)
	}
	if offset < 0 || offset >= period {
		return fmt.Errorf("tick offset %s out of range [0, %s)", offset, period)
	}
	return nil
}

// Scheduler downloads every sub-feed once per grid tick, in order.
type Scheduler struct {
	feeds      []model.SubFeed
	downloader *Downloader
	clock      Clock
	period     time.Duration
	offset     time.Duration
	waitChunk  time.Duration
	logger     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler for feeds on a grid of period shifted by offset.
func NewScheduler(feeds []model.SubFeed, d *Downloader, period, offset time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if err := ValidateGrid(period, offset); err != nil {
		return nil, err
	}
	return &Scheduler{
		feeds:      feeds,
		downloader: d,
		clock:      d.clock,
		period:     period,
		offset:     offset,
		waitChunk:  DefaultWaitChunk,
		logger:     logger,
	}, nil
}

// Tick downloads every sub-feed once. A failing sub-feed never stops the others.
func (s *Scheduler) Tick(ctx context.Context) []Result {
	results := make([]Result, 0, len(s.feeds))
	for _, feed := range s.feeds {
		if ctx.Err() != nil {
			break
		}
		results = append(results, s.downloader.Download(ctx, feed))
	}
	return results
}

// Run ticks until ctx is done. Grid points missed because a tick overran
// are skipped rather than run back to back.
func (s *Scheduler) Run(ctx context.Context) error {
	next := FirstTick(s.clock.Now(), s.period, s.offset)
	for {
		s.logger.Info("sleeping until next tick", slog.Time("next", next))
		if err := WaitUntil(ctx, s.clock, next, s.waitChunk); err != nil {
			return err
		}

		results := s.Tick(ctx)
		s.logTick(next, results)
		if err := ctx.Err(); err != nil {
			return err
		}

		next = next.Add(s.period)
		skipped := 0
		for !next.After(s.clock.Now()) {
			next = next.Add(s.period)
			skipped++
		}
		if skipped > 0 {
			s.logger.Warn("tick overran, skipping grid points", slog.Int("skipped", skipped))
		}
	}
}

func (s *Scheduler) logTick(at time.Time, results []Result) {
	counts := make(map[model.DownloadOutcome]int)
	for _, r := range results {
		counts[r.Outcome]++
	}
	attrs := []any{slog.Time("tick", at), slog.Int("feeds", len(results))}
	for outcome, n := range counts {
		attrs = append(attrs, slog.Int(string(outcome), n))
	}
	s.logger.Info("tick finished", attrs...)
}

// Start begins the scheduling loop in the background.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Run(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler stopped", slog.String("error", err.Error()))
		}
	}()
}

// Stop stops the scheduler gracefully.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
