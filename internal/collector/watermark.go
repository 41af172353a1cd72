package collector

import (
	"sync"
	"time"
)

// WatermarkRewind is subtracted from the latest timestamp of a batch. The
// API reports whole seconds, so the next request repeats the boundary second
// rather than risk skipping records that share it.
const WatermarkRewind = time.Second

// NextWatermark returns the watermark after storing a batch whose latest
// record is at latest.
func NextWatermark(latest time.Time) time.Time {
	return latest.Add(-WatermarkRewind).UTC()
}

// Tracker holds the watermark of each sub-feed for the lifetime of a run.
// The scheduler is its only writer; the status API reads snapshots.
type Tracker struct {
	mu         sync.RWMutex
	watermarks map[string]time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{watermarks: make(map[string]time.Time)}
}

// Get returns the watermark of feedID and whether one exists.
func (t *Tracker) Get(feedID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	w, ok := t.watermarks[feedID]
	return w, ok
}

// Set replaces the watermark of feedID.
func (t *Tracker) Set(feedID string, w time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.watermarks[feedID] = w
}

// Snapshot returns a copy of all watermarks.
func (t *Tracker) Snapshot() map[string]time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]time.Time, len(t.watermarks))
	for k, v := range t.watermarks {
		out[k] = v
	}
	return out
}
