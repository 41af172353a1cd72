// Package coverage reconstructs which time ranges have been captured on disk.
package coverage

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Interval is a closed time range covered by batches of one kind.
type Interval struct {
	Kind  string    `json:"kind"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ErrInvalidInterval is returned for ranges whose start is not before their end.
var ErrInvalidInterval = errors.New("coverage: invalid interval")

// NewInterval returns an interval, rejecting empty or inverted ranges.
func NewInterval(kind string, start, end time.Time) (Interval, error) {
	iv := Interval{Kind: kind, Start: start, End: end}
	if err := iv.validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

func (iv Interval) validate() error {
	if !iv.Start.Before(iv.End) {
		return fmt.Errorf("%w: %s start %s is not before end %s", ErrInvalidInterval, iv.Kind, iv.Start, iv.End)
	}
	return nil
}

// touches reports whether two intervals of the same kind overlap or share an endpoint.
func (iv Interval) touches(o Interval) bool {
	if iv.Kind != o.Kind {
		return false
	}
	return !iv.End.Before(o.Start) && !o.End.Before(iv.Start)
}

func union(a, b Interval) Interval {
	out := a
	if b.Start.Before(out.Start) {
		out.Start = b.Start
	}
	if b.End.After(out.End) {
		out.End = b.End
	}
	return out
}

func (iv Interval) String() string {
	return fmt.Sprintf("%s: %s - %s", iv.Kind, iv.Start.UTC().Format(time.RFC3339), iv.End.UTC().Format(time.RFC3339))
}

// Set holds pairwise disjoint, maximally merged intervals.
type Set struct {
	intervals []Interval
}

// Add merges iv into the set. Any interval of the same kind that overlaps or
// touches iv is absorbed, repeatedly, until nothing more can merge. Empty or
// inverted intervals are rejected and leave the set unchanged.
func (s *Set) Add(iv Interval) error {
	if err := iv.validate(); err != nil {
		return err
	}
	for {
		merged := false
		for i, cur := range s.intervals {
			if cur.touches(iv) {
				iv = union(cur, iv)
				s.intervals = append(s.intervals[:i], s.intervals[i+1:]...)
				merged = true
				break
			}
		}
		if !merged {
			break
		}
	}
	s.intervals = append(s.intervals, iv)
	return nil
}

// Intervals returns the set ordered by kind then start.
func (s *Set) Intervals() []Interval {
	out := append([]Interval(nil), s.intervals...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// ByKind groups the set's intervals per kind, each ordered by start.
func (s *Set) ByKind() map[string][]Interval {
	out := make(map[string][]Interval)
	for _, iv := range s.Intervals() {
		out[iv.Kind] = append(out[iv.Kind], iv)
	}
	return out
}

// Merge returns the disjoint merged form of observations. The result does
// not depend on the order of observations. Empty or inverted observations
// are dropped.
func Merge(observations []Interval) []Interval {
	var s Set
	for _, iv := range observations {
		_ = s.Add(iv)
	}
	return s.Intervals()
}

// Gaps returns the uncovered ranges between consecutive intervals of each kind.
func Gaps(intervals []Interval) []Interval {
	var s Set
	for _, iv := range intervals {
		_ = s.Add(iv)
	}
	var gaps []Interval
	for kind, ivs := range s.ByKind() {
		for i := 1; i < len(ivs); i++ {
			gaps = append(gaps, Interval{Kind: kind, Start: ivs[i-1].End, End: ivs[i].Start})
		}
	}
	sort.Slice(gaps, func(i, j int) bool {
		if gaps[i].Kind != gaps[j].Kind {
			return gaps[i].Kind < gaps[j].Kind
		}
		return gaps[i].Start.Before(gaps[j].Start)
	})
	return gaps
}
