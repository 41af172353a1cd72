// Package feedreader parses downloaded feed batches into typed records.
//
// A batch is a JSON array of nodes, each carrying a "time" and a "type"
// field. Nodes are validated for monotonic time order and dispatched to a
// caller supplied callback by their type. Types without a registered
// decoder are skipped so that new kinds of records do not break readers.
package feedreader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/bryan-buckman/turfcollector/internal/model"
)

// Mode selects the direction batch timestamps must run in.
type Mode int

const (
	// Forward requires non-decreasing timestamps.
	Forward Mode = iota
	// Reversed requires non-increasing timestamps, the order the API returns.
	Reversed
)

func (m Mode) String() string {
	if m == Reversed {
		return "reversed"
	}
	return "forward"
}

// Field names every node must carry.
const (
	FieldTime = "time"
	FieldType = "type"
)

// Node is one generic entry of a batch.
type Node struct {
	Index   int
	Time    time.Time
	RawTime string
	Type    string
	Raw     json.RawMessage
}

// IsEmpty reports whether content holds no records.
func IsEmpty(content []byte) bool {
	trimmed := bytes.TrimSpace(content)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("[]"))
}

// Nodes parses content into nodes in file order without checking their order.
func Nodes(content []byte) ([]Node, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(content, &raws); err != nil {
		return nil, &ParseError{Kind: ErrMalformedJSON, Index: -1, Err: err}
	}
	nodes := make([]Node, 0, len(raws))
	for i, raw := range raws {
		var head struct {
			Time *string `json:"time"`
			Type *string `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, &ParseError{Kind: ErrMalformedJSON, Index: i, Node: string(raw), Err: err}
		}
		if head.Time == nil {
			return nil, &ParseError{Kind: ErrMissingField, Index: i, Field: FieldTime, Node: string(raw)}
		}
		if head.Type == nil {
			return nil, &ParseError{Kind: ErrMissingField, Index: i, Field: FieldType, Node: string(raw)}
		}
		ts, err := model.ParseTime(*head.Time)
		if err != nil {
			return nil, &ParseError{Kind: ErrInvalidTime, Index: i, Current: *head.Time, Node: string(raw), Err: err}
		}
		nodes = append(nodes, Node{
			Index:   i,
			Time:    ts,
			RawTime: *head.Time,
			Type:    *head.Type,
			Raw:     raw,
		})
	}
	return nodes, nil
}

// LatestTime returns the maximum timestamp in content by scanning every node.
// It does not rely on the batch being ordered.
func LatestTime(content []byte) (time.Time, error) {
	nodes, err := Nodes(content)
	if err != nil {
		return time.Time{}, err
	}
	if len(nodes) == 0 {
		return time.Time{}, fmt.Errorf("latest time: batch is empty")
	}
	latest := nodes[0].Time
	for _, n := range nodes[1:] {
		if n.Time.After(latest) {
			latest = n.Time
		}
	}
	return latest, nil
}

// Span summarizes the time range of a batch.
type Span struct {
	Count int
	Type  string // type of the first node in file order
	Start time.Time
	End   time.Time
}

// Bounds returns the minimum and maximum timestamps of content.
func Bounds(content []byte) (Span, error) {
	nodes, err := Nodes(content)
	if err != nil {
		return Span{}, err
	}
	span := Span{Count: len(nodes)}
	for i, n := range nodes {
		if i == 0 {
			span.Type = n.Type
			span.Start, span.End = n.Time, n.Time
			continue
		}
		if n.Time.Before(span.Start) {
			span.Start = n.Time
		}
		if n.Time.After(span.End) {
			span.End = n.Time
		}
	}
	return span, nil
}

// Reader validates batches and dispatches their records.
type Reader struct {
	registry Registry
	mode     Mode
}

// New creates a reader dispatching the types in registry.
func New(registry Registry, mode Mode) *Reader {
	return &Reader{registry: registry, mode: mode}
}

// Read parses content, checks time order and calls fn for every node whose
// type is registered. Reading stops at the first error, including one
// returned by fn.
func (r *Reader) Read(content []byte, fn func(model.Record) error) error {
	nodes, err := Nodes(content)
	if err != nil {
		return err
	}
	var last *Node
	for i := range nodes {
		n := &nodes[i]
		if last != nil && !r.inOrder(last.Time, n.Time) {
			return &ParseError{
				Kind:     ErrOrderViolation,
				Index:    n.Index,
				Previous: last.RawTime,
				Current:  n.RawTime,
				Node:     string(n.Raw),
			}
		}
		last = n

		decode, ok := r.registry[n.Type]
		if !ok {
			continue
		}
		rec, err := decode(n.Raw)
		if err != nil {
			return &ParseError{Kind: ErrMalformedJSON, Index: n.Index, Node: string(n.Raw), Err: err}
		}
		if rec.Type() != n.Type {
			return &ParseError{
				Kind:     ErrConflictingType,
				Index:    n.Index,
				Previous: n.Type,
				Current:  rec.Type(),
				Node:     string(n.Raw),
			}
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) inOrder(prev, cur time.Time) bool {
	if r.mode == Reversed {
		return !cur.After(prev)
	}
	return !cur.Before(prev)
}

// ReadFile reads the batch stored at path. Read errors are passed to h,
// which may tolerate them by returning nil.
func (r *Reader) ReadFile(path string, h ErrorHandler, fn func(model.Record) error) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := r.Read(content, fn); err != nil {
		if h == nil {
			return err
		}
		return h.HandleContent(path, content, err)
	}
	return nil
}
