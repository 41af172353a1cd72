package feedreader

import (
	"errors"
	"fmt"
)

// Error kinds raised while reading a batch.
var (
	// ErrMalformedJSON means the batch is not a JSON array of objects.
	ErrMalformedJSON = errors.New("feedreader: malformed json")
	// ErrMissingField means a node lacks its time or type field.
	ErrMissingField = errors.New("feedreader: missing field")
	// ErrInvalidTime means a node's time field cannot be parsed.
	ErrInvalidTime = errors.New("feedreader: invalid timestamp")
	// ErrOrderViolation means consecutive nodes are out of order for the read mode.
	ErrOrderViolation = errors.New("feedreader: order violation")
	// ErrConflictingType means a decoded record reports a different type than its node.
	ErrConflictingType = errors.New("feedreader: conflicting type")
)

// ParseError describes a batch that could not be read.
type ParseError struct {
	Kind     error  // one of the Err* kinds above
	Index    int    // position of the offending node, -1 if not node specific
	Field    string // missing field, for ErrMissingField
	Previous string // running timestamp, for ErrOrderViolation
	Current  string // offending timestamp, or record type for ErrConflictingType
	Node     string // offending node as raw JSON
	Err      error
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case ErrMissingField:
		return fmt.Sprintf("%v: node %d lacks %q: %s", e.Kind, e.Index, e.Field, e.Node)
	case ErrOrderViolation:
		return fmt.Sprintf("%v: node %d time %s does not follow %s: %s", e.Kind, e.Index, e.Current, e.Previous, e.Node)
	case ErrConflictingType:
		return fmt.Sprintf("%v: node %d of type %s decoded as %s", e.Kind, e.Index, e.Previous, e.Current)
	}
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

// Is matches the error kind so callers can use errors.Is(err, ErrOrderViolation).
func (e *ParseError) Is(target error) bool {
	return e.Kind == target
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
