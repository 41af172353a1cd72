package model

import (
	"fmt"
	"time"
)

// APITimeLayout is the timestamp form used by the feed API.
const APITimeLayout = "2006-01-02T15:04:05-0700"

// ParseTime parses a record timestamp in either the API form or RFC 3339.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(APITimeLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// FormatAPITime formats t in UTC the way the API expects it in query parameters.
func FormatAPITime(t time.Time) string {
	return t.UTC().Format(APITimeLayout)
}
