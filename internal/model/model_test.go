package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSubFeedsOrder(t *testing.T) {
	feeds := DefaultSubFeeds()
	require.Len(t, feeds, 9)

	assert.Equal(t, "v4/takeover", feeds[0].ID())
	assert.Equal(t, "v4/medal+chat", feeds[1].ID())
	assert.Equal(t, "v4/zone", feeds[2].ID())
	assert.Equal(t, "unstable/zone", feeds[8].ID())
	assert.Equal(t, "feeds_v6", feeds[8].Dir)
	assert.Equal(t, "/v5/feeds/medal+chat", feeds[4].RequestPath())
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC)

	got, err := ParseTime("2024-01-01T00:00:05+0000")
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	got, err = ParseTime("2024-01-01T00:00:05Z")
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	got, err = ParseTime("2024-01-01T02:00:05+0200")
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	_, err = ParseTime("yesterday")
	assert.Error(t, err)
}

func TestFormatAPITime(t *testing.T) {
	ts := time.Date(2024, 1, 1, 1, 0, 4, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "2024-01-01T00:00:04+0000", FormatAPITime(ts))
}

func TestRecordIdentity(t *testing.T) {
	a := Takeover{At: "2024-01-01T00:00:05+0000", Zone: ZoneRef{ID: 7}, CurrentOwner: UserRef{ID: 3}}
	b := Takeover{At: "2024-01-01T00:00:05+0000", Zone: ZoneRef{ID: 8}, CurrentOwner: UserRef{ID: 3}}

	assert.NotEqual(t, a.Identity(), b.Identity())
	assert.Equal(t, TypeTakeover, a.Type())
}
