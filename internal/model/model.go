// Package model defines shared data structures.
package model

import (
	"strconv"
	"time"
)

// SubFeed is one independently cursored feed of the remote API.
type SubFeed struct {
	Kind       string // request path segment, e.g. "takeover" or "medal+chat"
	APIVersion string // "v4", "v5" or "unstable"
	Dir        string // subdirectory of the storage root, e.g. "feeds_v4"
	FileKind   string // file name prefix, e.g. "feeds_takeover"
}

// ID identifies the sub-feed across API versions.
func (f SubFeed) ID() string {
	return f.APIVersion + "/" + f.Kind
}

// RequestPath is the API path listing the sub-feed's records.
func (f SubFeed) RequestPath() string {
	return "/" + f.APIVersion + "/feeds/" + f.Kind
}

// DefaultSubFeeds returns the collected sub-feeds in declaration order.
func DefaultSubFeeds() []SubFeed {
	versions := []struct {
		api, dir string
	}{
		{"v4", "feeds_v4"},
		{"v5", "feeds_v5"},
		{"unstable", "feeds_v6"},
	}
	kinds := []struct {
		kind, file string
	}{
		{"takeover", "feeds_takeover"},
		{"medal+chat", "feeds_medal_chat"},
		{"zone", "feeds_zone"},
	}
	var feeds []SubFeed
	for _, v := range versions {
		for _, k := range kinds {
			feeds = append(feeds, SubFeed{
				Kind:       k.kind,
				APIVersion: v.api,
				Dir:        v.dir,
				FileKind:   k.file,
			})
		}
	}
	return feeds
}

// Record is a single feed entry materialized from a batch.
type Record interface {
	// Type is the discriminant the record kind is registered under.
	Type() string
	// Time is the record's timestamp as reported by the API.
	Time() string
	// Identity distinguishes records sharing a timestamp, for duplicate detection.
	Identity() string
}

// Discriminants used by the feeds.
const (
	TypeTakeover = "takeover"
	TypeMedal    = "medal"
	TypeChat     = "chat"
	TypeZone     = "zone"
)

// UserRef is a user as embedded in feed records.
type UserRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ZoneRef is a zone as embedded in feed records.
type ZoneRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Takeover is an ownership change of a zone.
type Takeover struct {
	At            string    `json:"time"`
	Zone          ZoneRef   `json:"zone"`
	CurrentOwner  UserRef   `json:"currentOwner"`
	PreviousOwner *UserRef  `json:"previousOwner,omitempty"`
	Assists       []UserRef `json:"assists,omitempty"`
}

func (t Takeover) Type() string { return TypeTakeover }
func (t Takeover) Time() string { return t.At }
func (t Takeover) Identity() string {
	return TypeTakeover + ":" + t.At + ":" + strconv.Itoa(t.CurrentOwner.ID) + ":" + strconv.Itoa(t.Zone.ID)
}

// Medal is an award handed to a user.
type Medal struct {
	At    string  `json:"time"`
	User  UserRef `json:"user"`
	Medal int     `json:"medal"`
}

func (m Medal) Type() string { return TypeMedal }
func (m Medal) Time() string { return m.At }
func (m Medal) Identity() string {
	return TypeMedal + ":" + m.At + ":" + strconv.Itoa(m.User.ID) + ":" + strconv.Itoa(m.Medal)
}

// Chat is a public chat message.
type Chat struct {
	At      string  `json:"time"`
	Sender  UserRef `json:"sender"`
	Message string  `json:"message"`
}

func (c Chat) Type() string { return TypeChat }
func (c Chat) Time() string { return c.At }
func (c Chat) Identity() string {
	return TypeChat + ":" + c.At + ":" + strconv.Itoa(c.Sender.ID)
}

// Zone is a zone metadata change.
type Zone struct {
	At   string  `json:"time"`
	Zone ZoneRef `json:"zone"`
}

func (z Zone) Type() string { return TypeZone }
func (z Zone) Time() string { return z.At }
func (z Zone) Identity() string {
	return TypeZone + ":" + z.At + ":" + strconv.Itoa(z.Zone.ID)
}

// StoredFile is a downloaded batch persisted on disk.
type StoredFile struct {
	Path         string    `json:"path"`
	FeedID       string    `json:"feed_id"`
	Latest       time.Time `json:"latest"` // latest record timestamp in the batch
	Size         int64     `json:"size"`
	Fallback     bool      `json:"fallback"`                // stored under a fallback name after the primary write failed
	IntendedPath string    `json:"intended_path,omitempty"` // name the batch should have had, set for fallbacks
	StoredAt     time.Time `json:"stored_at"`
}

// DownloadOutcome is the classified result of one sub-feed download in one tick.
type DownloadOutcome string

const (
	OutcomeStored           DownloadOutcome = "stored"
	OutcomeNoData           DownloadOutcome = "no_data"
	OutcomeRateLimited      DownloadOutcome = "rate_limited"
	OutcomeTransportFailure DownloadOutcome = "transport_failure"
	OutcomeMalformed        DownloadOutcome = "malformed"
	OutcomeFallback         DownloadOutcome = "persistence_fallback"
	OutcomeLost             DownloadOutcome = "persistence_failed"
	OutcomeCancelled        DownloadOutcome = "cancelled"
)
