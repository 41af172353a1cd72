package coverage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bryan-buckman/turfcollector/internal/feedfile"
	"github.com/bryan-buckman/turfcollector/internal/feedreader"
	"github.com/bryan-buckman/turfcollector/internal/model"
)

// Coverage kinds. Chat and medal records share one sub-feed.
const (
	KindMedalChat = "medal_chat"
	KindTakeover  = "takeover"
	KindZone      = "zone"
)

// ErrUnknownFeedType is returned for a batch whose first record has no known kind.
var ErrUnknownFeedType = errors.New("coverage: unknown feed type")

// FeedKind maps a record discriminant to the coverage kind of its sub-feed.
func FeedKind(discriminant string) (string, error) {
	switch discriminant {
	case model.TypeChat, model.TypeMedal:
		return KindMedalChat, nil
	case model.TypeTakeover:
		return KindTakeover, nil
	case model.TypeZone:
		return KindZone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFeedType, discriminant)
	}
}

// Report is the result of scanning stored batches.
type Report struct {
	Files      int        `json:"files"`
	Skipped    int        `json:"skipped"`
	Intervals  []Interval `json:"intervals"`
	ErrorPaths []string   `json:"error_paths,omitempty"`
}

// Scanner derives coverage intervals from stored batches.
type Scanner struct {
	logger     *slog.Logger
	handler    feedreader.ErrorHandler
	kindPrefix string
}

// NewScanner creates a scanner. handler may be nil, in which case every
// unreadable file is reported as an error path.
func NewScanner(logger *slog.Logger, handler feedreader.ErrorHandler) *Scanner {
	return &Scanner{logger: logger, handler: handler}
}

// WithKindPrefix returns a scanner that prefixes every kind, keeping
// batches of different API versions apart.
func (sc *Scanner) WithKindPrefix(prefix string) *Scanner {
	out := *sc
	out.kindPrefix = prefix
	return &out
}

// Scan reads every batch under paths and merges their time ranges.
// Each file contributes the range from its earliest to its latest record;
// files with a single distinct timestamp cover nothing and are skipped.
func (sc *Scanner) Scan(paths ...string) (Report, error) {
	files, err := feedfile.List(paths...)
	if err != nil {
		return Report{}, err
	}
	var report Report
	var set Set
	for i, path := range files {
		if i%100 == 0 {
			sc.logger.Debug("reading stored batch", slog.String("path", path), slog.Int("count", i))
		}
		report.Files++
		iv, ok, err := sc.observe(path)
		if err != nil {
			sc.logger.Error("unreadable stored batch", slog.String("path", path), slog.String("error", err.Error()))
			report.ErrorPaths = append(report.ErrorPaths, path)
			continue
		}
		if !ok {
			report.Skipped++
			continue
		}
		if err := set.Add(iv); err != nil {
			return Report{}, err
		}
	}
	report.Intervals = set.Intervals()
	return report, nil
}

// ScanStorage scans the directory of every API version of feeds below
// storageDir. Kinds are prefixed with "<api version>/". Directories that do
// not exist yet are skipped.
func (sc *Scanner) ScanStorage(storageDir string, feeds []model.SubFeed) (Report, error) {
	var total Report
	var set Set
	seen := make(map[string]bool)
	for _, f := range feeds {
		key := f.APIVersion + "\x00" + f.Dir
		if seen[key] {
			continue
		}
		seen[key] = true
		dir := filepath.Join(storageDir, f.Dir)
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		report, err := sc.WithKindPrefix(f.APIVersion + "/").Scan(dir)
		if err != nil {
			return Report{}, err
		}
		total.Files += report.Files
		total.Skipped += report.Skipped
		total.ErrorPaths = append(total.ErrorPaths, report.ErrorPaths...)
		for _, iv := range report.Intervals {
			if err := set.Add(iv); err != nil {
				return Report{}, err
			}
		}
	}
	total.Intervals = set.Intervals()
	return total, nil
}

func (sc *Scanner) observe(path string) (Interval, bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Interval{}, false, err
	}
	span, err := feedreader.Bounds(content)
	if err != nil {
		if sc.handler == nil {
			return Interval{}, false, err
		}
		if herr := sc.handler.HandleContent(path, content, err); herr != nil {
			return Interval{}, false, herr
		}
		return Interval{}, false, nil
	}
	if span.Count <= 1 {
		return Interval{}, false, nil
	}
	kind, err := FeedKind(span.Type)
	if err != nil {
		return Interval{}, false, err
	}
	if !span.Start.Before(span.End) {
		return Interval{}, false, nil
	}
	iv, err := NewInterval(sc.kindPrefix+kind, span.Start, span.End)
	if err != nil {
		return Interval{}, false, err
	}
	return iv, true, nil
}
