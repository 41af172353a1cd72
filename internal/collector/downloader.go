// Package collector downloads the sub-feeds on a fixed time grid.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"path/filepath"
	"time"

	"github.com/bryan-buckman/turfcollector/internal/database"
	"github.com/bryan-buckman/turfcollector/internal/feedfile"
	"github.com/bryan-buckman/turfcollector/internal/feedreader"
	"github.com/bryan-buckman/turfcollector/internal/metrics"
	"github.com/bryan-buckman/turfcollector/internal/model"
	"github.com/bryan-buckman/turfcollector/internal/notify"
	"github.com/bryan-buckman/turfcollector/internal/turfapi"
)

// AfterDateParam is the query parameter carrying the watermark.
const AfterDateParam = "afterDate"

// DefaultRequestDelay is the minimum spacing between two API requests.
const DefaultRequestDelay = 5 * time.Second

// contentPrefixLen bounds how much of a bad body ends up in logs.
const contentPrefixLen = 40

// Options configures a Downloader. Ledger, Publisher and Metrics are optional.
type Options struct {
	Client       *turfapi.Client
	Files        *feedfile.Store
	StorageDir   string
	Tracker      *Tracker
	Policy       Policy
	RequestDelay time.Duration
	Clock        Clock
	Ledger       database.Store
	Publisher    notify.Publisher
	Metrics      *metrics.Collector
	Logger       *slog.Logger
}

// Downloader fetches one sub-feed at a time and stores what it gets.
type Downloader struct {
	client     *turfapi.Client
	files      *feedfile.Store
	storageDir string
	tracker    *Tracker
	policy     Policy
	spacer     *requestSpacer
	clock      Clock
	ledger     database.Store
	publisher  notify.Publisher
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// NewDownloader creates a downloader from opts, filling in defaults.
func NewDownloader(opts Options) *Downloader {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Tracker == nil {
		opts.Tracker = NewTracker()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Files == nil {
		opts.Files = feedfile.NewStore(opts.Logger, opts.Clock.Now)
	}
	if opts.Publisher == nil {
		opts.Publisher = notify.Nop{}
	}
	if opts.Policy.MaxAttempts < 1 {
		opts.Policy.MaxAttempts = 1
	}
	return &Downloader{
		client:     opts.Client,
		files:      opts.Files,
		storageDir: opts.StorageDir,
		tracker:    opts.Tracker,
		policy:     opts.Policy,
		spacer:     newRequestSpacer(opts.Clock, opts.RequestDelay),
		clock:      opts.Clock,
		ledger:     opts.Ledger,
		publisher:  opts.Publisher,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
}

// Tracker returns the watermarks the downloader advances.
func (d *Downloader) Tracker() *Tracker {
	return d.tracker
}

// Result is the outcome of downloading one sub-feed in one tick.
type Result struct {
	Feed      model.SubFeed
	Outcome   model.DownloadOutcome
	Attempts  int
	File      *model.StoredFile
	Watermark time.Time // zero if the sub-feed has none
	Err       error
}

type fetched struct {
	outcome turfapi.Outcome
	latest  time.Time
	empty   bool
}

// Download requests the records of feed newer than its watermark and
// stores them. It writes at most one batch file and only advances the
// watermark after that file is in place under its own name.
func (d *Downloader) Download(ctx context.Context, feed model.SubFeed) Result {
	logger := d.logger.With(
		slog.String("kind", feed.Kind),
		slog.String("api_version", feed.APIVersion),
	)
	query := url.Values{}
	if wm, ok := d.tracker.Get(feed.ID()); ok {
		query.Set(AfterDateParam, model.FormatAPITime(wm))
	}

	got, attempts, err := Retry(ctx, d.policy, d.clock, func(ctx context.Context, attempt int) (fetched, turfapi.Class) {
		f := d.fetch(ctx, feed, query, logger.With(slog.Int("attempt", attempt)))
		return f, f.outcome.Class
	})
	res := Result{Feed: feed, Attempts: attempts}
	if err != nil {
		logger.Warn("download cancelled", slog.String("error", err.Error()))
		res.Outcome = model.OutcomeCancelled
		res.Err = err
		return d.finish(res)
	}

	out := got.outcome
	switch out.Class {
	case turfapi.ClassOK:
		if got.empty {
			logger.Info("no data")
			res.Outcome = model.OutcomeNoData
			return d.finish(res)
		}
		return d.finish(d.store(ctx, feed, []byte(out.Body), got.latest, res, logger))
	case turfapi.ClassRateLimited:
		logger.Error("still rate limited, giving up for this tick", slog.Int("attempts", attempts))
		res.Outcome = model.OutcomeRateLimited
	case turfapi.ClassTransportFailure:
		logger.Error("transport failure, giving up for this tick",
			slog.Int("attempts", attempts),
			slog.String("error", errString(out.Err)),
		)
		res.Outcome = model.OutcomeTransportFailure
		res.Err = out.Err
	default:
		logger.Error("malformed response, giving up for this tick",
			slog.Int("attempts", attempts),
			slog.String("diagnostic", out.Diagnostic),
		)
		res.Outcome = model.OutcomeMalformed
		if turfapi.LooksLikeHTML(out.Body) {
			d.captureDiagnostic(feed, out.Body, logger)
		}
	}
	return d.finish(res)
}

func (d *Downloader) fetch(ctx context.Context, feed model.SubFeed, query url.Values, logger *slog.Logger) fetched {
	if err := d.spacer.acquire(ctx); err != nil {
		return fetched{outcome: turfapi.Outcome{Class: turfapi.ClassTransportFailure, Err: err}}
	}
	resp, err := d.client.Get(ctx, feed.RequestPath(), query)
	d.spacer.release()

	f := fetched{outcome: turfapi.Classify(resp, err)}
	out := &f.outcome
	switch out.Class {
	case turfapi.ClassOK:
		if out.Anomalous() {
			logger.Warn("unexpected status for JSON response", slog.Int("status", out.StatusCode))
		}
		body := []byte(out.Body)
		if feedreader.IsEmpty(body) {
			f.empty = true
			break
		}
		latest, err := feedreader.LatestTime(body)
		if err != nil {
			out.Class = turfapi.ClassMalformed
			out.Diagnostic = err.Error()
			logger.Error("unparseable batch",
				slog.String("error", err.Error()),
				slog.String("content_prefix", turfapi.Prefix(out.Body, contentPrefixLen)),
			)
			break
		}
		f.latest = latest
	case turfapi.ClassRateLimited:
		logger.Error("rate limited", slog.Int("status", out.StatusCode))
	case turfapi.ClassTransportFailure:
		logger.Error("request failed", slog.String("error", errString(out.Err)))
	default:
		logger.Error("malformed response",
			slog.Int("status", out.StatusCode),
			slog.String("diagnostic", out.Diagnostic),
			slog.String("content_prefix", turfapi.Prefix(out.Body, contentPrefixLen)),
		)
	}
	if d.metrics != nil {
		d.metrics.RecordAttempt(feed.ID(), out.Class.String())
	}
	return f
}

func (d *Downloader) store(ctx context.Context, feed model.SubFeed, body []byte, latest time.Time, res Result, logger *slog.Logger) Result {
	dir := filepath.Join(d.storageDir, feed.Dir)
	stored, err := d.files.Write(dir, feed.FileKind, latest, body)
	stored.FeedID = feed.ID()

	var perr *feedfile.PersistenceError
	switch {
	case err == nil:
		wm := NextWatermark(latest)
		d.tracker.Set(feed.ID(), wm)
		logger.Info("downloaded",
			slog.String("path", stored.Path),
			slog.Int64("size", stored.Size),
			slog.String("latest", latest.Format(time.RFC3339)),
			slog.String("watermark", wm.Format(time.RFC3339)),
		)
		res.Outcome = model.OutcomeStored
	case errors.As(err, &perr) && perr.Fallback != "":
		logger.Error("batch kept in fallback file, watermark unchanged",
			slog.String("path", stored.Path),
			slog.String("intended_path", stored.IntendedPath),
			slog.String("error", perr.Err.Error()),
		)
		res.Outcome = model.OutcomeFallback
		res.Err = err
	default:
		logger.Error("batch lost",
			slog.String("error", err.Error()),
			slog.String("content_prefix", turfapi.Prefix(string(body), contentPrefixLen)),
		)
		res.Outcome = model.OutcomeLost
		res.Err = err
		return res
	}

	res.File = &stored
	if d.ledger != nil {
		if err := d.ledger.RecordDownload(stored); err != nil {
			logger.Error("ledger write failed", slog.String("path", stored.Path), slog.String("error", err.Error()))
		}
	}
	if err := d.publisher.Publish(ctx, feed, stored); err != nil {
		logger.Error("publish failed", slog.String("path", stored.Path), slog.String("error", err.Error()))
	}
	if d.metrics != nil {
		d.metrics.AddBytes(feed.ID(), stored.Size)
	}
	return res
}

func (d *Downloader) captureDiagnostic(feed model.SubFeed, body string, logger *slog.Logger) {
	dir := filepath.Join(d.storageDir, feed.Dir)
	stored, err := d.files.WriteDiagnostic(dir, feed.FileKind, []byte(body))
	if err != nil {
		logger.Error("could not capture HTML response", slog.String("error", err.Error()))
		return
	}
	logger.Info("captured HTML response", slog.String("path", stored.Path))
}

func (d *Downloader) finish(res Result) Result {
	if wm, ok := d.tracker.Get(res.Feed.ID()); ok {
		res.Watermark = wm
		if d.metrics != nil {
			d.metrics.SetWatermark(res.Feed.ID(), wm)
		}
	}
	if d.metrics != nil {
		d.metrics.RecordOutcome(res.Feed.ID(), res.Outcome)
	}
	return res
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
