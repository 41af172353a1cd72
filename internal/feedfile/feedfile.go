// Package feedfile names and writes downloaded batches.
//
// Files are never overwritten. A batch is named after its sub-feed and the
// timestamp of its latest record. When that name is taken, the current time
// is appended; when that is taken too, a random suffix is used. Every name
// is claimed with an exclusive create so concurrent writers sharing a
// directory cannot clobber each other. If the batch cannot be written under
// any of these names it is written to a fallback file instead, so that a
// successful download is never dropped.
package feedfile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bryan-buckman/turfcollector/internal/model"
	"github.com/google/uuid"
)

// TimeLayout formats timestamps in file names.
const TimeLayout = "2006-01-02_15-04-05"

const (
	// Ext is the extension of stored batches.
	Ext = ".json"
	// DiagnosticExt is the extension of captured non-JSON responses.
	DiagnosticExt = ".html"
	// FallbackPattern names files written when the primary write fails.
	FallbackPattern = "feed_download*.content"
)

// PersistenceError reports a batch that could not be stored under its name.
// Fallback is the file the content went to instead, empty if that failed too.
type PersistenceError struct {
	Intended string
	Fallback string
	Err      error
}

func (e *PersistenceError) Error() string {
	if e.Fallback != "" {
		return fmt.Sprintf("store %s: %v (content kept in %s)", e.Intended, e.Err, e.Fallback)
	}
	return fmt.Sprintf("store %s: %v (content lost)", e.Intended, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Name is the primary file name of a batch.
func Name(fileKind string, ts time.Time, ext string) string {
	return fileKind + "_" + ts.UTC().Format(TimeLayout) + ext
}

// CollisionName is the name used when the primary name is taken.
func CollisionName(fileKind string, ts, now time.Time, ext string) string {
	return fileKind + "_" + ts.UTC().Format(TimeLayout) + "." + now.UTC().Format(TimeLayout) + ext
}

func disambiguatedName(fileKind string, ts time.Time, ext string) string {
	return fileKind + "_" + ts.UTC().Format(TimeLayout) + "." + uuid.New().String()[:8] + ext
}

// Store writes batches to disk.
type Store struct {
	now    func() time.Time
	logger *slog.Logger
}

// NewStore creates a Store. now supplies the collision timestamp; nil means time.Now.
func NewStore(logger *slog.Logger, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{now: now, logger: logger}
}

// Write stores content in dir under a name derived from fileKind and latest.
//
// On a *PersistenceError with a non-empty Fallback the returned StoredFile
// describes the fallback file and is still valid.
func (s *Store) Write(dir, fileKind string, latest time.Time, content []byte) (model.StoredFile, error) {
	return s.write(dir, fileKind, latest, Ext, content)
}

// WriteDiagnostic captures a response that was not a valid batch, named
// after the time it was received.
func (s *Store) WriteDiagnostic(dir, fileKind string, content []byte) (model.StoredFile, error) {
	return s.write(dir, fileKind, s.now(), DiagnosticExt, content)
}

func (s *Store) write(dir, fileKind string, ts time.Time, ext string, content []byte) (model.StoredFile, error) {
	intended := filepath.Join(dir, Name(fileKind, ts, ext))
	candidates := []string{
		intended,
		filepath.Join(dir, CollisionName(fileKind, ts, s.now(), ext)),
		filepath.Join(dir, disambiguatedName(fileKind, ts, ext)),
	}

	tmpPath, err := writeTemp(dir, content)
	if err != nil {
		return s.fallback(dir, intended, ts, content, err)
	}
	defer os.Remove(tmpPath)

	for _, candidate := range candidates {
		err := claim(tmpPath, candidate, content)
		if err == nil {
			return model.StoredFile{
				Path:     candidate,
				Latest:   ts,
				Size:     int64(len(content)),
				StoredAt: s.now(),
			}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return s.fallback(dir, intended, ts, content, err)
		}
	}
	return s.fallback(dir, intended, ts, content, fmt.Errorf("all candidate names exist"))
}

// claim makes the fully written temp file visible under name, failing with
// fs.ErrExist when name is taken.
func claim(tmpPath, name string, content []byte) error {
	err := os.Link(tmpPath, name)
	if err == nil || errors.Is(err, fs.ErrExist) {
		return err
	}
	// Filesystems without hard links still offer exclusive creation.
	return writeExclusive(name, content)
}

func writeTemp(dir string, content []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".download-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return f.Name(), nil
}

func writeExclusive(name string, content []byte) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(name)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close %s: %w", name, err)
	}
	return nil
}

func (s *Store) fallback(dir, intended string, ts time.Time, content []byte, cause error) (model.StoredFile, error) {
	s.logger.Error("unable to store batch",
		slog.String("path", intended),
		slog.String("error", cause.Error()),
	)
	f, err := os.CreateTemp(dir, FallbackPattern)
	if err != nil {
		f, err = os.CreateTemp("", FallbackPattern)
	}
	if err != nil {
		return model.StoredFile{}, &PersistenceError{Intended: intended, Err: errors.Join(cause, err)}
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return model.StoredFile{}, &PersistenceError{Intended: intended, Err: errors.Join(cause, err)}
	}
	if err := f.Close(); err != nil {
		return model.StoredFile{}, &PersistenceError{Intended: intended, Err: errors.Join(cause, err)}
	}
	s.logger.Info("stored fallback",
		slog.String("path", f.Name()),
		slog.String("intended_path", intended),
	)
	return model.StoredFile{
			Path:         f.Name(),
			Latest:       ts,
			Size:         int64(len(content)),
			Fallback:     true,
			IntendedPath: intended,
			StoredAt:     s.now(),
		}, &PersistenceError{
			Intended: intended,
			Fallback: f.Name(),
			Err:      cause,
		}
}
