package feedfile

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/bryan-buckman/turfcollector/internal/model"
)

// ReconcileReport counts what Reconcile did.
type ReconcileReport struct {
	Renamed         int
	Failed          int
	FallbackMissing int
	BothMissing     int
	Moved           []model.StoredFile // fallbacks now at their intended path
}

// Reconcile moves fallback files to the names they were meant to have.
// A file is only moved when the intended name is free; nothing is overwritten.
func Reconcile(pending []model.StoredFile, logger *slog.Logger) ReconcileReport {
	var report ReconcileReport
	for _, f := range pending {
		if !f.Fallback || f.IntendedPath == "" {
			continue
		}
		if _, err := os.Stat(f.Path); errors.Is(err, fs.ErrNotExist) {
			report.FallbackMissing++
			if _, err := os.Stat(f.IntendedPath); errors.Is(err, fs.ErrNotExist) {
				report.BothMissing++
			}
			continue
		}
		if err := move(f.Path, f.IntendedPath); err != nil {
			logger.Error("failed to move fallback",
				slog.String("from", f.Path),
				slog.String("to", f.IntendedPath),
				slog.String("error", err.Error()),
			)
			report.Failed++
			continue
		}
		logger.Info("moved fallback",
			slog.String("from", f.Path),
			slog.String("to", f.IntendedPath),
		)
		report.Renamed++
		report.Moved = append(report.Moved, f)
	}
	return report
}

func move(from, to string) error {
	if err := os.Link(from, to); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return err
		}
		content, rerr := os.ReadFile(from)
		if rerr != nil {
			return errors.Join(err, rerr)
		}
		if werr := writeExclusive(to, content); werr != nil {
			return werr
		}
	}
	return os.Remove(from)
}
