package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/bryan-buckman/turfcollector/internal/coverage"
	"github.com/bryan-buckman/turfcollector/internal/feedfile"
	"github.com/bryan-buckman/turfcollector/internal/feedreader"
	"github.com/bryan-buckman/turfcollector/internal/model"
	"github.com/spf13/cobra"
)

// ErrVerifyFailed is returned when verify finds unreadable batches.
var ErrVerifyFailed = errors.New("verification failed")

func (a *app) buildCoverageCommand() *cobra.Command {
	var storage bool
	cmd := &cobra.Command{
		Use:   "coverage [path]...",
		Short: "Print the time ranges covered by stored batches",
		Long: `coverage reads every stored batch below the given paths, takes the first
and last record time of each and merges them into contiguous ranges per
kind. With --storage it scans each API version directory of the configured
storage separately.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			logger := a.logger(cfg)
			sc := coverage.NewScanner(logger, feedreader.NewDefaultErrorHandler(logger))

			var report coverage.Report
			switch {
			case storage:
				if len(args) > 0 {
					cfg.StorageDir = args[0]
				}
				if cfg.StorageDir == "" {
					return fmt.Errorf("coverage --storage needs a storage directory")
				}
				report, err = sc.ScanStorage(cfg.StorageDir, cfg.SubFeeds())
			case len(args) == 0:
				return fmt.Errorf("coverage needs at least one path")
			default:
				report, err = sc.Scan(args...)
			}
			if err != nil {
				return err
			}
			a.printCoverage(report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&storage, "storage", false, "scan the configured storage directory per API version")
	return cmd
}

func (a *app) printCoverage(report coverage.Report) {
	kind := ""
	for _, iv := range report.Intervals {
		if iv.Kind != kind {
			kind = iv.Kind
			fmt.Fprintf(a.stdout, "%s:\n", kind)
		}
		fmt.Fprintf(a.stdout, "  %s - %s\n", iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
	}
	if gaps := coverage.Gaps(report.Intervals); len(gaps) > 0 {
		fmt.Fprintln(a.stdout, "gaps:")
		for _, g := range gaps {
			fmt.Fprintf(a.stdout, "  %s: %s - %s (%s)\n", g.Kind,
				g.Start.Format(time.RFC3339), g.End.Format(time.RFC3339), g.End.Sub(g.Start))
		}
	}
	fmt.Fprintf(a.stdout, "files: %d, skipped: %d\n", report.Files, report.Skipped)
	if len(report.ErrorPaths) > 0 {
		fmt.Fprintln(a.stdout, "files with errors:")
		for _, p := range report.ErrorPaths {
			fmt.Fprintf(a.stdout, "  %s\n", p)
		}
	}
}

// VerifyReport summarizes a verify run.
type VerifyReport struct {
	Files      int
	Records    int
	Duplicates int
	Errors     map[string]error
}

func (a *app) buildVerifyCommand() *cobra.Command {
	var forward bool
	cmd := &cobra.Command{
		Use:   "verify <path>...",
		Short: "Check stored batches for order, field and type errors",
		Long: `verify reads every stored batch, checks that record times are ordered the
way the API returns them (newest first, or oldest first with --forward),
that every record has a time and a type, and that no record disagrees with
its type. Records seen in more than one batch are counted as duplicates.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			mode := feedreader.Reversed
			if forward {
				mode = feedreader.Forward
			}
			report, err := verify(args, mode, feedreader.NewDefaultErrorHandler(a.logger(cfg)))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "files: %d, records: %d, duplicates: %d, errors: %d\n",
				report.Files, report.Records, report.Duplicates, len(report.Errors))
			paths, _ := feedfile.List(args...)
			for _, p := range paths {
				if err, ok := report.Errors[p]; ok {
					fmt.Fprintf(a.stdout, "  %s: %v\n", p, err)
				}
			}
			if len(report.Errors) > 0 {
				return fmt.Errorf("%w: %d of %d files", ErrVerifyFailed, len(report.Errors), report.Files)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&forward, "forward", false, "expect oldest record first")
	return cmd
}

func verify(paths []string, mode feedreader.Mode, handler feedreader.ErrorHandler) (VerifyReport, error) {
	files, err := feedfile.List(paths...)
	if err != nil {
		return VerifyReport{}, err
	}
	report := VerifyReport{Errors: make(map[string]error)}
	reader := feedreader.New(feedreader.DefaultRegistry(), mode)
	seen := make(map[string]bool)
	for _, path := range files {
		report.Files++
		err := reader.ReadFile(path, handler, func(r model.Record) error {
			report.Records++
			id := r.Identity()
			if seen[id] {
				report.Duplicates++
			}
			seen[id] = true
			return nil
		})
		if err != nil {
			report.Errors[path] = err
		}
	}
	return report, nil
}
