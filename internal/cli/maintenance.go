package cli

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bryan-buckman/turfcollector/internal/config"
	"github.com/bryan-buckman/turfcollector/internal/feedfile"
	"github.com/bryan-buckman/turfcollector/internal/opml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (a *app) buildReconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [storage_dir]",
		Short: "Move fallback files to the names they were meant to have",
		Long: `reconcile looks up every fallback file recorded in the download ledger
and moves it to its intended name, unless a file already exists there.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.StorageDir = args[0]
			}
			logger := a.logger(cfg)
			ledger, err := openLedger(cfg)
			if err != nil {
				return err
			}
			defer ledger.Close()

			pending, err := ledger.PendingFallbacks()
			if err != nil {
				return fmt.Errorf("list fallbacks: %w", err)
			}
			report := feedfile.Reconcile(pending, logger)
			for _, f := range report.Moved {
				if err := ledger.MarkReconciled(f.Path); err != nil {
					logger.Error("ledger update failed", slog.String("path", f.Path), slog.String("error", err.Error()))
				}
			}
			fmt.Fprintf(a.stdout, "pending: %d, renamed: %d, failed: %d, fallback missing: %d, both missing: %d\n",
				len(pending), report.Renamed, report.Failed, report.FallbackMissing, report.BothMissing)
			return nil
		},
	}
}

func (a *app) buildFeedsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Export or import the sub-feed catalog as OPML",
	}

	var output string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the configured sub-feeds as OPML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			data, err := opml.Export("Turf sub-feeds", cfg.BaseURL, cfg.SubFeeds(), time.Now())
			if err != nil {
				return err
			}
			if output == "" {
				_, err = a.stdout.Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	exportCmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")

	importCmd := &cobra.Command{
		Use:   "import <file.opml>",
		Short: "Print the feeds section of a config file for an OPML catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			feeds, err := opml.Parse(f)
			if err != nil {
				return err
			}
			section := struct {
				Feeds []config.FeedConfig `yaml:"feeds"`
			}{}
			for _, feed := range feeds {
				section.Feeds = append(section.Feeds, config.FeedConfig{
					Kind:       feed.Kind,
					APIVersion: feed.APIVersion,
					Dir:        feed.Dir,
					FileKind:   feed.FileKind,
				})
			}
			var buf bytes.Buffer
			enc := yaml.NewEncoder(&buf)
			enc.SetIndent(2)
			if err := enc.Encode(section); err != nil {
				return err
			}
			if err := enc.Close(); err != nil {
				return err
			}
			_, err = a.stdout.Write(buf.Bytes())
			return err
		},
	}

	cmd.AddCommand(exportCmd, importCmd)
	return cmd
}
