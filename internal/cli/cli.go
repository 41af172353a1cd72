// Package cli implements the collector command line.
//
//	collector <storage_dir> <tick_offset_seconds> [attempts]
//	collector run <storage_dir> <tick_offset_seconds> [attempts]
//	collector coverage [--storage] <path>...
//	collector verify [--forward] <path>...
//	collector reconcile
//	collector feeds export|import
//	collector users [--id N]... [name]...
//
// All commands read the optional --config YAML file and COLLECTOR_*
// environment variables.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bryan-buckman/turfcollector/internal/collector"
	"github.com/bryan-buckman/turfcollector/internal/config"
	"github.com/bryan-buckman/turfcollector/internal/coverage"
	"github.com/bryan-buckman/turfcollector/internal/database"
	"github.com/bryan-buckman/turfcollector/internal/feedreader"
	"github.com/bryan-buckman/turfcollector/internal/metrics"
	"github.com/bryan-buckman/turfcollector/internal/notify"
	"github.com/bryan-buckman/turfcollector/internal/server"
	"github.com/bryan-buckman/turfcollector/internal/turfapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// Version is reported by --version.
var Version = "dev"

type app struct {
	configFile string
	stdout     io.Writer
	stderr     io.Writer
}

// BuildCLI returns the root command writing to stdout and stderr.
func BuildCLI(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	rootCmd := &cobra.Command{
		Use:   "collector <storage_dir> <tick_offset_seconds> [attempts]",
		Short: "Harvest the Turf activity feeds",
		Long: `collector downloads the Turf activity sub-feeds every five minutes and
stores each batch as a JSON file below the storage directory.

Run without a subcommand it behaves like "collector run".`,
		Version:       Version,
		Args:          cobra.RangeArgs(0, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return a.run(cmd.Context(), args)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file path")

	rootCmd.AddCommand(a.buildRunCommand())
	rootCmd.AddCommand(a.buildCoverageCommand())
	rootCmd.AddCommand(a.buildVerifyCommand())
	rootCmd.AddCommand(a.buildReconcileCommand())
	rootCmd.AddCommand(a.buildFeedsCommand())
	rootCmd.AddCommand(a.buildUsersCommand())
	return rootCmd
}

// Execute runs the command line with args and returns the process exit code.
func Execute(args []string) int {
	cmd := BuildCLI(os.Stdout, os.Stderr)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func (a *app) buildRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <storage_dir> <tick_offset_seconds> [attempts]",
		Short: "Download the sub-feeds on the five minute grid",
		Args:  cobra.RangeArgs(0, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), args)
		},
	}
}

// loadConfig reads the config file and environment.
func (a *app) loadConfig() (*config.Config, error) {
	return config.Load(a.configFile)
}

// applyRunArgs overrides cfg with the positional run arguments.
func applyRunArgs(cfg *config.Config, args []string) error {
	if len(args) > 0 {
		cfg.StorageDir = args[0]
	}
	if len(args) > 1 {
		seconds, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%w: tick offset %q is not a number of seconds", config.ErrInvalid, args[1])
		}
		cfg.TickOffset = time.Duration(seconds) * time.Second
	}
	if len(args) > 2 {
		attempts, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("%w: attempts %q is not a number", config.ErrInvalid, args[2])
		}
		cfg.Attempts = attempts
	}
	return nil
}

func (a *app) run(ctx context.Context, args []string) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunArgs(cfg, args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.PrepareStorage(); err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	logger := config.SetupLogger(cfg, a.stderr)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ledger database.Store
	if !cfg.Ledger.Disabled {
		ledger, err = database.Open(cfg.Ledger.Driver, cfg.LedgerDSN())
		if err != nil {
			logger.Error("download ledger unavailable, continuing without it", slog.String("error", err.Error()))
			ledger = nil
		} else {
			defer ledger.Close()
			logger.Info("download ledger open", slog.String("backend", ledger.DatabaseType()))
		}
	}

	var publisher notify.Publisher = notify.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Timeout)
		if err != nil {
			return fmt.Errorf("%w: kafka: %v", config.ErrInvalid, err)
		}
		defer kp.Close()
		publisher = kp
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	feeds := cfg.SubFeeds()
	tracker := collector.NewTracker()
	downloader := collector.NewDownloader(collector.Options{
		Client:       turfapi.NewClient(cfg.BaseURL, cfg.HTTPTimeout),
		StorageDir:   cfg.StorageDir,
		Tracker:      tracker,
		Policy:       retryPolicy(cfg),
		RequestDelay: cfg.RequestDelay,
		Ledger:       ledger,
		Publisher:    publisher,
		Metrics:      m,
		Logger:       logger,
	})
	scheduler, err := collector.NewScheduler(feeds, downloader, cfg.Period, cfg.TickOffset, logger)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	if cfg.StatusAddr != "" {
		srv := server.New(server.Options{
			Feeds:      feeds,
			Tracker:    tracker,
			Scanner:    coverage.NewScanner(logger, feedreader.NewDefaultErrorHandler(logger)),
			Ledger:     ledger,
			Gatherer:   reg,
			StorageDir: cfg.StorageDir,
			BaseURL:    cfg.BaseURL,
			Logger:     logger,
		})
		go func() {
			if err := srv.Start(cfg.StatusAddr); err != nil {
				logger.Error("status server failed", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("collector starting",
		slog.String("storage_dir", cfg.StorageDir),
		slog.Duration("period", cfg.Period),
		slog.Duration("tick_offset", cfg.TickOffset),
		slog.Int("attempts", cfg.Attempts),
		slog.Int("feeds", len(feeds)),
	)
	scheduler.Start(ctx)
	<-ctx.Done()
	scheduler.Stop()
	logger.Info("collector stopped")
	return nil
}

// retryPolicy is the collector's default policy with the configured
// attempts and delay applied.
func retryPolicy(cfg *config.Config) collector.Policy {
	p := collector.DefaultPolicy()
	if cfg.Attempts > 0 {
		p.MaxAttempts = cfg.Attempts
	}
	if cfg.RequestDelay > 0 {
		p.Backoff = cfg.RequestDelay
	}
	return p
}

// openLedger opens the configured ledger for maintenance commands.
func openLedger(cfg *config.Config) (database.Store, error) {
	if cfg.Ledger.Disabled {
		return nil, fmt.Errorf("%w: the download ledger is disabled", config.ErrInvalid)
	}
	if cfg.StorageDir == "" && cfg.Ledger.DSN == "" {
		return nil, fmt.Errorf("%w: set storage_dir or ledger.dsn", config.ErrInvalid)
	}
	return database.Open(cfg.Ledger.Driver, cfg.LedgerDSN())
}

// logger returns the diagnostic logger of report commands. Reports go to stdout.
func (a *app) logger(cfg *config.Config) *slog.Logger {
	return config.SetupLogger(cfg, a.stderr)
}
