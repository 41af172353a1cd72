// Package config loads collector settings from a YAML file and COLLECTOR_*
// environment variables and sets up logging.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bryan-buckman/turfcollector/internal/model"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration errors.
var ErrInvalid = errors.New("invalid configuration")

// FeedConfig declares one sub-feed.
type FeedConfig struct {
	Kind       string `yaml:"kind"`
	APIVersion string `yaml:"api_version"`
	Dir        string `yaml:"dir"`
	FileKind   string `yaml:"file_kind"`
}

// LedgerConfig selects the download ledger backend.
type LedgerConfig struct {
	Driver string `yaml:"driver"`
	// DSN defaults to collector.db inside the storage directory.
	DSN      string `yaml:"dsn"`
	Disabled bool   `yaml:"disabled"`
}

// KafkaConfig enables stored-batch events when Brokers is set.
type KafkaConfig struct {
	Brokers []string      `yaml:"brokers"`
	Topic   string        `yaml:"topic"`
	Timeout time.Duration `yaml:"timeout"`
}

// Config holds all collector settings.
type Config struct {
	StorageDir   string        `yaml:"storage_dir"`
	TickOffset   time.Duration `yaml:"tick_offset"`
	Attempts     int           `yaml:"attempts"`
	Period       time.Duration `yaml:"period"`
	RequestDelay time.Duration `yaml:"request_delay"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	BaseURL      string        `yaml:"base_url"`
	LogLevel     string        `yaml:"log_level"`
	LogFormat    string        `yaml:"log_format"`
	StatusAddr   string        `yaml:"status_addr"`
	Ledger       LedgerConfig  `yaml:"ledger"`
	Kafka        KafkaConfig   `yaml:"kafka"`
	Feeds        []FeedConfig  `yaml:"feeds"`
}

// Default returns the built-in settings.
func Default() *Config {
	var feeds []FeedConfig
	for _, f := range model.DefaultSubFeeds() {
		feeds = append(feeds, FeedConfig{Kind: f.Kind, APIVersion: f.APIVersion, Dir: f.Dir, FileKind: f.FileKind})
	}
	return &Config{
		Attempts:     2,
		Period:       5 * time.Minute,
		RequestDelay: 5 * time.Second,
		HTTPTimeout:  60 * time.Second,
		BaseURL:      "https://api.turfgame.com",
		LogLevel:     "info",
		LogFormat:    "text",
		Ledger:       LedgerConfig{Driver: "sqlite"},
		Kafka:        KafkaConfig{Topic: "turf.feeds.stored", Timeout: 10 * time.Second},
		Feeds:        feeds,
	}
}

// Load reads path, if non-empty, over the defaults and applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: parse yaml: %v", ErrInvalid, err)
	}
	return nil
}

// ApplyEnv overrides cfg with COLLECTOR_* variables.
func ApplyEnv(cfg *Config) error {
	var err error
	cfg.StorageDir = getEnvDefault("COLLECTOR_STORAGE_DIR", cfg.StorageDir)
	cfg.BaseURL = getEnvDefault("COLLECTOR_BASE_URL", cfg.BaseURL)
	cfg.LogLevel = getEnvDefault("COLLECTOR_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvDefault("COLLECTOR_LOG_FORMAT", cfg.LogFormat)
	cfg.StatusAddr = getEnvDefault("COLLECTOR_STATUS_ADDR", cfg.StatusAddr)
	cfg.Ledger.Driver = getEnvDefault("COLLECTOR_LEDGER_DRIVER", cfg.Ledger.Driver)
	cfg.Ledger.DSN = getEnvDefault("COLLECTOR_LEDGER_DSN", cfg.Ledger.DSN)
	cfg.Kafka.Topic = getEnvDefault("COLLECTOR_KAFKA_TOPIC", cfg.Kafka.Topic)
	if brokers := os.Getenv("COLLECTOR_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	if cfg.Attempts, err = getEnvInt("COLLECTOR_ATTEMPTS", cfg.Attempts); err != nil {
		return fmt.Errorf("%w: COLLECTOR_ATTEMPTS: %v", ErrInvalid, err)
	}
	if cfg.TickOffset, err = getEnvDuration("COLLECTOR_TICK_OFFSET", cfg.TickOffset); err != nil {
		return fmt.Errorf("%w: COLLECTOR_TICK_OFFSET: %v", ErrInvalid, err)
	}
	if cfg.Period, err = getEnvDuration("COLLECTOR_PERIOD", cfg.Period); err != nil {
		return fmt.Errorf("%w: COLLECTOR_PERIOD: %v", ErrInvalid, err)
	}
	if cfg.RequestDelay, err = getEnvDuration("COLLECTOR_REQUEST_DELAY", cfg.RequestDelay); err != nil {
		return fmt.Errorf("%w: COLLECTOR_REQUEST_DELAY: %v", ErrInvalid, err)
	}
	if cfg.HTTPTimeout, err = getEnvDuration("COLLECTOR_HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return fmt.Errorf("%w: COLLECTOR_HTTP_TIMEOUT: %v", ErrInvalid, err)
	}
	if cfg.Ledger.Disabled, err = getEnvBool("COLLECTOR_LEDGER_DISABLED", cfg.Ledger.Disabled); err != nil {
		return fmt.Errorf("%w: COLLECTOR_LEDGER_DISABLED: %v", ErrInvalid, err)
	}
	return nil
}

// Validate checks the settings a run depends on.
func (c *Config) Validate() error {
	if c.StorageDir == "" {
		return fmt.Errorf("%w: storage directory is required", ErrInvalid)
	}
	info, err := os.Stat(c.StorageDir)
	if err != nil {
		return fmt.Errorf("%w: storage directory: %v", ErrInvalid, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalid, c.StorageDir)
	}
	if c.Period <= 0 {
		return fmt.Errorf("%w: period must be positive", ErrInvalid)
	}
	if c.TickOffset < 0 || c.TickOffset >= c.Period {
		return fmt.Errorf("%w: tick offset %s must satisfy 0 <= offset < %s", ErrInvalid, c.TickOffset, c.Period)
	}
	if c.Attempts < 1 {
		return fmt.Errorf("%w: attempts must be at least 1, got %d", ErrInvalid, c.Attempts)
	}
	if c.RequestDelay < 0 {
		return fmt.Errorf("%w: request delay must not be negative", ErrInvalid)
	}
	if len(c.Feeds) == 0 {
		return fmt.Errorf("%w: no feeds configured", ErrInvalid)
	}
	for i, f := range c.Feeds {
		if f.Kind == "" || f.APIVersion == "" || f.Dir == "" || f.FileKind == "" {
			return fmt.Errorf("%w: feed %d: kind, api_version, dir and file_kind are required", ErrInvalid, i)
		}
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// SubFeeds returns the configured sub-feeds in declaration order.
func (c *Config) SubFeeds() []model.SubFeed {
	feeds := make([]model.SubFeed, 0, len(c.Feeds))
	for _, f := range c.Feeds {
		feeds = append(feeds, model.SubFeed{Kind: f.Kind, APIVersion: f.APIVersion, Dir: f.Dir, FileKind: f.FileKind})
	}
	return feeds
}

// PrepareStorage creates the per-version directories below StorageDir.
func (c *Config) PrepareStorage() error {
	seen := make(map[string]bool)
	for _, f := range c.Feeds {
		if seen[f.Dir] {
			continue
		}
		seen[f.Dir] = true
		dir := filepath.Join(c.StorageDir, f.Dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// LedgerDSN returns the ledger connection string, defaulting to a SQLite
// file in the storage directory.
func (c *Config) LedgerDSN() string {
	if c.Ledger.DSN != "" {
		return c.Ledger.DSN
	}
	return filepath.Join(c.StorageDir, "collector.db")
}

// SetupLogger configures the global slog logger from cfg and writes to w.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	level, _ := ParseLogLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLogLevel converts a level name to a slog.Level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q, valid: debug, info, warn, error", level)
	}
}

// getEnvDefault returns the variable or defaultVal when unset.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", val)
	}
	return n, nil
}

// getEnvDuration accepts Go durations such as 30s, 5m or 1h.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q (use Go form: 30s, 1h, 15m)", val)
	}
	return d, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid boolean %q", val)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
