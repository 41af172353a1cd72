package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryan-buckman/turfcollector/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	cfg.StorageDir = t.TempDir()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.Attempts)
	assert.Equal(t, 5*time.Minute, cfg.Period)
	assert.Equal(t, model.DefaultSubFeeds(), cfg.SubFeeds())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage_dir: /srv/turf
tick_offset: 30s
attempts: 4
request_delay: 2s
log_format: json
ledger:
  driver: postgres
  dsn: postgres://localhost/turf
kafka:
  brokers: [k1:9092, k2:9092]
feeds:
  - kind: zone
    api_version: v5
    dir: feeds_v5
    file_kind: feeds_zone
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/turf", cfg.StorageDir)
	assert.Equal(t, 30*time.Second, cfg.TickOffset)
	assert.Equal(t, 4, cfg.Attempts)
	assert.Equal(t, 2*time.Second, cfg.RequestDelay)
	assert.Equal(t, 5*time.Minute, cfg.Period, "unset keys keep defaults")
	assert.Equal(t, "postgres", cfg.Ledger.Driver)
	assert.Equal(t, "postgres://localhost/turf", cfg.LedgerDSN())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Len(t, cfg.SubFeeds(), 1)
	assert.Equal(t, "v5/zone", cfg.SubFeeds()[0].ID())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: /x\n"), 0o644))
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COLLECTOR_ATTEMPTS", "3")
	t.Setenv("COLLECTOR_TICK_OFFSET", "1m")
	t.Setenv("COLLECTOR_KAFKA_BROKERS", "a:1, b:2,")
	t.Setenv("COLLECTOR_LEDGER_DISABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Attempts)
	assert.Equal(t, time.Minute, cfg.TickOffset)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Ledger.Disabled)

	t.Setenv("COLLECTOR_ATTEMPTS", "many")
	_, err = Load("")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing storage dir", func(c *Config) { c.StorageDir = "" }},
		{"nonexistent storage dir", func(c *Config) { c.StorageDir = filepath.Join(dir, "nope") }},
		{"storage is a file", func(c *Config) { c.StorageDir = file }},
		{"negative offset", func(c *Config) { c.TickOffset = -time.Second }},
		{"offset equals period", func(c *Config) { c.TickOffset = c.Period }},
		{"zero attempts", func(c *Config) { c.Attempts = 0 }},
		{"no feeds", func(c *Config) { c.Feeds = nil }},
		{"incomplete feed", func(c *Config) { c.Feeds = []FeedConfig{{Kind: "zone"}} }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.StorageDir = dir
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestPrepareStorage(t *testing.T) {
	cfg := Default()
	cfg.StorageDir = t.TempDir()
	require.NoError(t, cfg.PrepareStorage())
	for _, dir := range []string{"feeds_v4", "feeds_v5", "feeds_v6"} {
		info, err := os.Stat(filepath.Join(cfg.StorageDir, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(cfg.StorageDir, "collector.db"), cfg.LedgerDSN())
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"
	logger := SetupLogger(cfg, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "kind", "zone")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"kind":"zone"`)
}
