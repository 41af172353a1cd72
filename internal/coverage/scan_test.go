package coverage

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/bryan-buckman/turfcollector/internal/feedreader"
	"github.com/bryan-buckman/turfcollector/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBatch(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	writeBatch(t, dir, "feeds_takeover_1.json", `[
		{"time":"2024-01-01T00:00:20+0000","type":"takeover"},
		{"time":"2024-01-01T00:00:10+0000","type":"takeover"}]`)
	writeBatch(t, dir, "feeds_takeover_2.json", `[
		{"time":"2024-01-01T00:00:25+0000","type":"takeover"},
		{"time":"2024-01-01T00:00:15+0000","type":"takeover"}]`)
	writeBatch(t, dir, "feeds_medal_chat_1.json", `[
		{"time":"2024-01-01T00:00:40+0000","type":"medal"},
		{"time":"2024-01-01T00:00:30+0000","type":"chat"}]`)
	writeBatch(t, dir, "feeds_zone_1.json", `[{"time":"2024-01-01T00:00:40+0000","type":"zone"}]`)
	writeBatch(t, dir, "feeds_zone_2.json", `[
		{"time":"2024-01-01T00:00:40+0000","type":"zone"},
		{"time":"2024-01-01T00:00:40+0000","type":"zone"}]`)
	writeBatch(t, dir, "feeds_zone_3.json", `{"errorMessage":"Only one request per second allowed","errorCode":1}`)
	bad := writeBatch(t, dir, "feeds_visit_1.json", `[
		{"time":"2024-01-01T00:00:40+0000","type":"visit"},
		{"time":"2024-01-01T00:00:30+0000","type":"visit"}]`)
	broken := writeBatch(t, dir, "feeds_zone_4.json", `<html>502</html>`)

	sc := NewScanner(logger, feedreader.NewDefaultErrorHandler(logger))
	report, err := sc.Scan(dir)
	require.NoError(t, err)

	assert.Equal(t, 8, report.Files)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, []Interval{iv(KindMedalChat, 30, 40), iv(KindTakeover, 10, 25)}, report.Intervals)
	assert.ElementsMatch(t, []string{bad, broken}, report.ErrorPaths)
}

func TestScanWithKindPrefix(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	writeBatch(t, dir, "feeds_zone_1.json", `[
		{"time":"2024-01-01T00:00:01+0000","type":"zone"},
		{"time":"2024-01-01T00:00:02+0000","type":"zone"}]`)

	report, err := NewScanner(logger, nil).WithKindPrefix("v4/").Scan(dir)
	require.NoError(t, err)
	require.Len(t, report.Intervals, 1)
	assert.Equal(t, "v4/zone", report.Intervals[0].Kind)
}

func TestFeedKind(t *testing.T) {
	k, err := FeedKind("chat")
	require.NoError(t, err)
	assert.Equal(t, KindMedalChat, k)

	_, err = FeedKind("visit")
	assert.ErrorIs(t, err, ErrUnknownFeedType)
}

func TestScanStorage(t *testing.T) {
	storage := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, os.Mkdir(filepath.Join(storage, "feeds_v4"), 0o755))
	writeBatch(t, filepath.Join(storage, "feeds_v4"), "feeds_zone_1.json", `[
		{"time":"2024-01-01T00:00:01+0000","type":"zone"},
		{"time":"2024-01-01T00:00:09+0000","type":"zone"}]`)

	report, err := NewScanner(logger, nil).ScanStorage(storage, model.DefaultSubFeeds())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files)
	assert.Equal(t, []Interval{iv("v4/zone", 1, 9)}, report.Intervals)
}
