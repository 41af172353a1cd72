package feedreader

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryan-buckman/turfcollector/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const forwardBatch = `[
	{"time":"2024-01-01T00:00:01+0000","type":"takeover","zone":{"id":1,"name":"A"},"currentOwner":{"id":10,"name":"u"}},
	{"time":"2024-01-01T00:00:02+0000","type":"chat","sender":{"id":11,"name":"v"},"message":"hi"},
	{"time":"2024-01-01T00:00:02+0000","type":"medal","user":{"id":12,"name":"w"},"medal":5},
	{"time":"2024-01-01T00:00:03+0000","type":"zone","zone":{"id":2,"name":"B"}}
]`

func collect(t *testing.T, r *Reader, content string) ([]model.Record, error) {
	t.Helper()
	var recs []model.Record
	err := r.Read([]byte(content), func(rec model.Record) error {
		recs = append(recs, rec)
		return nil
	})
	return recs, err
}

func TestReadForwardDispatchesRegisteredTypes(t *testing.T) {
	recs, err := collect(t, New(DefaultRegistry(), Forward), forwardBatch)
	require.NoError(t, err)
	require.Len(t, recs, 4)

	tk, ok := recs[0].(model.Takeover)
	require.True(t, ok)
	assert.Equal(t, 10, tk.CurrentOwner.ID)
	assert.Equal(t, model.TypeChat, recs[1].Type())
	assert.Equal(t, model.TypeMedal, recs[2].Type())
	assert.Equal(t, model.TypeZone, recs[3].Type())
}

func TestReadSkipsUnknownTypes(t *testing.T) {
	content := `[
		{"time":"2024-01-01T00:00:01+0000","type":"visit"},
		{"time":"2024-01-01T00:00:02+0000","type":"zone","zone":{"id":2}}
	]`
	recs, err := collect(t, New(DefaultRegistry().Only(model.TypeZone), Forward), content)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.TypeZone, recs[0].Type())
}

func TestReadForwardRejectsOutOfOrder(t *testing.T) {
	content := `[
		{"time":"2024-01-01T00:00:05+0000","type":"zone"},
		{"time":"2024-01-01T00:00:01+0000","type":"zone"}
	]`
	_, err := collect(t, New(DefaultRegistry(), Forward), content)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOrderViolation))

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "2024-01-01T00:00:05+0000", pe.Previous)
	assert.Equal(t, "2024-01-01T00:00:01+0000", pe.Current)
	assert.Equal(t, 1, pe.Index)
	assert.Contains(t, pe.Node, "00:00:01")
}

func TestReadReversedMode(t *testing.T) {
	descending := `[
		{"time":"2024-01-01T00:00:05+0000","type":"zone"},
		{"time":"2024-01-01T00:00:05+0000","type":"zone"},
		{"time":"2024-01-01T00:00:01+0000","type":"zone"}
	]`
	_, err := collect(t, New(DefaultRegistry(), Reversed), descending)
	assert.NoError(t, err)

	_, err = collect(t, New(DefaultRegistry(), Reversed), forwardBatch)
	assert.ErrorIs(t, err, ErrOrderViolation)
}

func TestReadOrderIsCheckedForUnregisteredTypes(t *testing.T) {
	content := `[
		{"time":"2024-01-01T00:00:05+0000","type":"visit"},
		{"time":"2024-01-01T00:00:01+0000","type":"visit"}
	]`
	_, err := collect(t, New(Registry{}, Forward), content)
	assert.ErrorIs(t, err, ErrOrderViolation)
}

func TestReadMissingFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"no time", `[{"type":"zone"}]`, FieldTime},
		{"no type", `[{"time":"2024-01-01T00:00:01+0000"}]`, FieldType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := collect(t, New(DefaultRegistry(), Forward), tt.content)
			require.ErrorIs(t, err, ErrMissingField)

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.field, pe.Field)
		})
	}
}

func TestReadConflictingType(t *testing.T) {
	reg := Registry{model.TypeMedal: DecodeAs[model.Chat]()}
	_, err := collect(t, New(reg, Forward), `[{"time":"2024-01-01T00:00:01+0000","type":"medal"}]`)

	require.ErrorIs(t, err, ErrConflictingType)
	assert.NotErrorIs(t, err, ErrMalformedJSON)
}

func TestReadMalformed(t *testing.T) {
	for _, content := range []string{``, `{}`, `<html></html>`, `[1,2]`} {
		_, err := collect(t, New(DefaultRegistry(), Forward), content)
		assert.ErrorIs(t, err, ErrMalformedJSON, "content %q", content)
	}

	_, err := collect(t, New(DefaultRegistry(), Forward), `[{"time":"soon","type":"zone"}]`)
	assert.ErrorIs(t, err, ErrInvalidTime)
}

func TestReadCallbackErrorStopsReading(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := New(DefaultRegistry(), Forward).Read([]byte(forwardBatch), func(model.Record) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestLatestTimeIgnoresOrder(t *testing.T) {
	content := `[
		{"time":"2024-01-01T00:00:03+0000","type":"zone"},
		{"time":"2024-01-01T00:00:09+0000","type":"zone"},
		{"time":"2024-01-01T00:00:01+0000","type":"zone"}
	]`
	latest, err := LatestTime([]byte(content))
	require.NoError(t, err)
	assert.True(t, latest.Equal(time.Date(2024, 1, 1, 0, 0, 9, 0, time.UTC)))

	again, err := LatestTime([]byte(content))
	require.NoError(t, err)
	assert.True(t, latest.Equal(again))

	_, err = LatestTime([]byte(`[]`))
	assert.Error(t, err)
}

func TestBounds(t *testing.T) {
	span, err := Bounds([]byte(forwardBatch))
	require.NoError(t, err)

	assert.Equal(t, 4, span.Count)
	assert.Equal(t, model.TypeTakeover, span.Type)
	assert.True(t, span.Start.Equal(time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC)))
	assert.True(t, span.End.Equal(time.Date(2024, 1, 1, 0, 0, 3, 0, time.UTC)))
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty([]byte("[]")))
	assert.True(t, IsEmpty([]byte(" [] \n")))
	assert.True(t, IsEmpty(nil))
	assert.False(t, IsEmpty([]byte(forwardBatch)))
}

func TestDecodeAsRoundTrip(t *testing.T) {
	raw := json.RawMessage(`{"time":"2024-01-01T00:00:01+0000","type":"zone","zone":{"id":5,"name":"Z"}}`)
	rec, err := DecodeAs[model.Zone]()(raw)
	require.NoError(t, err)
	assert.Equal(t, 5, rec.(model.Zone).Zone.ID)
}

func TestReadFileWithErrorHandler(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewDefaultErrorHandler(logger)
	r := New(DefaultRegistry(), Forward)
	noop := func(model.Record) error { return nil }

	tolerated := map[string][]byte{
		"rate.json":  []byte(`{"errorMessage":"Only one request per second allowed","errorCode":195887105}`),
		"empty.json": {},
		"zero.json":  {0, 0, 0, 0},
		"504.json":   []byte("<html><head><title>504 Gateway Time-out</title></head></html>"),
	}
	for name, content := range tolerated {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, content, 0o644))
		assert.NoError(t, r.ReadFile(p, h, noop), name)
	}
	assert.Empty(t, h.ErrorPaths())

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"time":"2024-01-01T00:00:05+0000","type":"zone"},{"time":"2024-01-01T00:00:01+0000","type":"zone"}]`), 0o644))
	err := r.ReadFile(bad, h, noop)
	assert.ErrorIs(t, err, ErrOrderViolation)
	assert.Equal(t, []string{bad}, h.ErrorPaths())

	html := filepath.Join(dir, "html.json")
	require.NoError(t, os.WriteFile(html, []byte("<html>502 Bad Gateway</html>"), 0o644))
	assert.Error(t, r.ReadFile(html, h, noop))
	assert.Len(t, h.ErrorPaths(), 2)
}
