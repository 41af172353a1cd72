package turfapi

import (
	"bytes"
	"compress/gzip"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func jsonHeader(encoding string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", ContentTypeJSON)
	if encoding != "" {
		h.Set("Content-Encoding", encoding)
	}
	return h
}

func TestClassifyTransportFailure(t *testing.T) {
	cause := errors.New("connection refused")
	out := Classify(nil, cause)

	assert.Equal(t, ClassTransportFailure, out.Class)
	assert.ErrorIs(t, out.Err, cause)
}

func TestClassifyOKPlain(t *testing.T) {
	out := Classify(&Response{StatusCode: 200, Header: jsonHeader(""), Body: []byte(`[]`)}, nil)

	assert.Equal(t, ClassOK, out.Class)
	assert.Equal(t, "[]", out.Body)
	assert.False(t, out.Anomalous())
}

func TestClassifyOKGzip(t *testing.T) {
	body := `[{"time":"2024-01-01T00:00:01+0000","type":"zone"}]`
	out := Classify(&Response{StatusCode: 200, Header: jsonHeader("gzip"), Body: gzipped(t, body)}, nil)

	assert.Equal(t, ClassOK, out.Class)
	assert.Equal(t, body, out.Body)
}

func TestClassifyRateLimited(t *testing.T) {
	out := Classify(&Response{StatusCode: 429, Header: jsonHeader(""), Body: []byte(RateLimitBody)}, nil)
	assert.Equal(t, ClassRateLimited, out.Class)

	// Headers that would otherwise be rejected do not matter once the sentinel matches.
	h := http.Header{}
	h.Set("Content-Type", "text/plain")
	out = Classify(&Response{StatusCode: 429, Header: h, Body: []byte(RateLimitBody)}, nil)
	assert.Equal(t, ClassRateLimited, out.Class)

	out = Classify(&Response{StatusCode: 429, Header: jsonHeader("gzip"), Body: gzipped(t, RateLimitBody)}, nil)
	assert.Equal(t, ClassRateLimited, out.Class)
}

func TestClassifyRateLimitBodyMustMatchExactly(t *testing.T) {
	for _, body := range []string{RateLimitBody + "\n\n  ", " " + RateLimitBody, RateLimitBody[:len(RateLimitBody)-1]} {
		out := Classify(&Response{StatusCode: 429, Header: jsonHeader(""), Body: []byte(body)}, nil)
		assert.NotEqual(t, ClassRateLimited, out.Class, "body %q", body)
		assert.Equal(t, ClassOK, out.Class)
		assert.True(t, out.Anomalous())
	}
}

func TestClassify429WithOtherBodyIsNotRateLimited(t *testing.T) {
	out := Classify(&Response{StatusCode: 429, Header: jsonHeader(""), Body: []byte(`{"errorMessage":"slow down"}`)}, nil)
	assert.Equal(t, ClassOK, out.Class)
	assert.True(t, out.Anomalous())

	h := http.Header{}
	h.Set("Content-Type", "text/html")
	out = Classify(&Response{StatusCode: 429, Header: h, Body: []byte(`<html>busy</html>`)}, nil)
	assert.Equal(t, ClassMalformed, out.Class)
}

func TestClassifyMalformedHeaders(t *testing.T) {
	tests := []struct {
		name     string
		ctype    string
		encoding string
		body     []byte
		wantBody string
	}{
		{"html content type", "text/html; charset=utf-8", "", []byte("<!DOCTYPE html><html></html>"), "<!DOCTYPE html><html></html>"},
		{"missing content type", "", "", []byte("[]"), "[]"},
		{"json without charset", "application/json", "", []byte("[]"), "[]"},
		{"unsupported encoding", ContentTypeJSON, "br", []byte{0x1, 0x2}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.ctype != "" {
				h.Set("Content-Type", tt.ctype)
			}
			if tt.encoding != "" {
				h.Set("Content-Encoding", tt.encoding)
			}
			out := Classify(&Response{StatusCode: 200, Header: h, Body: tt.body}, nil)

			assert.Equal(t, ClassMalformed, out.Class)
			assert.Equal(t, tt.wantBody, out.Body)
			assert.Contains(t, out.Diagnostic, "Content-Type=")
		})
	}
}

func TestClassifyAcceptsSpacedContentType(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "application/json; charset=UTF-8")
	out := Classify(&Response{StatusCode: 200, Header: h, Body: []byte("[]")}, nil)
	assert.Equal(t, ClassOK, out.Class)
}

func TestClassifyBrokenGzip(t *testing.T) {
	out := Classify(&Response{StatusCode: 200, Header: jsonHeader("gzip"), Body: []byte("not gzip")}, nil)

	assert.Equal(t, ClassMalformed, out.Class)
	assert.Empty(t, out.Body)
}

func TestLooksLikeHTML(t *testing.T) {
	assert.True(t, LooksLikeHTML("<!DOCTYPE html>\n<html>"))
	assert.True(t, LooksLikeHTML("  <HTML><head>"))
	assert.False(t, LooksLikeHTML(`[{"time":"x"}]`))
	assert.False(t, LooksLikeHTML(""))
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "abc", Prefix("abc", 5))
	assert.Equal(t, "ab...", Prefix("abcdef", 2))
}
