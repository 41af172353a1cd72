package turfapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGetNegotiatesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v4/feeds/zone", r.URL.Path)
		assert.Equal(t, "2024-01-01T00:00:04+0000", r.URL.Query().Get("afterDate"))
		assert.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))

		w.Header().Set("Content-Type", ContentTypeJSON)
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(gzipped(t, `[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", 5*time.Second)
	q := url.Values{}
	q.Set("afterDate", "2024-01-01T00:00:04+0000")
	resp, err := c.Get(context.Background(), "/v4/feeds/zone", q)
	require.NoError(t, err)

	out := Classify(resp, nil)
	assert.Equal(t, ClassOK, out.Class)
	assert.Equal(t, "[]", out.Body)
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := NewClient(addr, time.Second)
	_, err := c.Get(context.Background(), "/v4/feeds/zone", nil)
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.MethodGet, te.Method)
}

func TestLookupUsers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, UsersPath, r.URL.Path)
		assert.Equal(t, ContentTypeJSON, r.Header.Get("Content-Type"))

		raw, _ := io.ReadAll(r.Body)
		var got []map[string]any
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, []map[string]any{{"name": "alice"}, {"id": float64(42)}}, got)

		w.Header().Set("Content-Type", ContentTypeJSON)
		w.Write([]byte(`[{"name":"alice","id":1},{"name":"bob","id":42}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	out, err := c.LookupUsers(context.Background(), []UserQuery{{Name: "alice"}, {ID: 42}})
	require.NoError(t, err)
	assert.Equal(t, ClassOK, out.Class)
	assert.Contains(t, out.Body, "bob")
}

func TestLookupUsersRejectsAmbiguousQuery(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second)

	_, err := c.LookupUsers(context.Background(), []UserQuery{{Name: "alice", ID: 1}})
	assert.Error(t, err)

	_, err = c.LookupUsers(context.Background(), []UserQuery{{}})
	assert.Error(t, err)
}
