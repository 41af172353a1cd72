// Package turfapi talks to the game server's HTTP API and classifies its responses.
package turfapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public API endpoint.
const DefaultBaseURL = "https://api.turfgame.com"

// Header values negotiated with the API.
const (
	ContentTypeJSON = "application/json;charset=utf-8"
	EncodingGzip    = "gzip"
)

// UsersPath is the bulk user lookup endpoint.
const UsersPath = "/v4/users"

// Response is a raw HTTP response as received, body not yet decoded.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// TransportError reports that no response could be obtained.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client executes requests against the API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL. A zero timeout means no timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			// Compression is negotiated explicitly so that the classifier
			// sees the Content-Encoding the server chose.
			Transport: &http.Transport{
				Proxy:              http.ProxyFromEnvironment,
				DisableCompression: true,
			},
		},
	}
}

// Get issues a GET for path with the given query parameters.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &TransportError{Method: http.MethodGet, URL: u, Err: err}
	}
	req.Header.Set("Accept-Encoding", EncodingGzip)
	return c.do(req)
}

// Post issues a POST of a JSON body to path.
func (c *Client) Post(ctx context.Context, path string, body []byte) (*Response, error) {
	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Method: http.MethodPost, URL: u, Err: err}
	}
	req.Header.Set("Content-Type", ContentTypeJSON)
	req.Header.Set("Accept-Encoding", EncodingGzip)
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: fmt.Errorf("read body: %w", err)}
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// UserQuery selects a user by name or by id. Exactly one should be set.
type UserQuery struct {
	Name string `json:"name,omitempty"`
	ID   int    `json:"id,omitempty"`
}

// LookupUsers posts a bulk user lookup and classifies the response.
func (c *Client) LookupUsers(ctx context.Context, queries []UserQuery) (Outcome, error) {
	for i, q := range queries {
		if (q.Name == "") == (q.ID == 0) {
			return Outcome{}, fmt.Errorf("user query %d: exactly one of name or id must be set", i)
		}
	}
	body, err := json.Marshal(queries)
	if err != nil {
		return Outcome{}, fmt.Errorf("encode user queries: %w", err)
	}
	resp, err := c.Post(ctx, UsersPath, body)
	return Classify(resp, err), nil
}
