package turfapi

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"
)

// RateLimitBody is the exact payload the API answers with when requests come too fast.
const RateLimitBody = `{"errorMessage":"Only one request per second allowed","errorCode":195887105}`

// Class is the category a response falls into.
type Class int

const (
	ClassOK Class = iota
	ClassRateLimited
	ClassMalformed
	ClassTransportFailure
)

func (c Class) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassRateLimited:
		return "rate_limited"
	case ClassMalformed:
		return "malformed"
	case ClassTransportFailure:
		return "transport_failure"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Outcome is a classified response.
type Outcome struct {
	Class      Class
	StatusCode int
	// Body is the decoded UTF-8 text. For malformed responses it is whatever
	// could be recovered and may be empty.
	Body string
	// Diagnostic describes why a response was classified as malformed.
	Diagnostic string
	// Err is the transport error for ClassTransportFailure.
	Err error
}

// Anomalous reports an OK-shaped response that did not carry status 200.
func (o Outcome) Anomalous() bool {
	return o.Class == ClassOK && o.StatusCode != http.StatusOK
}

// Classify decides what a response is. err is the error returned while
// obtaining resp, if any.
//
// Rules apply in order: transport failure, rate limit (status 429 with the
// exact sentinel body), header shape (gzip or identity encoding, JSON UTF-8
// content type), then OK regardless of the numeric status.
func Classify(resp *Response, err error) Outcome {
	if err != nil || resp == nil {
		if err == nil {
			err = fmt.Errorf("no response")
		}
		return Outcome{Class: ClassTransportFailure, Err: err}
	}

	encoding := strings.TrimSpace(resp.Header.Get("Content-Encoding"))
	contentType := resp.Header.Get("Content-Type")

	body, decodeErr := decodeBody(encoding, resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests && decodeErr == nil &&
		string(body) == RateLimitBody {
		return Outcome{Class: ClassRateLimited, StatusCode: resp.StatusCode, Body: string(body)}
	}

	malformed := func(diag string) Outcome {
		o := Outcome{Class: ClassMalformed, StatusCode: resp.StatusCode, Diagnostic: diag}
		if decodeErr == nil && utf8.Valid(body) {
			o.Body = string(body)
		}
		return o
	}

	if encoding != "" && !strings.EqualFold(encoding, EncodingGzip) {
		return malformed(fmt.Sprintf("Content-Type=%s, Content-Encoding=%s", contentType, encoding))
	}
	if !isJSONUTF8(contentType) {
		return malformed(fmt.Sprintf("Content-Type=%s, Content-Encoding=%s", contentType, encoding))
	}
	if decodeErr != nil {
		return malformed(fmt.Sprintf("decode %s body: %v", encoding, decodeErr))
	}
	if !utf8.Valid(body) {
		return malformed("body is not valid UTF-8")
	}
	return Outcome{Class: ClassOK, StatusCode: resp.StatusCode, Body: string(body)}
}

func decodeBody(encoding string, raw []byte) ([]byte, error) {
	switch {
	case encoding == "":
		return raw, nil
	case strings.EqualFold(encoding, EncodingGzip):
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

func isJSONUTF8(contentType string) bool {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" && strings.EqualFold(params["charset"], "utf-8")
}

// LooksLikeHTML reports whether a body is an HTML page rather than JSON.
func LooksLikeHTML(body string) bool {
	head := strings.ToLower(strings.TrimSpace(Prefix(body, 32)))
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}

// Prefix returns at most n bytes of s, marking truncation.
func Prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
