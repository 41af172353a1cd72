package feedreader

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
)

// ErrorHandler decides what happens to a stored batch that failed to read.
// Returning nil tolerates the file; returning an error propagates it.
type ErrorHandler interface {
	HandleContent(path string, content []byte, err error) error
}

// rateLimitPrefix starts the error payload that sometimes ends up stored
// in place of a batch.
var rateLimitPrefix = []byte(`{"errorMessage":"Only one request per second allowed","errorCode":`)

// DefaultErrorHandler tolerates known junk content left behind by earlier
// collectors and records every other failing path.
type DefaultErrorHandler struct {
	logger *slog.Logger

	mu         sync.Mutex
	errorPaths []string
}

// NewDefaultErrorHandler creates a handler logging tolerated files to logger.
func NewDefaultErrorHandler(logger *slog.Logger) *DefaultErrorHandler {
	return &DefaultErrorHandler{logger: logger}
}

// HandleContent implements ErrorHandler.
func (h *DefaultErrorHandler) HandleContent(path string, content []byte, err error) error {
	if errors.Is(err, ErrMalformedJSON) {
		switch {
		case bytes.HasPrefix(content, rateLimitPrefix):
			h.logger.Warn("stored file contains rate limit error message", slog.String("path", path))
			return nil
		case len(bytes.TrimSpace(content)) == 0:
			h.logger.Warn("stored file is empty", slog.String("path", path))
			return nil
		case allZeroes(content):
			h.logger.Warn("stored file contains only zeroes", slog.String("path", path))
			return nil
		case bytes.HasPrefix(content, []byte("<html>")) && bytes.Contains(content, []byte("504 Gateway Time-out")):
			h.logger.Warn("stored file contains HTML response 504 Gateway Time-out", slog.String("path", path))
			return nil
		}
	}
	h.mu.Lock()
	h.errorPaths = append(h.errorPaths, path)
	h.mu.Unlock()
	return err
}

// ErrorPaths returns the paths that were not tolerated, in the order seen.
func (h *DefaultErrorHandler) ErrorPaths() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.errorPaths...)
}

func allZeroes(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
