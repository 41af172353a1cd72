// Package server provides the collector's HTTP status API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bryan-buckman/turfcollector/internal/collector"
	"github.com/bryan-buckman/turfcollector/internal/coverage"
	"github.com/bryan-buckman/turfcollector/internal/database"
	"github.com/bryan-buckman/turfcollector/internal/metrics"
	"github.com/bryan-buckman/turfcollector/internal/model"
	"github.com/bryan-buckman/turfcollector/internal/opml"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Download listing bounds.
const (
	DefaultDownloadLimit = 50
	MaxDownloadLimit     = 1000
)

// Options wires the server to the running collector. Ledger and Gatherer are optional.
type Options struct {
	Feeds      []model.SubFeed
	Tracker    *collector.Tracker
	Scanner    *coverage.Scanner
	Ledger     database.Store
	Gatherer   prometheus.Gatherer
	StorageDir string
	BaseURL    string
	Logger     *slog.Logger
}

// Server is the status HTTP server.
type Server struct {
	opts   Options
	router chi.Router
	http   *http.Server
}

// New creates a new server.
func New(opts Options) *Server {
	s := &Server{opts: opts}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(s.opts.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/coverage", s.handleCoverage)
		r.Get("/downloads", s.handleDownloads)
		r.Get("/export-opml", s.handleExportOPML)
	})

	s.router = r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.opts.Logger.Info("status server starting", slog.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// --- API Handlers ---

type feedStatus struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	APIVersion string     `json:"api_version"`
	Watermark  *time.Time `json:"watermark,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := s.opts.Tracker.Snapshot()
	feeds := make([]feedStatus, 0, len(s.opts.Feeds))
	for _, f := range s.opts.Feeds {
		st := feedStatus{ID: f.ID(), Kind: f.Kind, APIVersion: f.APIVersion}
		if wm, ok := snapshot[f.ID()]; ok {
			wm := wm.UTC()
			st.Watermark = &wm
		}
		feeds = append(feeds, st)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"feeds": feeds})
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	report, err := s.opts.Scanner.ScanStorage(s.opts.StorageDir, s.opts.Feeds)
	if err != nil {
		s.opts.Logger.Error("coverage scan failed", slog.String("error", err.Error()))
		http.Error(w, "Coverage scan failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"files":       report.Files,
		"skipped":     report.Skipped,
		"intervals":   report.Intervals,
		"gaps":        coverage.Gaps(report.Intervals),
		"error_paths": report.ErrorPaths,
	})
}

func (s *Server) handleDownloads(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ledger == nil {
		http.Error(w, "Download ledger disabled", http.StatusNotFound)
		return
	}
	limit := DefaultDownloadLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, MaxDownloadLimit)
	}
	files, err := s.opts.Ledger.RecentDownloads(limit)
	if err != nil {
		s.opts.Logger.Error("ledger query failed", slog.String("error", err.Error()))
		http.Error(w, "Failed to get downloads", http.StatusInternalServerError)
		return
	}
	if files == nil {
		files = []model.StoredFile{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"downloads": files})
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	data, err := opml.Export("Turf sub-feeds", s.opts.BaseURL, s.opts.Feeds, time.Now())
	if err != nil {
		http.Error(w, "Failed to export", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=turf-feeds.opml")
	w.Write(data)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
