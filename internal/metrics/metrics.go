// Package metrics exposes collector activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/bryan-buckman/turfcollector/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the collector's Prometheus instruments.
type Collector struct {
	downloads *prometheus.CounterVec
	attempts  *prometheus.CounterVec
	watermark *prometheus.GaugeVec
	bytes     *prometheus.CounterVec
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_downloads_total",
			Help: "Sub-feed downloads by final outcome",
		}, []string{"feed", "outcome"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_request_attempts_total",
			Help: "HTTP attempts by response class",
		}, []string{"feed", "result"}),
		watermark: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "collector_watermark_timestamp_seconds",
			Help: "Current watermark of each sub-feed as a Unix timestamp",
		}, []string{"feed"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_download_bytes_total",
			Help: "Bytes of stored batches",
		}, []string{"feed"}),
	}
	reg.MustRegister(c.downloads, c.attempts, c.watermark, c.bytes)
	return c
}

// RecordOutcome counts one finished sub-feed download.
func (c *Collector) RecordOutcome(feed string, outcome model.DownloadOutcome) {
	c.downloads.WithLabelValues(feed, string(outcome)).Inc()
}

// RecordAttempt counts one HTTP attempt.
func (c *Collector) RecordAttempt(feed, result string) {
	c.attempts.WithLabelValues(feed, result).Inc()
}

// SetWatermark publishes a sub-feed's watermark.
func (c *Collector) SetWatermark(feed string, t time.Time) {
	c.watermark.WithLabelValues(feed).Set(float64(t.Unix()))
}

// AddBytes adds the size of a stored batch.
func (c *Collector) AddBytes(feed string, n int64) {
	c.bytes.WithLabelValues(feed).Add(float64(n))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
