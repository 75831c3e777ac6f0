// Package telemetry configures the global zerolog logger and exposes a
// Prometheus registry for grid-driver progress metrics (spec.md §4.L). No
// HTTP server is started here; the registry exists for an operator's own
// exporter to scrape (§1 excludes the web/HTTP API).
package telemetry

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ConfigureLogger sets the global zerolog logger to a console writer on
// stderr with RFC3339 timestamps, matching cmd/cryptorun/main.go.
func ConfigureLogger() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// MetricsRegistry holds the grid-search driver's Prometheus metrics.
type MetricsRegistry struct {
	CombinationDuration *prometheus.HistogramVec
	GamesProcessed      *prometheus.CounterVec
	CacheHitRatio       prometheus.Gauge

	cacheHits   float64
	cacheMisses float64
}

// NewMetricsRegistry builds and registers the driver's metrics against a
// dedicated prometheus.Registry (not the global DefaultRegisterer), so
// repeated construction in tests never panics on duplicate registration.
func NewMetricsRegistry() (*MetricsRegistry, *prometheus.Registry) {
	reg := prometheus.NewRegistry()

	m := &MetricsRegistry{
		CombinationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hoopdivergence_combination_duration_seconds",
				Help:    "Duration of one (entry, exit) combination's evaluation, by split",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"split"},
		),
		GamesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hoopdivergence_games_processed_total",
				Help: "Total games processed by split and result",
			},
			[]string{"split", "result"},
		),
		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hoopdivergence_cache_hit_ratio",
				Help: "Running ratio of combination-result cache hits to total lookups",
			},
		),
	}

	reg.MustRegister(m.CombinationDuration, m.GamesProcessed, m.CacheHitRatio)
	return m, reg
}

// CombinationTimer tracks one combination-split evaluation's wall time.
type CombinationTimer struct {
	metrics *MetricsRegistry
	split   string
	start   time.Time
}

// StartCombinationTimer begins timing one split's evaluation.
func (m *MetricsRegistry) StartCombinationTimer(split string) *CombinationTimer {
	return &CombinationTimer{metrics: m, split: split, start: time.Now()}
}

// Stop records the elapsed duration against the histogram.
func (t *CombinationTimer) Stop() {
	t.metrics.CombinationDuration.WithLabelValues(t.split).Observe(time.Since(t.start).Seconds())
}

// RecordGameProcessed increments the games-processed counter for a split
// and outcome ("ok", "skipped", "error").
func (m *MetricsRegistry) RecordGameProcessed(split, result string) {
	m.GamesProcessed.WithLabelValues(split, result).Inc()
}

// RecordCacheLookup updates the running cache-hit ratio gauge.
func (m *MetricsRegistry) RecordCacheLookup(hit bool) {
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
	total := m.cacheHits + m.cacheMisses
	if total > 0 {
		m.CacheHitRatio.Set(m.cacheHits / total)
	}
}
