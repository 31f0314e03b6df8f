// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes Prometheus instrumentation for a batch run. All
// methods are safe to call on a nil *Metrics so components can run without
// instrumentation.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for the retrieval engine.
type Metrics struct {
	// Final outcomes by status.
	Outcomes *prometheus.CounterVec

	// Source attempts by method and result kind.
	SourceAttempts *prometheus.CounterVec

	// Request cache lookups by backend and hit/miss.
	CacheLookups *prometheus.CounterVec

	// Artifact download latency and volume.
	FetchDuration prometheus.Histogram
	FetchBytes    prometheus.Counter

	// Titles currently being worked on.
	InFlight prometheus.Gauge
}

// New creates a Metrics instance registered with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paperfetch_outcomes_total",
			Help: "Final retrieval outcomes by status",
		}, []string{"status"}), // status: "success", "failure", "skipped"

		SourceAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paperfetch_source_attempts_total",
			Help: "Source resolve attempts by method and result",
		}, []string{"method", "result"}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paperfetch_cache_lookups_total",
			Help: "Request cache lookups by backend and result",
		}, []string{"backend", "result"}),

		FetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "paperfetch_fetch_duration_seconds",
			Help:    "Duration of artifact downloads, successful or not",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		FetchBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "paperfetch_fetch_bytes_total",
			Help: "Bytes of committed artifacts",
		}),

		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "paperfetch_inflight_titles",
			Help: "Titles currently held by a worker",
		}),
	}
}

// IncOutcome records a final outcome.
func (m *Metrics) IncOutcome(status string) {
	if m != nil {
		m.Outcomes.WithLabelValues(status).Inc()
	}
}

// IncAttempt records one resolve or download attempt of a source.
func (m *Metrics) IncAttempt(method, result string) {
	if m != nil {
		m.SourceAttempts.WithLabelValues(method, result).Inc()
	}
}

// IncCacheLookup records a cache hit or miss.
func (m *Metrics) IncCacheLookup(backend string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(backend, result).Inc()
}

// ObserveFetch records a download's duration and, when committed, its size.
func (m *Metrics) ObserveFetch(d time.Duration, committedBytes int64) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
	if committedBytes > 0 {
		m.FetchBytes.Add(float64(committedBytes))
	}
}

// AddInFlight adjusts the in-flight gauge.
func (m *Metrics) AddInFlight(delta int) {
	if m != nil {
		m.InFlight.Add(float64(delta))
	}
}

// Serve exposes g on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
