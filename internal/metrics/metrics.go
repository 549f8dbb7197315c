// Package metrics holds the Prometheus collectors of the ingest job and the
// HTTP API.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcome labels.
const (
	StatusUpdated        = "updated"
	StatusNoNewData      = "no_new_data"
	StatusNothingToFetch = "nothing_to_fetch"
	StatusFailed         = "failed"
)

// Run collects the metrics of a single ingest run. It owns its registry so
// the batch job can dump it to a node_exporter textfile.
type Run struct {
	registry *prometheus.Registry

	RunsTotal          *prometheus.CounterVec
	RecordsFetched     prometheus.Counter
	RecordsAdded       prometheus.Counter
	RecordsSkipped     prometheus.Counter
	DatasetRecords     prometheus.Gauge
	RunDurationSeconds prometheus.Gauge
	LastSuccessTime    prometheus.Gauge
}

func NewRun() *Run {
	m := &Run{
		registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wastewater_ingest_runs_total",
			Help: "Ingest runs by outcome",
		}, []string{"status"}),
		RecordsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wastewater_ingest_records_fetched_total",
			Help: "Valid records received from the remote source",
		}),
		RecordsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wastewater_ingest_records_added_total",
			Help: "Records appended to the dataset",
		}),
		RecordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wastewater_ingest_records_skipped_total",
			Help: "Fetched records dropped as duplicates",
		}),
		DatasetRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wastewater_dataset_records",
			Help: "Records in the persisted dataset after the run",
		}),
		RunDurationSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wastewater_ingest_run_duration_seconds",
			Help: "Duration of the last ingest run",
		}),
		LastSuccessTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wastewater_ingest_last_success_timestamp_seconds",
			Help: "Unix time of the last successful ingest run",
		}),
	}
	m.registry.MustRegister(
		m.RunsTotal,
		m.RecordsFetched,
		m.RecordsAdded,
		m.RecordsSkipped,
		m.DatasetRecords,
		m.RunDurationSeconds,
		m.LastSuccessTime,
	)
	return m
}

// Observe records the outcome of a finished run.
func (m *Run) Observe(status string, fetched, added, skipped, total int, duration time.Duration) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RecordsFetched.Add(float64(fetched))
	m.RecordsAdded.Add(float64(added))
	m.RecordsSkipped.Add(float64(skipped))
	m.RunDurationSeconds.Set(duration.Seconds())
	if status != StatusFailed {
		m.DatasetRecords.Set(float64(total))
		m.LastSuccessTime.SetToCurrentTime()
	}
}

// Gatherer exposes the run registry.
func (m *Run) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the run metrics in text exposition format.
func (m *Run) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// HTTP collects request metrics for the API server.
type HTTP struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewHTTP() *HTTP {
	m := &HTTP{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wastewater_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wastewater_http_request_duration_seconds",
			Help:    "HTTP request duration by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry for scraping.
func (m *HTTP) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts requests by chi route pattern, so path parameters do
// not explode label cardinality.
func (m *HTTP) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
