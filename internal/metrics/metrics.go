package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes application metrics that are safe to scrape via Prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	loadsTotal          *prometheus.CounterVec
	rowsIngested        *prometheus.CounterVec
	rowsDropped         *prometheus.CounterVec
	refreshDuration     prometheus.Histogram
	apiCallsTotal       prometheus.Counter
	liveClients         prometheus.Gauge
}

// New creates a fresh Metrics registry with HTTP and ingestion metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mutamap",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests processed by core-go",
	}, []string{"method", "path", "status"})

	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mutamap",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by core-go",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	loadsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mutamap",
		Name:      "dataset_loads_total",
		Help:      "Dataset load attempts by ingestion source and outcome",
	}, []string{"source", "outcome"})

	rowsIngested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mutamap",
		Name:      "rows_ingested_total",
		Help:      "Rows admitted into a dataset after normalization",
	}, []string{"source"})

	rowsDropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mutamap",
		Name:      "rows_dropped_total",
		Help:      "Rows rejected during normalization",
	}, []string{"source"})

	refreshDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mutamap",
		Name:      "view_refresh_duration_seconds",
		Help:      "Duration of a full view refresh cycle",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	})

	apiCallsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mutamap",
		Name:      "api_calls_total",
		Help:      "Successful fetches against the remote mutation API",
	})

	liveClients := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mutamap",
		Name:      "live_clients",
		Help:      "Currently connected live-view websocket clients",
	})

	registry.MustRegister(
		httpRequests,
		httpRequestDuration,
		loadsTotal,
		rowsIngested,
		rowsDropped,
		refreshDuration,
		apiCallsTotal,
		liveClients,
	)

	return &Metrics{
		registry:            registry,
		httpRequests:        httpRequests,
		httpRequestDuration: httpRequestDuration,
		loadsTotal:          loadsTotal,
		rowsIngested:        rowsIngested,
		rowsDropped:         rowsDropped,
		refreshDuration:     refreshDuration,
		apiCallsTotal:       apiCallsTotal,
		liveClients:         liveClients,
	}
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// ObserveLoad records the outcome of one dataset load attempt.
func (m *Metrics) ObserveLoad(source, outcome string) {
	if m == nil {
		return
	}
	m.loadsTotal.With(prometheus.Labels{"source": source, "outcome": outcome}).Inc()
}

// ObserveIngestion records admitted and dropped row counts for a source.
func (m *Metrics) ObserveIngestion(source string, admitted, dropped int) {
	if m == nil {
		return
	}
	m.rowsIngested.With(prometheus.Labels{"source": source}).Add(float64(admitted))
	m.rowsDropped.With(prometheus.Labels{"source": source}).Add(float64(dropped))
}

// ObserveRefresh observes one full refresh cycle.
func (m *Metrics) ObserveRefresh(duration time.Duration) {
	if m == nil {
		return
	}
	m.refreshDuration.Observe(duration.Seconds())
}

// IncAPICall increments the successful API fetch counter.
func (m *Metrics) IncAPICall() {
	if m == nil {
		return
	}
	m.apiCallsTotal.Inc()
}

// SetLiveClients records the connected websocket client count.
func (m *Metrics) SetLiveClients(n int) {
	if m == nil {
		return
	}
	m.liveClients.Set(float64(n))
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
