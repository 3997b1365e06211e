// Package metrics exposes Prometheus metrics for source loading, legend
// interaction and tile serving.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds a private registry. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry       *prometheus.Registry
	httpRequests   *prometheus.CounterVec
	sourceLoads    *prometheus.CounterVec
	sourceDuration *prometheus.HistogramVec
	toggles        *prometheus.CounterVec
	selections     *prometheus.CounterVec
	tilesServed    *prometheus.CounterVec
}

// New creates a fresh registry with every metric registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webgis",
		Name:      "http_requests_total",
		Help:      "Count of HTTP requests served",
	}, []string{"method", "status"})

	sourceLoads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webgis",
		Name:      "source_loads_total",
		Help:      "GeoJSON source loads by outcome",
	}, []string{"source", "outcome"})

	sourceDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "webgis",
		Name:      "source_load_duration_seconds",
		Help:      "Time to fetch and parse a GeoJSON source",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"source"})

	toggles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webgis",
		Name:      "legend_toggles_total",
		Help:      "Legend checkbox changes",
	}, []string{"layer", "target", "checked"})

	selections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webgis",
		Name:      "selections_total",
		Help:      "Feature selections by handler",
	}, []string{"handler", "outcome"})

	tilesServed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webgis",
		Name:      "tiles_served_total",
		Help:      "Vector tiles rendered on demand",
	}, []string{"layer"})

	registry.MustRegister(
		httpRequests,
		sourceLoads,
		sourceDuration,
		toggles,
		selections,
		tilesServed,
		prometheus.NewGoCollector(),
	)

	return &Metrics{
		registry:       registry,
		httpRequests:   httpRequests,
		sourceLoads:    sourceLoads,
		sourceDuration: sourceDuration,
		toggles:        toggles,
		selections:     selections,
		tilesServed:    tilesServed,
	}
}

// ObserveHTTPRequest counts one request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// ObserveSourceLoad records one load attempt of a source.
func (m *Metrics) ObserveSourceLoad(source string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.sourceLoads.WithLabelValues(source, outcome).Inc()
	m.sourceDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// IncToggle counts a layer ("layer") or category ("category:<i>") toggle.
func (m *Metrics) IncToggle(layer, target string, checked bool) {
	if m == nil {
		return
	}
	m.toggles.WithLabelValues(layer, target, strconv.FormatBool(checked)).Inc()
}

// IncSelection counts a selection; outcome is "selected" or "cleared".
func (m *Metrics) IncSelection(handler, outcome string) {
	if m == nil {
		return
	}
	m.selections.WithLabelValues(handler, outcome).Inc()
}

// IncTileServed counts one rendered tile.
func (m *Metrics) IncTileServed(layer string) {
	if m == nil {
		return
	}
	m.tilesServed.WithLabelValues(layer).Inc()
}

// Handler exposes the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts every request passing through next.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.ObserveHTTPRequest(r.Method, rec.status)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE streaming working behind the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
