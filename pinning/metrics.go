package pinning

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry *prometheus.Registry

	pins         *prometheus.CounterVec
	pinBytes     prometheus.Histogram
	gateway      *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &metrics{
		registry: reg,
		pins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixelate",
			Subsystem: "pind",
			Name:      "pins_total",
			Help:      "Pin requests by result (new, duplicate, error).",
		}, []string{"result"}),
		pinBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pixelate",
			Subsystem: "pind",
			Name:      "pin_bytes",
			Help:      "Size of pinned objects.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		gateway: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixelate",
			Subsystem: "pind",
			Name:      "gateway_requests_total",
			Help:      "Gateway reads by cache outcome (hit, miss, error).",
		}, []string{"cache"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Tracks the number of HTTP requests.",
		}, []string{"route", "method", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Tracks the latencies for HTTP requests.",
		}, []string{"route", "method"}),
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// middleware records request counts and latencies per route template.
func (m *metrics) middleware(inner http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		start := time.Now()
		rw := newResponseWriter(w)
		inner.ServeHTTP(rw, r)
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		m.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// responseWriter captures the response code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w, http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
