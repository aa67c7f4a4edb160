package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queryTotal        *prometheus.CounterVec
	queryDuration     *prometheus.HistogramVec
	queryCitations    *prometheus.HistogramVec
	fallbackTotal     *prometheus.CounterVec
	notFoundTotal     *prometheus.CounterVec
	cacheLookupsTotal *prometheus.CounterVec
	cacheEvictions    *prometheus.GaugeVec
	cacheEntries      *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "graphrag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "graphrag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queryTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphrag",
			Subsystem: "query",
			Name:      "total",
			Help:      "Total answered questions by retrieval path.",
		},
		[]string{"service", "path"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "graphrag",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end question answering duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "path"},
	)
	queryCitations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "graphrag",
			Subsystem: "query",
			Name:      "citations",
			Help:      "Distribution of citations per answered question.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "path"},
	)
	fallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphrag",
			Subsystem: "query",
			Name:      "fallback_total",
			Help:      "Total questions downgraded from the template path.",
		},
		[]string{"service"},
	)
	notFoundTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphrag",
			Subsystem: "query",
			Name:      "not_found_total",
			Help:      "Total questions answered without any supporting data.",
		},
		[]string{"service", "path"},
	)
	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphrag",
			Subsystem: "cache",
			Name:      "answer_lookups_total",
			Help:      "Total answer cache lookups by outcome.",
		},
		[]string{"service", "outcome"},
	)
	cacheEvictions := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "graphrag",
			Subsystem: "cache",
			Name:      "evictions",
			Help:      "Cumulative cache evictions across all segments.",
		},
		[]string{"service"},
	)
	cacheEntries := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "graphrag",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current cached entries across all segments.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queryTotal,
		queryDuration,
		queryCitations,
		fallbackTotal,
		notFoundTotal,
		cacheLookupsTotal,
		cacheEvictions,
		cacheEntries,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		queryTotal:        queryTotal,
		queryDuration:     queryDuration,
		queryCitations:    queryCitations,
		fallbackTotal:     fallbackTotal,
		notFoundTotal:     notFoundTotal,
		cacheLookupsTotal: cacheLookupsTotal,
		cacheEvictions:    cacheEvictions,
		cacheEntries:      cacheEntries,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/stats/protocols/"):
		return "/v1/stats/protocols/{protocol}"
	case strings.HasPrefix(path, "/v1/stats/components/"):
		return "/v1/stats/components/{component}"
	default:
		return path
	}
}

// RecordQueryObservation records path, duration, citation count, and
// not-found outcome for one answered question.
func (m *HTTPServerMetrics) RecordQueryObservation(service, path string, citationCount int, duration time.Duration, notFound bool) {
	if path == "" {
		path = "unknown"
	}
	m.queryTotal.WithLabelValues(service, path).Inc()
	m.queryDuration.WithLabelValues(service, path).Observe(duration.Seconds())
	m.queryCitations.WithLabelValues(service, path).Observe(float64(citationCount))
	if notFound {
		m.notFoundTotal.WithLabelValues(service, path).Inc()
	}
}

func (m *HTTPServerMetrics) RecordFallback(service string) {
	m.fallbackTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordCacheLookup(service string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(service, outcome).Inc()
}

func (m *HTTPServerMetrics) SetCacheGauges(service string, evictions uint64, entries int) {
	m.cacheEvictions.WithLabelValues(service).Set(float64(evictions))
	m.cacheEntries.WithLabelValues(service).Set(float64(entries))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
