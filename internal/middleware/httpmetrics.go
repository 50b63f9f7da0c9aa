package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTP metric names as constants for consistency.
const (
	MetricHTTPRequestDuration = "http_request_duration_seconds"
	MetricHTTPRequestsTotal   = "http_requests_total"
)

// HTTPMetrics contains Prometheus collectors for the HTTP layer.
type HTTPMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
}

// NewHTTPMetrics creates the HTTP collectors. They are not registered;
// call Register with a registry.
func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricHTTPRequestDuration,
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.0},
			},
			[]string{"method", "path", "status"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricHTTPRequestsTotal,
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
	}
}

// Register registers all collectors with the given registry.
func (m *HTTPMetrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.requestDuration, m.requestsTotal} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Instrument records duration and count for every request, with the path
// normalized to its route pattern to keep label cardinality bounded.
func (m *HTTPMetrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		labels := []string{r.Method, normalizePath(r.URL.Path), strconv.Itoa(rw.statusCode)}
		m.requestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(labels...).Inc()
	})
}

// normalizePath maps request paths onto their route patterns so that
// per-session and per-entity URLs do not explode the metric cardinality:
// /sessions/123/points/456 becomes /sessions/{id}/points/{pid}.
func normalizePath(path string) string {
	switch path {
	case "/", "/health", "/ready", "/metrics", "/sessions":
		return path
	}

	if !strings.HasPrefix(path, "/sessions/") {
		return "other"
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	// parts[0] == "sessions", parts[1] == session ID
	switch len(parts) {
	case 2:
		return "/sessions/{id}"
	case 3:
		switch parts[2] {
		case "image", "clicks", "commands", "preview", "points", "areas",
			"ws", "reference-direction":
			return "/sessions/{id}/" + parts[2]
		}
	case 4:
		switch parts[2] {
		case "points":
			return "/sessions/{id}/points/{pid}"
		case "areas":
			return "/sessions/{id}/areas/{aid}"
		case "calibration":
			if parts[3] == "distance" || parts[3] == "origin" {
				return "/sessions/{id}/calibration/" + parts[3]
			}
		case "export":
			switch parts[3] {
			case "points.csv", "areas.csv", "snapshot":
				return "/sessions/{id}/export/" + parts[3]
			}
		}
	}
	return "other"
}
