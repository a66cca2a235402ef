package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTP holds per-request collectors fed by the HTTP middleware.
type HTTP struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTP(reg prometheus.Registerer) *HTTP {
	h := &HTTP{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"method", "path"}),
	}
	reg.MustRegister(h.requests, h.duration)
	return h
}

// Observe records one finished request. path should be the matched route, not
// the raw URL, to keep label cardinality bounded.
func (h *HTTP) Observe(method, path string, status int, seconds float64) {
	if h == nil {
		return
	}
	h.requests.WithLabelValues(method, path, statusLabel(status)).Inc()
	h.duration.WithLabelValues(method, path).Observe(seconds)
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}
