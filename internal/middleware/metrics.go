package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dupaboard_http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		},
		[]string{"route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dupaboard_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	rateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dupaboard_rate_limiter_allowed_total",
			Help: "Requests let through by the rate limiter",
		},
		[]string{"scope"},
	)
	rateLimitBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dupaboard_rate_limiter_blocked_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"scope"},
	)
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, rateLimitAllowed, rateLimitBlocked)
}

// Metrics records every request against the mux pattern that serves it,
// so ids in paths do not explode label cardinality.
type Metrics struct {
	mux *http.ServeMux
}

func NewMetrics(mux *http.ServeMux) *Metrics {
	return &Metrics{mux: mux}
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if _, pattern := m.mux.Handler(r); pattern != "" {
			route = pattern
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
