package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// BackendRequests counts calls made against the external authorization backend.
	BackendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_backend_requests_total",
			Help: "Requests issued to the authorization backend, by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	// BackendRequestDuration observes latency of authorization backend calls.
	BackendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authz_backend_request_duration_seconds",
			Help:    "Authorization backend call latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// AdminLogins counts service-account logins against the backend.
	AdminLogins = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_admin_logins_total",
		Help: "Service-account logins performed against the authorization backend.",
	})

	// SessionCacheHits counts admin-session lookups answered from cache.
	SessionCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_session_cache_hits_total",
		Help: "Admin session lookups served without a network call.",
	})

	// PolicyPushes counts policy upserts by outcome (updated, created, failed).
	PolicyPushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_policy_pushes_total",
			Help: "Policy upserts against the authorization backend, by outcome.",
		},
		[]string{"outcome"},
	)

	// CleanupTasks counts background cleanup task executions.
	CleanupTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleanup_tasks_total",
			Help: "Background cleanup task executions, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		BackendRequests, BackendRequestDuration,
		AdminLogins, SessionCacheHits,
		PolicyPushes, CleanupTasks,
	)
}

// Handler exposes the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps an HTTP handler with request count/latency/in-flight metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for labeling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
