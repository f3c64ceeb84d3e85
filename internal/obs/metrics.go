package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
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

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service reports ready, 0 otherwise.",
	})
)

// Access core metrics
var (
	accessDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Cross-branch access decisions by outcome.",
		},
		[]string{"outcome", "restriction", "resource"},
	)

	sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sessions_active",
		Help: "Sessions currently held by the registry.",
	})

	sessionsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_expired_total",
		Help: "Sessions removed by expiry cleanup.",
	})

	rateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Requests rejected by the per-branch rate limiter.",
		},
		[]string{"operation"},
	)
)

var initOnce sync.Once

// Init registers all metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration, ready,
			accessDecisions, sessionsActive, sessionsExpired, rateLimitRejections,
		)
	})
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// ObserveDecision counts a single access decision.
func ObserveDecision(outcome, restriction, resource string) {
	accessDecisions.WithLabelValues(outcome, restriction, resource).Inc()
}

// SetActiveSessions publishes the current registry size.
func SetActiveSessions(n int) {
	sessionsActive.Set(float64(n))
}

// AddExpiredSessions counts sessions removed by cleanup.
func AddExpiredSessions(n int) {
	if n > 0 {
		sessionsExpired.Add(float64(n))
	}
}

// ObserveRateLimitRejection counts a rejected request for the operation.
func ObserveRateLimitRejection(operation string) {
	rateLimitRejections.WithLabelValues(operation).Inc()
}

// Instrument measures RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
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

// CanonicalPath collapses session identifiers so metric label cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	const sessions = "/v1/sessions/"
	if !strings.HasPrefix(path, sessions) {
		return path
	}
	rest := strings.Split(strings.TrimPrefix(path, sessions), "/")
	switch {
	case len(rest) == 1 && rest[0] != "":
		return sessions + ":id"
	case len(rest) == 2 && rest[0] != "":
		switch rest[1] {
		case "operations", "report", "valid":
			return sessions + ":id/" + rest[1]
		}
	}
	return path
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
