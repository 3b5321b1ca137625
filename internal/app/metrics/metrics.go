// Package metrics provides the Prometheus collectors exposed at /metrics
// and the instrumentation helpers the HTTP layer and domain services wrap
// around their operations.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "controlplane",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "controlplane",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "controlplane",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	compileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "controlplane",
			Subsystem: "compiler",
			Name:      "compiles_total",
			Help:      "Total number of Platform API compile attempts.",
		},
		[]string{"outcome"},
	)

	compileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "controlplane",
			Subsystem: "compiler",
			Name:      "compile_duration_seconds",
			Help:      "Duration of Platform API compiles.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"outcome"},
	)

	snapshotTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "controlplane",
			Subsystem: "snapshot",
			Name:      "assemblies_total",
			Help:      "Total number of xDS snapshot assemblies.",
		},
		[]string{"outcome"},
	)

	snapshotDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "controlplane",
			Subsystem: "snapshot",
			Name:      "assembly_duration_seconds",
			Help:      "Duration of xDS snapshot assembly.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"outcome"},
	)

	secretFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "controlplane",
			Subsystem: "secrets",
			Name:      "fetches_total",
			Help:      "Total number of secret backend fetches.",
		},
		[]string{"backend", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		compileTotal,
		compileDuration,
		snapshotTotal,
		snapshotDuration,
		secretFetchTotal,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with HTTP request-count/duration collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordCompile records the outcome and duration of a Platform API compile.
func RecordCompile(err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	compileTotal.WithLabelValues(outcome).Inc()
	compileDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordSnapshotAssembly records the outcome and duration of a snapshot
// assembly.
func RecordSnapshotAssembly(err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	snapshotTotal.WithLabelValues(outcome).Inc()
	snapshotDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordSecretFetch records a secret backend fetch outcome.
func RecordSecretFetch(backend string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	secretFetchTotal.WithLabelValues(backend, outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses path segments that look like resource IDs so the
// method/path/status cardinality of httpRequests stays bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if looksLikeID(p) {
			out = append(out, ":id")
			continue
		}
		out = append(out, p)
	}
	return "/" + strings.Join(out, "/")
}

// looksLikeID treats any segment containing a digit or a dash-joined
// identifier-style token as an opaque resource ID rather than a route name.
func looksLikeID(segment string) bool {
	if segment == "" {
		return false
	}
	hasDigit, hasDash := false, false
	for _, r := range segment {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r == '-':
			hasDash = true
		}
	}
	return hasDigit || hasDash
}
