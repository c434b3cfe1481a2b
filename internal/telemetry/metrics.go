package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zephyrgraph",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"op", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "zephyrgraph",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests.",
			// 1ms .. ~4s
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"op"},
	)

	InFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "zephyrgraph",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
		[]string{"op"},
	)

	// ---- Gossip ----
	GossipSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zephyrgraph",
			Subsystem: "gossip",
			Name:      "sends_total",
			Help:      "Peer sends by message kind and outcome.",
		},
		[]string{"kind", "result"},
	)

	Merges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zephyrgraph",
			Subsystem: "gossip",
			Name:      "merges_total",
			Help:      "Inbound merge envelopes by outcome (applied, duplicate, malformed).",
		},
		[]string{"result"},
	)

	// ---- Core actor / replica state ----
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "zephyrgraph",
			Subsystem: "node",
			Name:      "queue_depth",
			Help:      "Commands waiting for the core actor.",
		},
	)

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zephyrgraph",
			Subsystem: "node",
			Name:      "commands_total",
			Help:      "Commands processed by the core actor.",
		},
		[]string{"op", "status"},
	)

	GraphVertices = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "zephyrgraph",
			Subsystem: "graph",
			Name:      "vertices",
			Help:      "Vertices currently present in the local replica.",
		},
	)

	GraphEdges = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "zephyrgraph",
			Subsystem: "graph",
			Name:      "edges",
			Help:      "Edges currently present in the local replica.",
		},
	)

	ClusterPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "zephyrgraph",
			Subsystem: "cluster",
			Name:      "peers",
			Help:      "Addresses in the membership table.",
		},
	)

	// ---- Process / build info ----
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "zephyrgraph",
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version and git_sha).",
		},
		[]string{"version", "git_sha"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "zephyrgraph",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		RequestsTotal, RequestDuration, InFlight,
		GossipSends, Merges,
		QueueDepth, CommandsTotal, GraphVertices, GraphEdges, ClusterPeers,
		buildInfo, uptime,
	)
}

// MetricsHandler exposes /metrics. Mount it with mux.Handle("/metrics", telemetry.MetricsHandler()).
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup, e.g. with ldflags-provided values.
func SetBuildInfo(version, gitSHA string) {
	buildInfo.WithLabelValues(version, gitSHA).Set(1)
}

// ---- Middleware instrumentation ----

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an http.Handler to record metrics under the provided "op" label.
// Example:
//
//	mux.Handle("GET /add_vertex/{u}", telemetry.Instrument("add_vertex", http.HandlerFunc(h.addVertex)))
func Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()

		InFlight.WithLabelValues(op).Inc()
		defer InFlight.WithLabelValues(op).Dec()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(op, class).Inc()
		RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}
