package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "liveness"

var (
	Registry = prometheus.NewRegistry()

	// ---- Off-chain worker ----
	WorkerRounds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_rounds_total",
			Help:      "Worker ticks by outcome (skipped, lost, submitted, failed).",
		},
		[]string{"outcome"},
	)

	SubmitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "heartbeat_submit_duration_seconds",
			Help:      "Latency of building, signing and submitting a heartbeat.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
		},
	)

	// ---- Ledger ----
	Admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Unsigned heartbeat admission decisions by result.",
		},
		[]string{"result"},
	)

	HeartbeatsRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_recorded_total",
			Help:      "Heartbeats written to the ledger.",
		},
	)

	CurrentSession = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_index",
			Help:      "Current session index.",
		},
	)

	// ---- Offences ----
	OffencesReported = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offences_reported_total",
			Help:      "Unresponsiveness offences forwarded to the reporter.",
		},
	)

	Offenders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "offenders",
			Help:      "Number of offenders in the last reported offence.",
		},
	)

	SlashFraction = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slash_fraction_perbill",
			Help:      "Slash fraction of the last reported offence, in parts per billion.",
		},
	)

	// ---- HTTP ----
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"op", "status"},
	)

	// ---- Process / build info ----
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version).",
		},
		[]string{"version"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		WorkerRounds, SubmitDuration,
		Admissions, HeartbeatsRecorded, CurrentSession,
		OffencesReported, Offenders, SlashFraction,
		RequestsTotal, buildInfo, uptime,
	)
}

// MetricsHandler exposes /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func SetBuildInfo(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an http.Handler to count requests under the provided "op" label.
func Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)
		RequestsTotal.WithLabelValues(op, strconv.Itoa(sw.status/100)+"xx").Inc()
	})
}
