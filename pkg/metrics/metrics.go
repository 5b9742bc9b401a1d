package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Packet flow metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radgate_requests_total",
			Help: "Total number of accepted RADIUS requests by server, NAS and command",
		},
		[]string{"server", "nas", "command"},
	)

	RepliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radgate_replies_total",
			Help: "Total number of RADIUS replies sent by server, NAS and command",
		},
		[]string{"server", "nas", "command"},
	)

	RetransmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radgate_retransmissions_total",
			Help: "Total number of cached replies resent to duplicate requests",
		},
		[]string{"server"},
	)

	DuplicateRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radgate_duplicate_requests_total",
			Help: "Total number of duplicate requests observed within the retention window",
		},
		[]string{"server", "nas"},
	)

	DiscardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radgate_discards_total",
			Help: "Total number of discarded requests by server and reason",
		},
		[]string{"server", "reason"},
	)

	HandlerFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radgate_handler_failures_total",
			Help: "Total number of handler callbacks that failed or panicked",
		},
		[]string{"server", "nas"},
	)

	AdmissionRefusalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radgate_admission_refusals_total",
			Help: "Total number of requests refused by the admission queue",
		},
		[]string{"server"},
	)

	// Transaction state metrics
	PendingTransactions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "radgate_pending_transactions",
			Help: "Number of in-flight transactions in the duplicate-detection table",
		},
		[]string{"server"},
	)

	// Handler execution metrics
	HandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "radgate_handler_duration_seconds",
			Help:    "Handler execution time in seconds by execution locality",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"server", "locality"},
	)

	RemoteDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radgate_remote_dispatch_total",
			Help: "Total number of requests dispatched to a remote worker node",
		},
		[]string{"server", "node"},
	)

	RemoteTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radgate_remote_timeouts_total",
			Help: "Total number of remote handler invocations that timed out",
		},
		[]string{"server", "node"},
	)

	// Node membership metrics
	NodesAdvertising = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "radgate_nodes_advertising",
			Help: "Number of live nodes currently advertising a handler module",
		},
		[]string{"module"},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RepliesTotal)
	prometheus.MustRegister(RetransmissionsTotal)
	prometheus.MustRegister(DuplicateRequestsTotal)
	prometheus.MustRegister(DiscardsTotal)
	prometheus.MustRegister(HandlerFailuresTotal)
	prometheus.MustRegister(AdmissionRefusalsTotal)
	prometheus.MustRegister(PendingTransactions)
	prometheus.MustRegister(HandlerDuration)
	prometheus.MustRegister(RemoteDispatchTotal)
	prometheus.MustRegister(RemoteTimeoutsTotal)
	prometheus.MustRegister(NodesAdvertising)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
