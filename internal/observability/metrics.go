package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Frame and unit label values.
const (
	RoleSender   = "sender"
	RoleReceiver = "receiver"

	KindData          = "data"
	KindRetransmit    = "retransmit"
	KindAck           = "ack"
	KindAckResend     = "ack_resend"
	ReasonCorrupt     = "corrupt"
	ReasonStale       = "stale"
	ReasonIdle        = "idle"
	ReasonUndecodable = "undecodable"

	OutcomeAccepted  = "accepted"
	OutcomeDropped   = "dropped"
	OutcomeAcked     = "acked"
	OutcomeDelivered = "delivered"
)

var (
	registerOnce sync.Once

	framesTransmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "altbit",
			Subsystem: "arq",
			Name:      "frames_transmitted_total",
			Help:      "Frames handed to the link.",
		},
		[]string{"role", "kind"},
	)
	framesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "altbit",
			Subsystem: "arq",
			Name:      "frames_rejected_total",
			Help:      "Inbound frames rejected without state change.",
		},
		[]string{"role", "reason"},
	)
	units = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "altbit",
			Subsystem: "arq",
			Name:      "units_total",
			Help:      "Application units by outcome.",
		},
		[]string{"role", "outcome"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "altbit",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "altbit",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesTransmitted, framesRejected, units, httpRequests, httpDuration)
	})
}

func RecordTransmit(role, kind string) {
	RegisterMetrics()
	framesTransmitted.WithLabelValues(role, kind).Inc()
}

func RecordReject(role, reason string) {
	RegisterMetrics()
	framesRejected.WithLabelValues(role, reason).Inc()
}

func RecordUnit(role, outcome string) {
	RegisterMetrics()
	units.WithLabelValues(role, outcome).Inc()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
