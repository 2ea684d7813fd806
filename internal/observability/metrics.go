package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalrelay",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vitalrelay",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	decoderBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalrelay",
			Subsystem: "decoder",
			Name:      "bytes_total",
			Help:      "Sensor bytes read, by outcome.",
		},
		[]string{"outcome"},
	)
	decoderFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalrelay",
			Subsystem: "decoder",
			Name:      "frames_total",
			Help:      "Frames leaving the decoder, by status.",
		},
		[]string{"status"},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vitalrelay",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Deliveries waiting for the relay.",
		},
	)
	queueEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vitalrelay",
			Subsystem: "queue",
			Name:      "evictions_total",
			Help:      "Deliveries dropped because the queue was full.",
		},
	)
	relaySent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vitalrelay",
			Subsystem: "relay",
			Name:      "sent_total",
			Help:      "Deliveries written to the relay.",
		},
	)
	relayFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitalrelay",
			Subsystem: "relay",
			Name:      "failures_total",
			Help:      "Relay transport failures, by stage.",
		},
		[]string{"stage"},
	)
	relayConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vitalrelay",
			Subsystem: "relay",
			Name:      "connected",
			Help:      "1 while a relay connection is open.",
		},
	)
	relayBackoff = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vitalrelay",
			Subsystem: "relay",
			Name:      "backoff_seconds",
			Help:      "Reconnect backoff delays.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 30, 60},
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			decoderBytes, decoderFrames,
			queueDepth, queueEvictions,
			relaySent, relayFailures, relayConnected, relayBackoff,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordBytes counts sensor bytes; accepted=false means the buffer was full
// and they were dropped.
func RecordBytes(n int, accepted bool) {
	RegisterMetrics()
	outcome := "accepted"
	if !accepted {
		outcome = "dropped"
	}
	decoderBytes.WithLabelValues(outcome).Add(float64(n))
}

func RecordFrame(status string) {
	RegisterMetrics()
	decoderFrames.WithLabelValues(status).Inc()
}

func RecordQueue(depth int, evicted bool) {
	RegisterMetrics()
	queueDepth.Set(float64(depth))
	if evicted {
		queueEvictions.Inc()
	}
}

func RecordRelaySent(depth int) {
	RegisterMetrics()
	relaySent.Inc()
	queueDepth.Set(float64(depth))
}

func RecordRelayFailure(stage string, backoff time.Duration) {
	RegisterMetrics()
	relayFailures.WithLabelValues(stage).Inc()
	relayBackoff.Observe(backoff.Seconds())
}

func SetRelayConnected(connected bool) {
	RegisterMetrics()
	if connected {
		relayConnected.Set(1)
		return
	}
	relayConnected.Set(0)
}
