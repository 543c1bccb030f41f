package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the gateway. A nil
// *Metrics records nothing, which keeps package tests free of global
// registry collisions.
type Metrics struct {
	PacketsTotal      *prometheus.CounterVec
	DispatchesTotal   *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
	ActiveRestricted  prometheus.Gauge
	QueueDepth        prometheus.Gauge
	BouncerDrops      prometheus.Counter
	InferenceErrors   prometheus.Counter
	InferenceDuration prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		PacketsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Inbound packets by routed outcome.",
		}, []string{"route"}),
		DispatchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Emergency dispatches by trigger.",
		}, []string{"trigger"}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_triage_sessions",
			Help:      "Number of open triage sessions.",
		}),
		ActiveRestricted: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_restrictions",
			Help:      "Number of active sender lockouts.",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "work_queue_depth",
			Help:      "Items waiting for an inference worker.",
		}),
		BouncerDrops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bouncer_drops_total",
			Help:      "Messages bounced because the work queue was saturated.",
		}),
		InferenceErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_errors_total",
			Help:      "Inference calls that degraded to the fallback reply.",
		}),
		InferenceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Wall time of inference calls.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30},
		}),
	}
}

func (m *Metrics) IncPackets(route string) {
	if m == nil {
		return
	}
	m.PacketsTotal.WithLabelValues(route).Inc()
}

func (m *Metrics) IncDispatch(trigger string) {
	if m == nil {
		return
	}
	m.DispatchesTotal.WithLabelValues(trigger).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) SetActiveRestricted(n int) {
	if m == nil {
		return
	}
	m.ActiveRestricted.Set(float64(n))
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) IncBouncerDrop() {
	if m == nil {
		return
	}
	m.BouncerDrops.Inc()
}

func (m *Metrics) IncInferenceError() {
	if m == nil {
		return
	}
	m.InferenceErrors.Inc()
}

func (m *Metrics) ObserveInference(seconds float64) {
	if m == nil {
		return
	}
	m.InferenceDuration.Observe(seconds)
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
