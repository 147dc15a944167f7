package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	AuthRejections    *prometheus.CounterVec
	CoherenceVerdicts *prometheus.CounterVec
	BargeIns          *prometheus.CounterVec
	ReconnectAttempts prometheus.Counter
	BargeInConfirmMS  prometheus.Histogram

	stages *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live tutoring voice sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		AuthRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejections_total",
			Help:      "Rejected session validations by reason.",
		}, []string{"reason"}),
		CoherenceVerdicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coherence_verdicts_total",
			Help:      "Coherence gate verdicts by reason.",
		}, []string{"reason"}),
		BargeIns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barge_ins_total",
			Help:      "Barge-in candidates by outcome.",
		}, []string{"outcome"}),
		ReconnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnection attempts scheduled by the supervisor.",
		}),
		BargeInConfirmMS: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "barge_in_confirm_ms",
			Help:      "Time from duck to confirmed speaker transfer in milliseconds.",
			Buckets:   []float64{50, 100, 200, 350, 500, 700, 900, 1200},
		}),
		stages: newStageWindow(0),
	}
}

func (m *Metrics) ObserveBargeInConfirm(d time.Duration) {
	m.BargeInConfirmMS.Observe(float64(d.Milliseconds()))
	m.ObserveStage(StageDuckToConfirm, d)
}

// ObserveStage records one latency sample in the rolling perf window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stages.Observe(stage, float64(d.Microseconds())/1000)
}

// ObserveIndicator bumps a named perf-window occurrence counter.
func (m *Metrics) ObserveIndicator(name string) {
	m.stages.ObserveIndicator(name)
}

// SnapshotStages summarizes the rolling perf window.
func (m *Metrics) SnapshotStages() StageSnapshot {
	return m.stages.Snapshot()
}

// ResetStages clears the rolling perf window.
func (m *Metrics) ResetStages() {
	m.stages.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
