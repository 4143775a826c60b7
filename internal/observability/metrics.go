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
	ActiveCalls    prometheus.Gauge
	CallEvents     *prometheus.CounterVec
	WSMessages     *prometheus.CounterVec
	ProviderErrors *prometheus.CounterVec
	FramesDropped  prometheus.Counter
	InjectedDelay  prometheus.Histogram
	PoolRemaining  prometheus.Gauge

	// Window keeps the rolling per-stage latencies served by the
	// latency stats endpoint.
	Window *LatencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveCalls: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of connected media sessions.",
		}),
		CallEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_events_total",
			Help:      "Call lifecycle events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caller_frames_dropped_total",
			Help:      "Caller audio frames dropped while the turn gate was closed.",
		}),
		InjectedDelay: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "injected_delay_seconds",
			Help:      "Synthetic response delay applied per turn in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 3, 5, 7, 10},
		}),
		PoolRemaining: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "call_numbers_remaining",
			Help:      "Unissued call numbers left in the pool.",
		}),
		Window: NewLatencyWindow(256),
	}
}

// ObserveInjectedDelay records one synthetic hold, in the histogram and in
// the rolling window.
func (m *Metrics) ObserveInjectedDelay(d time.Duration) {
	m.InjectedDelay.Observe(d.Seconds())
	m.Window.Observe(StageInjectedDelay, float64(d.Milliseconds()))
}

// ObserveStage records a pipeline stage duration in the rolling window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.Window.Observe(stage, float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
