package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ActiveGenerations   prometheus.Gauge
	GenerationEvents    *prometheus.CounterVec
	StreamUnits         *prometheus.CounterVec
	ProviderErrors      *prometheus.CounterVec
	GenerationDuration  *prometheus.HistogramVec
	FirstChunkLatency   prometheus.Histogram
	PersistenceFailures *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveGenerations: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_generations",
			Help:      "Number of applications with a generation in flight.",
		}),
		GenerationEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_events_total",
			Help:      "Generation lifecycle events by type.",
		}, []string{"event"}),
		StreamUnits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_units_total",
			Help:      "Provider output units forwarded to clients by task kind and unit type.",
		}, []string{"kind", "unit"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and retryability.",
		}, []string{"provider", "retryable"}),
		GenerationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time from registration to terminal state.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),
		FirstChunkLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_chunk_latency_ms",
			Help:      "Latency to the first forwarded provider chunk in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}),
		PersistenceFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Failed history or artifact writes by operation.",
		}, []string{"op"}),
	}
}

func (m *Metrics) ObserveGenerationEvent(event string) {
	if m == nil {
		return
	}
	m.GenerationEvents.WithLabelValues(event).Inc()
}

// GenerationRegistered and GenerationReleased move the active gauge. Each
// registration is released exactly once, by whichever path removes it.
func (m *Metrics) GenerationRegistered() {
	if m == nil {
		return
	}
	m.ActiveGenerations.Inc()
}

func (m *Metrics) GenerationReleased() {
	if m == nil {
		return
	}
	m.ActiveGenerations.Dec()
}

func (m *Metrics) ObserveStreamUnit(kind, unit string) {
	if m == nil {
		return
	}
	m.StreamUnits.WithLabelValues(kind, unit).Inc()
}

func (m *Metrics) ObserveProviderError(provider string, retryable bool) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, strconv.FormatBool(retryable)).Inc()
}

func (m *Metrics) ObserveGenerationDuration(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.GenerationDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) ObserveFirstChunkLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.FirstChunkLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObservePersistenceFailure(op string) {
	if m == nil {
		return
	}
	m.PersistenceFailures.WithLabelValues(op).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
