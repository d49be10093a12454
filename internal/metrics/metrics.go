package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the image service
type Metrics struct {
	// Generation metrics
	Generations       *prometheus.CounterVec
	GenerationLatency *prometheus.HistogramVec
	InFlight          prometheus.Gauge

	// Recall outcomes by final state
	Recalls *prometheus.CounterVec

	// Payload kinds returned by providers (base64 / url)
	Payloads *prometheus.CounterVec
}

// New registers the collectors on reg; pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Generations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "artjournal_generations_total",
			Help: "Total number of image generations by format and outcome",
		}, []string{"format", "outcome"}),

		// 生图请求可能持续数分钟
		GenerationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "artjournal_generation_duration_seconds",
			Help:    "Image generation latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"format"}),

		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "artjournal_generations_in_flight",
			Help: "Number of image generations currently running",
		}),

		Recalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "artjournal_recalls_total",
			Help: "Total number of finished auto recalls by final state",
		}, []string{"state"}),

		Payloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "artjournal_payloads_total",
			Help: "Generated image payloads by kind and extraction strategy",
		}, []string{"kind", "strategy"}),
	}
}

// ObserveGeneration records one finished generation. Safe on a nil receiver.
func (m *Metrics) ObserveGeneration(format, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Generations.WithLabelValues(format, outcome).Inc()
	m.GenerationLatency.WithLabelValues(format).Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePayload(kind, strategy string) {
	if m == nil {
		return
	}
	if strategy == "" {
		strategy = "structured"
	}
	m.Payloads.WithLabelValues(kind, strategy).Inc()
}

func (m *Metrics) ObserveRecall(state string) {
	if m == nil {
		return
	}
	m.Recalls.WithLabelValues(state).Inc()
}

// Track increments the in-flight gauge and returns the matching decrement.
func (m *Metrics) Track() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}
