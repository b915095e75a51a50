package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andresmejia3/rotisserie/internal/types"
)

// Metrics records extraction outcomes on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	extractions *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rotisserie",
			Name:      "extractions_total",
			Help:      "Extractions by title and outcome.",
		}, []string{"title", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rotisserie",
			Name:      "extraction_seconds",
			Help:      "Time spent resolving, capturing and classifying.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"title"}),
	}
	m.registry.MustRegister(m.extractions, m.latency)
	return m
}

// Observe matches extraction.Observer.
func (m *Metrics) Observe(t types.Title, outcome string, took time.Duration) {
	m.extractions.WithLabelValues(string(t), outcome).Inc()
	m.latency.WithLabelValues(string(t)).Observe(took.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
