// Package metrics exposes Prometheus collectors for the bot.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "valuesreport"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry         *prometheus.Registry
	events           *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	accessChecks     *prometheus.CounterVec
	sections         *prometheus.CounterVec
	narrativeSeconds prometheus.Histogram
	delivered        prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_total",
			Help: "Inbound conversation events by kind.",
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "transitions_total",
			Help: "Conversation state transitions.",
		}, []string{"from", "to"}),
		accessChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "access_checks_total",
			Help: "Access code verifications by result.",
		}, []string{"result"}),
		sections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "narrative_sections_total",
			Help: "Generated report sections by result.",
		}, []string{"result"}),
		narrativeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "narrative_seconds",
			Help:    "Time to generate one report section, retries included.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120, 180},
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reports_delivered_total",
			Help: "Reports sent to users.",
		}),
	}
	m.registry.MustRegister(
		m.events, m.transitions, m.accessChecks, m.sections, m.narrativeSeconds, m.delivered,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveEvent(kind string) { m.events.WithLabelValues(kind).Inc() }

func (m *Metrics) ObserveTransition(from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveAccess(result string) { m.accessChecks.WithLabelValues(result).Inc() }

func (m *Metrics) ObserveDelivered() { m.delivered.Inc() }

// ObserveSection matches services.SectionObserver.
func (m *Metrics) ObserveSection(_ string, ok bool, elapsed time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.sections.WithLabelValues(result).Inc()
	m.narrativeSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
