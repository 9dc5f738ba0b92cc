// Package metrics exports confirmer transitions to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"confirm-dialog/internal/confirm"
)

// Collector counts transitions per dialog, confirmer and outcome. It owns its
// registry so several collectors can coexist in one process.
type Collector struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	sessions    prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confirm_transitions_total",
			Help: "Confirmer state transitions by outcome.",
		}, []string{"dialog", "confirmer", "outcome"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "confirm_memory_sessions",
			Help: "Sessions held by the in-memory backend.",
		}),
	}
	reg.MustRegister(
		c.transitions,
		c.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) ObserveTransition(dialog, confirmer string, outcome confirm.Outcome) {
	c.transitions.WithLabelValues(dialog, confirmer, string(outcome)).Inc()
}

// SetSessions records the current number of in-memory sessions.
func (c *Collector) SetSessions(n int) {
	c.sessions.Set(float64(n))
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
