// Package metrics holds the prometheus collectors shared by the command
// handlers and the per-party loops. A Collector is created once at startup
// and passed by reference; nothing here is package-level state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "partybot"

type Collector struct {
	registry *prometheus.Registry

	commands         *prometheus.CounterVec
	signals          *prometheus.CounterVec
	reclaimTicks     *prometheus.CounterVec
	reclaimed        prometheus.Counter
	teardownFailures *prometheus.CounterVec
	storeRetries     prometheus.Counter
	actuatorRetries  *prometheus.CounterVec
	activeParties    prometheus.Gauge
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newCollector(reg)
}

// NewUnregistered builds a Collector on a private registry without the
// runtime collectors. Tests use it to keep assertions exact.
func NewUnregistered() *Collector {
	return newCollector(prometheus.NewRegistry())
}

func newCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		registry: reg,
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Chat command invocations by command and outcome.",
		}, []string{"command", "outcome"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Membership signals by kind and outcome.",
		}, []string{"kind", "outcome"}),
		reclaimTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reclaim_ticks_total",
			Help:      "Reclamation ticks by phase.",
		}, []string{"phase"}),
		reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parties_reclaimed_total",
			Help:      "Parties torn down after their countdown expired.",
		}),
		teardownFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "teardown_failures_total",
			Help:      "Teardown steps that failed after retries, by step.",
		}, []string{"step"}),
		storeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_retries_total",
			Help:      "Store operations retried after a transient failure or version conflict.",
		}),
		actuatorRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuator_retries_total",
			Help:      "Platform calls retried, by operation.",
		}, []string{"op"}),
		activeParties: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_parties",
			Help:      "Parties with running lifecycle loops.",
		}),
	}

	reg.MustRegister(
		c.commands,
		c.signals,
		c.reclaimTicks,
		c.reclaimed,
		c.teardownFailures,
		c.storeRetries,
		c.actuatorRetries,
		c.activeParties,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) CommandInvoked(command, outcome string) {
	if c == nil {
		return
	}
	c.commands.WithLabelValues(command, outcome).Inc()
}

func (c *Collector) SignalHandled(kind, outcome string) {
	if c == nil {
		return
	}
	c.signals.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) ReclaimTick(phase string) {
	if c == nil {
		return
	}
	c.reclaimTicks.WithLabelValues(phase).Inc()
}

func (c *Collector) PartyReclaimed() {
	if c == nil {
		return
	}
	c.reclaimed.Inc()
}

func (c *Collector) TeardownFailed(step string) {
	if c == nil {
		return
	}
	c.teardownFailures.WithLabelValues(step).Inc()
}

func (c *Collector) StoreRetried() {
	if c == nil {
		return
	}
	c.storeRetries.Inc()
}

func (c *Collector) ActuatorRetried(op string) {
	if c == nil {
		return
	}
	c.actuatorRetries.WithLabelValues(op).Inc()
}

func (c *Collector) PartyStarted() {
	if c == nil {
		return
	}
	c.activeParties.Inc()
}

func (c *Collector) PartyStopped() {
	if c == nil {
		return
	}
	c.activeParties.Dec()
}
