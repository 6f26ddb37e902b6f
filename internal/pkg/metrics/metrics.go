// Package metrics exposes the Prometheus collectors of the query service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"filings-rag-be/pkg/graph"
)

type Metrics struct {
	registry *prometheus.Registry

	nodeVisits     *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	routeDecisions *prometheus.CounterVec
	invocations    *prometheus.CounterVec
	invokeDuration prometheus.Histogram
}

// New registers every collector on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		nodeVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_node_visits_total",
				Help: "Workflow node visits by node and outcome",
			},
			[]string{"node", "outcome"},
		),
		nodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rag_node_duration_seconds",
				Help:    "Workflow node duration",
				Buckets: []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"node"},
		),
		routeDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_route_decisions_total",
				Help: "Routing decisions of completed invocations",
			},
			[]string{"route"},
		),
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_invocations_total",
				Help: "Workflow invocations by outcome",
			},
			[]string{"outcome"},
		),
		invokeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rag_invocation_duration_seconds",
				Help:    "End-to-end invocation duration",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),
	}
	m.registry.MustRegister(
		m.nodeVisits,
		m.nodeDuration,
		m.routeDecisions,
		m.invocations,
		m.invokeDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// NodeObserver records every node visit of a workflow execution.
func (m *Metrics) NodeObserver() graph.Observer {
	return func(ev graph.Event) {
		outcome := "ok"
		if ev.Err != nil {
			outcome = "error"
		}
		m.nodeVisits.WithLabelValues(ev.Node, outcome).Inc()
		m.nodeDuration.WithLabelValues(ev.Node).Observe(ev.Duration.Seconds())
	}
}

// ObserveInvocation records one finished invocation. route is ignored for
// failed invocations.
func (m *Metrics) ObserveInvocation(route string, err error, d time.Duration) {
	if err != nil {
		m.invocations.WithLabelValues("error").Inc()
		return
	}
	m.invocations.WithLabelValues("ok").Inc()
	if route == "" {
		route = "unknown"
	}
	m.routeDecisions.WithLabelValues(route).Inc()
	m.invokeDuration.Observe(d.Seconds())
}

// TrackActiveSessions exports fn as the rag_active_sessions gauge.
func (m *Metrics) TrackActiveSessions(fn func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "rag_active_sessions", Help: "Sessions held in memory"},
		func() float64 { return float64(fn()) },
	))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
