package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "engine"

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry             *prometheus.Registry
	notificationsWritten *prometheus.CounterVec
	batchCommits         *prometheus.CounterVec
	fanoutFailures       *prometheus.CounterVec
	mutations            *prometheus.CounterVec
	triggers             *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		notificationsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_written_total",
			Help:      "Notification records committed, by type.",
		}, []string{"type"}),
		batchCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_commits_total",
			Help:      "Atomic commit groups issued by the batched writer, by result.",
		}, []string{"result"}),
		fanoutFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_failures_total",
			Help:      "Swallowed notification fan-out failures, by stage.",
		}, []string{"stage"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Graph and content mutations, by operation and result.",
		}, []string{"op", "result"}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_total",
			Help:      "Post change events received, by source and result.",
		}, []string{"source", "result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.notificationsWritten,
		m.batchCommits,
		m.fanoutFailures,
		m.mutations,
		m.triggers,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) NotificationsWritten(notificationType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.notificationsWritten.WithLabelValues(notificationType).Add(float64(n))
}

func (m *Metrics) BatchCommit(err error) {
	if m == nil {
		return
	}
	m.batchCommits.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) FanoutFailure(stage string) {
	if m == nil {
		return
	}
	m.fanoutFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) Mutation(op string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, result(err)).Inc()
}

func (m *Metrics) Trigger(source string, err error) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(source, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
