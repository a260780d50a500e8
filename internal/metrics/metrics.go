// Package metrics holds the prometheus collectors of the sync server.
// Collectors are registered on an injected registry so tests can use a
// fresh one each time.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "uki"

// Broadcast reasons.
const (
	ReasonCommand   = "command"
	ReasonHeartbeat = "heartbeat"
	ReasonJoin      = "join"
)

type Metrics struct {
	CommandsApplied  *prometheus.CounterVec
	CommandsRejected *prometheus.CounterVec
	Broadcasts       *prometheus.CounterVec
	SendFailures     prometheus.Counter
	Connections      prometheus.Gauge
	JournalDropped   prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommandsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_applied_total",
			Help:      "Commands applied to the authoritative state.",
		}, []string{"actuator", "field"}),
		CommandsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_rejected_total",
			Help:      "Commands rejected by validation.",
		}, []string{"field"}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "State broadcasts by reason.",
		}, []string{"reason"}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_send_failures_total",
			Help:      "Per-connection sends that failed during a broadcast.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Currently registered client connections.",
		}),
		JournalDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_dropped_total",
			Help:      "Journal entries dropped because the buffer was full.",
		}),
	}
	reg.MustRegister(
		m.CommandsApplied,
		m.CommandsRejected,
		m.Broadcasts,
		m.SendFailures,
		m.Connections,
		m.JournalDropped,
	)
	return m
}

// NewRegistry creates a registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
