package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamware/ringcache/internal/dispatcher"
)

// Dispatcher implements dispatcher.Metrics.
type Dispatcher struct {
	requests      *prometheus.CounterVec
	replications  *prometheus.CounterVec
	announcements *prometheus.CounterVec
	removals      prometheus.Counter
	members       prometheus.Gauge
}

// NewDispatcher registers the dispatcher metrics with reg
// (nil => prometheus.DefaultRegisterer) under subsystem "dispatcher".
func NewDispatcher(reg prometheus.Registerer, ns string) *Dispatcher {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	d := &Dispatcher{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "dispatcher",
			Name:      "requests_total",
			Help:      "Client requests by command and outcome",
		}, []string{"command", "outcome"}),
		replications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "dispatcher",
			Name:      "replications_total",
			Help:      "Requests forwarded to a successor, by command and outcome",
		}, []string{"command", "outcome"}),
		announcements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "dispatcher",
			Name:      "announcements_total",
			Help:      "Node announcements received, by result",
		}, []string{"result"}),
		removals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "dispatcher",
			Name:      "health_removals_total",
			Help:      "Nodes removed from the ring by the health monitor",
		}),
		members: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "dispatcher",
			Name:      "ring_members",
			Help:      "Current ring members",
		}),
	}
	reg.MustRegister(d.requests, d.replications, d.announcements, d.removals, d.members)
	return d
}

func (d *Dispatcher) Request(command, outcome string) {
	d.requests.WithLabelValues(command, outcome).Inc()
}

func (d *Dispatcher) Replication(command, outcome string) {
	d.replications.WithLabelValues(command, outcome).Inc()
}

func (d *Dispatcher) Announcement(result string) {
	d.announcements.WithLabelValues(result).Inc()
}

func (d *Dispatcher) Removal() { d.removals.Inc() }

func (d *Dispatcher) Members(n int) { d.members.Set(float64(n)) }

var _ dispatcher.Metrics = (*Dispatcher)(nil)
