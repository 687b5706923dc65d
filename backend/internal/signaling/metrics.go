package signaling

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "pairlink"

type metrics struct {
	joins   *prometheus.CounterVec
	relayed prometheus.Counter
	dropped prometheus.Counter
}

// WithPrometheus registers the hub's collectors on reg.
func WithPrometheus(reg *prometheus.Registry) Option {
	return func(h *Hub) {
		if reg == nil {
			return
		}
		h.metrics = &metrics{
			joins: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "signaling",
				Name:      "joins_total",
				Help:      "room join requests by result",
			}, []string{"result"}),
			relayed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "signaling",
				Name:      "relayed_total",
				Help:      "messages relayed to a room peer",
			}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "signaling",
				Name:      "dropped_total",
				Help:      "messages dropped for lack of a room peer",
			}),
		}
		reg.MustRegister(
			h.metrics.joins,
			h.metrics.relayed,
			h.metrics.dropped,
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "signaling",
				Name:      "rooms",
				Help:      "live rooms",
			}, func() float64 {
				return float64(h.registry.Len())
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "signaling",
				Name:      "clients",
				Help:      "connected clients",
			}, func() float64 {
				return float64(h.connected.Load())
			}),
		)
	}
}

func (m *metrics) join(r JoinResult) {
	if m == nil {
		return
	}
	m.joins.WithLabelValues(r.String()).Inc()
}

func (m *metrics) relay() {
	if m == nil {
		return
	}
	m.relayed.Inc()
}

func (m *metrics) drop() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}
