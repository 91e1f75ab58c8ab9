package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors exported across the matching,
// journal, and hedge subsystems. The teacher has no metrics layer of its
// own; this is grounded in prometheus/client_golang being an indirect
// dependency already pulled in by the libp2p stack in the examples pack,
// promoted here to a direct, intentionally-used dependency.
type Metrics struct {
	Registry *prometheus.Registry

	EventRingDropped  prometheus.Counter
	NetExposure       *prometheus.GaugeVec
	HedgeFailures     prometheus.Counter
	HedgeAttempts     prometheus.Counter
	MatchLatency      prometheus.Histogram
	OrdersSubmitted   *prometheus.CounterVec
	OrdersRejected    *prometheus.CounterVec
}

// NewMetrics builds and registers every collector against a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		EventRingDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: "journal",
			Name:      "ring_dropped_total",
			Help:      "Events dropped because the journal ring was full when the matching engine pushed.",
		}),
		NetExposure: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "exchange",
			Subsystem: "hedge",
			Name:      "net_exposure",
			Help:      "Current internal net exposure per symbol, in micro-lots.",
		}, []string{"symbol"}),
		HedgeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: "hedge",
			Name:      "failures_total",
			Help:      "Hedge orders that the external venue rejected or could not reach.",
		}),
		HedgeAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: "hedge",
			Name:      "attempts_total",
			Help:      "Hedge orders issued to the external venue, successful or not.",
		}),
		MatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "exchange",
			Subsystem: "matching",
			Name:      "submit_latency_seconds",
			Help:      "Wall-clock time spent inside Engine.Submit, including the serialized region lock wait.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 16),
		}),
		OrdersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: "matching",
			Name:      "orders_submitted_total",
			Help:      "Orders accepted by Engine.Submit, by symbol and kind.",
		}, []string{"symbol", "kind"}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Subsystem: "matching",
			Name:      "orders_rejected_total",
			Help:      "Orders rejected by Engine.Submit, by symbol and reason code.",
		}, []string{"symbol", "code"}),
	}

	reg.MustRegister(
		m.EventRingDropped, m.NetExposure, m.HedgeFailures, m.HedgeAttempts,
		m.MatchLatency, m.OrdersSubmitted, m.OrdersRejected,
	)
	return m
}
