// Package metrics wires the Session Supervisor and Event Bus into
// Prometheus, the only concrete home the retrieval pack's metrics
// dependency gets in this repository (see SPEC_FULL.md's DOMAIN STACK).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds every gauge/counter the core touches. It is created
// once per process and injected into the supervisor, each session and its
// matching engine; a session hooks its event bus's slow-subscriber
// callback up to SubscriberDisconnected.
type Collector struct {
	OrdersSubmitted   prometheus.Counter
	OrdersRejected    prometheus.Counter
	OrdersMatched     prometheus.Counter
	TradesExecuted    prometheus.Counter
	SubscriberDisconn prometheus.Counter
	ActiveSessions    prometheus.Gauge
	Subscribers       prometheus.Gauge
}

// New registers every metric against reg and returns the collector. Using
// a caller-supplied registry (rather than the global default) keeps tests
// able to construct isolated collectors without colliding on re-registration.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		OrdersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionhouse",
			Name:      "orders_submitted_total",
			Help:      "Orders submitted across all sessions.",
		}),
		OrdersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionhouse",
			Name:      "orders_rejected_total",
			Help:      "Orders rejected at validation across all sessions.",
		}),
		OrdersMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionhouse",
			Name:      "orders_matched_total",
			Help:      "Orders that received at least one fill.",
		}),
		TradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionhouse",
			Name:      "trades_executed_total",
			Help:      "Trades executed across all sessions.",
		}),
		SubscriberDisconn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionhouse",
			Name:      "subscriber_disconnects_total",
			Help:      "Subscribers disconnected for falling behind (subscriber-slow).",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sessionhouse",
			Name:      "active_sessions",
			Help:      "Sessions created by the supervisor and not yet ended.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sessionhouse",
			Name:      "subscribers",
			Help:      "Live event-bus subscribers across all sessions.",
		}),
	}
	reg.MustRegister(
		c.OrdersSubmitted, c.OrdersRejected, c.OrdersMatched,
		c.TradesExecuted, c.SubscriberDisconn, c.ActiveSessions, c.Subscribers,
	)
	return c
}

func (c *Collector) SessionCreated() { c.ActiveSessions.Inc() }
func (c *Collector) SessionEnded()   { c.ActiveSessions.Dec() }

func (c *Collector) SubscriberJoined() { c.Subscribers.Inc() }
func (c *Collector) SubscriberLeft()   { c.Subscribers.Dec() }

// SubscriberDisconnected records a subscriber dropped for falling behind
// (spec §6's "subscriber-slow" policy). userID identifies who, for the
// caller's logging; the metric itself is process-wide.
func (c *Collector) SubscriberDisconnected(userID string) {
	c.Subscribers.Dec()
	c.SubscriberDisconn.Inc()
}
