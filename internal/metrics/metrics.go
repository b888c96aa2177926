// Package metrics exposes Prometheus counters for the conversation store.
// Every method is safe on a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "agentconvo"

// Metrics holds the store's collectors.
type Metrics struct {
	ConversationsCreated *prometheus.CounterVec
	MessagesAppended     *prometheus.CounterVec
	RepliesCancelled     prometheus.Counter
	SubscriberPanics     prometheus.Counter
	PersistenceFailures  *prometheus.CounterVec
	ActiveSubscriptions  prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConversationsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_created_total",
			Help:      "Conversations created, by agent.",
		}, []string{"agent"}),
		MessagesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_appended_total",
			Help:      "Messages appended, by role.",
		}, []string{"role"}),
		RepliesCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_cancelled_total",
			Help:      "Delayed replies cancelled before they were appended.",
		}),
		SubscriberPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_panics_total",
			Help:      "Subscriber callbacks that panicked during delivery.",
		}),
		PersistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Mirror failures, by operation.",
		}, []string{"op"}),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions_active",
			Help:      "Currently registered subscriber callbacks.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ConversationsCreated,
			m.MessagesAppended,
			m.RepliesCancelled,
			m.SubscriberPanics,
			m.PersistenceFailures,
			m.ActiveSubscriptions,
		)
	}
	return m
}

func (m *Metrics) ConversationCreated(agent string) {
	if m == nil {
		return
	}
	m.ConversationsCreated.WithLabelValues(agent).Inc()
}

func (m *Metrics) MessageAppended(role string) {
	if m == nil {
		return
	}
	m.MessagesAppended.WithLabelValues(role).Inc()
}

func (m *Metrics) ReplyCancelled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RepliesCancelled.Add(float64(n))
}

func (m *Metrics) SubscriberPanicked() {
	if m == nil {
		return
	}
	m.SubscriberPanics.Inc()
}

func (m *Metrics) PersistenceFailed(op string) {
	if m == nil {
		return
	}
	m.PersistenceFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) Subscribed() {
	if m == nil {
		return
	}
	m.ActiveSubscriptions.Inc()
}

func (m *Metrics) Unsubscribed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ActiveSubscriptions.Sub(float64(n))
}
