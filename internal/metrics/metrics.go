// Package metrics exposes Prometheus counters for the chat session. A nil
// *Collector is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "huddle"

// Collector groups the session counters.
type Collector struct {
	frames        *prometheus.CounterVec
	messages      *prometheus.CounterVec
	evictions     prometheus.Counter
	joinFailures  *prometheus.CounterVec
	reconnects    prometheus.Counter
	pushFailures  *prometheus.CounterVec
	subscriptions prometheus.Gauge
}

// New creates a Collector and registers it with reg. A nil reg uses a private
// registry so repeated construction in tests never panics.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames by event.",
		}, []string{"event"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_routed_total",
			Help:      "Inbound chat messages by routing disposition.",
		}, []string{"disposition"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_evictions_total",
			Help:      "Messages dropped from full realtime buffers.",
		}),
		joinFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_failures_total",
			Help:      "Failed topic joins by reason.",
		}, []string{"reason"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Successful socket reconnects.",
		}),
		pushFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_failures_total",
			Help:      "Failed request/reply pushes by event.",
		}, []string{"event"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions",
			Help:      "Channel subscriptions currently held.",
		}),
	}
	reg.MustRegister(c.frames, c.messages, c.evictions, c.joinFailures, c.reconnects, c.pushFailures, c.subscriptions)
	return c
}

// FrameReceived counts an inbound frame.
func (c *Collector) FrameReceived(event string) {
	if c == nil {
		return
	}
	c.frames.WithLabelValues(event).Inc()
}

// MessageRouted counts a routed message under disposition ("deliver", "buffer").
func (c *Collector) MessageRouted(disposition string) {
	if c == nil {
		return
	}
	c.messages.WithLabelValues(disposition).Inc()
}

// BufferEvicted counts n evicted buffer entries.
func (c *Collector) BufferEvicted(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.evictions.Add(float64(n))
}

// JoinFailed counts a failed join.
func (c *Collector) JoinFailed(reason string) {
	if c == nil {
		return
	}
	c.joinFailures.WithLabelValues(reason).Inc()
}

// Reconnected counts a successful reconnect.
func (c *Collector) Reconnected() {
	if c == nil {
		return
	}
	c.reconnects.Inc()
}

// PushFailed counts a failed push.
func (c *Collector) PushFailed(event string) {
	if c == nil {
		return
	}
	c.pushFailures.WithLabelValues(event).Inc()
}

// SetSubscriptions records the number of held subscriptions.
func (c *Collector) SetSubscriptions(n int) {
	if c == nil {
		return
	}
	c.subscriptions.Set(float64(n))
}
