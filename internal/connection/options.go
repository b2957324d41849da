package connection

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/huddle/internal/metrics"
	"github.com/zjrosen/huddle/internal/tracing"
)

// Defaults.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultPushTimeout       = 10 * time.Second
)

// DefaultBackoff is the reconnect schedule; the last step repeats forever.
var DefaultBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second}

// Options configures a Socket. Transport is required.
type Options struct {
	Transport         Transport
	Backoff           []time.Duration
	HeartbeatInterval time.Duration
	PushTimeout       time.Duration
	Tracer            trace.Tracer
	Metrics           *metrics.Collector
}

func (o Options) withDefaults() Options {
	if len(o.Backoff) == 0 {
		o.Backoff = DefaultBackoff
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.PushTimeout <= 0 {
		o.PushTimeout = DefaultPushTimeout
	}
	if o.Tracer == nil {
		o.Tracer = tracing.Noop()
	}
	return o
}

// BackoffFor returns the delay before reconnect attempt n (0-based). Past the
// end of the schedule the last step is held.
func BackoffFor(schedule []time.Duration, attempt int) time.Duration {
	if len(schedule) == 0 {
		schedule = DefaultBackoff
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(schedule) {
		return schedule[len(schedule)-1]
	}
	return schedule[attempt]
}
