package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/huddle/internal/chat"
	"github.com/zjrosen/huddle/internal/connection"
	"github.com/zjrosen/huddle/internal/flags"
	"github.com/zjrosen/huddle/internal/metrics"
	"github.com/zjrosen/huddle/internal/tracing"
)

// Defaults.
const (
	DefaultHistoryLimit   = 50
	DefaultTypingInterval = 2 * time.Second
	DefaultRosterTTL      = 5 * time.Minute
	teardownTimeout       = 2 * time.Second
)

// HistoryAPI is the HTTP surface the session reads history and rosters from.
// *api.Client implements it.
type HistoryAPI interface {
	FetchMessages(ctx context.Context, slug string, limit int, before string) ([]chat.Message, error)
	FetchSubscribers(ctx context.Context, slug string) ([]chat.Subscriber, error)
}

// Options configures a Session. Transport and API are required.
type Options struct {
	ServerURL string
	Token     string
	// Username is used when the token does not name the user.
	Username string

	Transport connection.Transport
	API       HistoryAPI

	HistoryLimit      int
	BufferSize        int
	PushTimeout       time.Duration
	HeartbeatInterval time.Duration
	Backoff           []time.Duration
	// TypingInterval throttles typing:start per channel. Negative disables it.
	TypingInterval time.Duration
	RosterTTL      time.Duration

	Flags   *flags.Registry
	Tracer  trace.Tracer
	Metrics *metrics.Collector
}

func (o Options) withDefaults() Options {
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.TypingInterval == 0 {
		o.TypingInterval = DefaultTypingInterval
	}
	if o.RosterTTL <= 0 {
		o.RosterTTL = DefaultRosterTTL
	}
	if o.Flags == nil {
		o.Flags = flags.New(nil)
	}
	if o.Tracer == nil {
		o.Tracer = tracing.Noop()
	}
	return o
}
