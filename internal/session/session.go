// Package session is the facade over one realtime connection: it owns every
// channel subscription, the active-channel timeline, global presence and the
// direct-message inbox, and exposes the operations the UI and agent bridge use.
//
// Inbound frames are applied on the connection's read goroutine in wire order.
// All mutable state lives behind a single mutex; observers are notified after
// the mutex is released and must not call back into blocking operations.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/zjrosen/huddle/internal/auth"
	"github.com/zjrosen/huddle/internal/cachemanager"
	"github.com/zjrosen/huddle/internal/channel"
	"github.com/zjrosen/huddle/internal/chat"
	"github.com/zjrosen/huddle/internal/connection"
	"github.com/zjrosen/huddle/internal/dm"
	"github.com/zjrosen/huddle/internal/flags"
	"github.com/zjrosen/huddle/internal/history"
	"github.com/zjrosen/huddle/internal/log"
	"github.com/zjrosen/huddle/internal/presence"
	"github.com/zjrosen/huddle/internal/pubsub"
	"github.com/zjrosen/huddle/internal/wire"
)

var (
	// ErrNotSubscribed is returned for operations on a channel that is not registered.
	ErrNotSubscribed = errors.New("not subscribed")
	// ErrNoIdentity is returned when the local user id is not known yet.
	ErrNoIdentity = errors.New("user id not known")
	// ErrNoActiveChannel is returned by operations on the active channel when none is set.
	ErrNoActiveChannel = errors.New("no active channel")
	// ErrNoAPI is returned by New when Options.API is nil.
	ErrNoAPI = errors.New("session: api is required")
)

// Connection errors, re-exported for callers that only import session.
var (
	ErrTimeout      = connection.ErrTimeout
	ErrDisconnected = connection.ErrDisconnected
	ErrNotConnected = connection.ErrNotConnected
)

type topicState int

const (
	topicIdle topicState = iota
	topicJoining
	topicJoined
)

// Session is a realtime chat session. Create one with New.
type Session struct {
	opts   Options
	socket *connection.Socket
	roster *cachemanager.ReadThroughCache[string, []chat.Subscriber, string]
	rcache cachemanager.CacheManager[string, []chat.Subscriber]
	events *events

	mu          sync.Mutex
	registry    *channel.Registry
	active      string
	loading     bool
	loadGen     uint64
	timeline    *history.Timeline
	inbox       *dm.Inbox
	userID      string
	username    string
	statusState topicState
	userState   topicState
	userTopic   string
	global      chat.PresenceState
	limiters    map[string]*rate.Limiter
}

// New creates a disconnected session.
func New(opts Options) (*Session, error) {
	if opts.API == nil {
		return nil, ErrNoAPI
	}
	opts = opts.withDefaults()

	sock, err := connection.NewSocket(connection.Options{
		Transport:         opts.Transport,
		Backoff:           opts.Backoff,
		HeartbeatInterval: opts.HeartbeatInterval,
		PushTimeout:       opts.PushTimeout,
		Tracer:            opts.Tracer,
		Metrics:           opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	rcache := cachemanager.NewInMemoryCacheManager[string, []chat.Subscriber]("roster", opts.RosterTTL, 2*opts.RosterTTL)
	s := &Session{
		opts:     opts,
		socket:   sock,
		rcache:   rcache,
		roster:   cachemanager.NewReadThroughCache[string, []chat.Subscriber, string](rcache, opts.API.FetchSubscribers, false),
		events:   newEvents(),
		registry: channel.NewRegistry(opts.BufferSize),
		inbox:    dm.NewInbox(),
		username: opts.Username,
		limiters: make(map[string]*rate.Limiter),
	}

	if id, err := auth.IdentityFromToken(opts.Token); err == nil {
		s.userID = id.UserID
		if id.Username != "" {
			s.username = id.Username
		}
		if id.Expired(time.Now()) {
			log.Warn(log.CatSession, "Token has expired", "expires_at", id.ExpiresAt)
		}
	}

	sock.OnFrame(s.handleFrame)
	sock.OnStatus(s.handleStatus)
	sock.OnReconnect(func(attempts int) {
		log.Info(log.CatSession, "Reconnected, rejoining topics", "attempts", attempts)
		go s.rejoin()
	})
	return s, nil
}

// On registers fn for events of kind. Observers run in registration order on
// the goroutine that produced the event. The returned func removes fn.
func (s *Session) On(kind EventKind, fn func(Event)) (remove func()) {
	if kind < 0 || kind >= numEventKinds {
		return func() {}
	}
	return s.events.observers[kind].Add(fn)
}

// Subscribe returns a channel receiving every event until ctx is cancelled.
// Slow readers miss events rather than blocking the session.
func (s *Session) Subscribe(ctx context.Context) <-chan pubsub.Event[Event] {
	return s.events.broker.Subscribe(ctx)
}

// Broker exposes the event broker for pubsub.NewContinuousListener.
func (s *Session) Broker() *pubsub.Broker[Event] {
	return s.events.broker
}

// Connect opens the connection, then joins the status topic and, when the
// user id is already known, the user topic. Failures of those joins are
// reported as events and do not fail Connect.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.socket.Connect(ctx, s.opts.ServerURL, s.opts.Token); err != nil {
		return err
	}
	if s.opts.Flags.Enabled(flags.FlagStatusPresence) {
		_ = s.joinStatusTopic(ctx)
	}
	if err := s.joinUserTopic(ctx); err != nil && !errors.Is(err, ErrNoIdentity) {
		log.Debug(log.CatDM, "User topic not joined", "error", err)
	}
	return nil
}

// Disconnect leaves every topic, closes the connection and clears all
// session state. Leave failures are swallowed.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	topics := make([]string, 0, s.registry.Len()+2)
	for _, slug := range s.registry.Slugs() {
		topics = append(topics, wire.ChannelTopic(slug))
	}
	if s.statusState != topicIdle {
		topics = append(topics, wire.StatusTopic)
	}
	if s.userState != topicIdle {
		topics = append(topics, s.userTopic)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, teardownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, topic := range topics {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.socket.Leave(ctx, topic); err != nil {
				log.Debug(log.CatChannel, "Leave failed during teardown", "topic", topic, "error", err)
			}
		}()
	}
	wg.Wait()
	s.socket.Disconnect()

	s.mu.Lock()
	s.registry.Reset()
	s.active = ""
	s.loading = false
	s.loadGen++
	s.timeline = nil
	s.inbox.Reset()
	s.statusState = topicIdle
	s.userState = topicIdle
	s.userTopic = ""
	s.global = nil
	clear(s.limiters)
	s.mu.Unlock()

	_ = s.rcache.Flush(ctx)
	s.opts.Metrics.SetSubscriptions(0)
}

// Status returns the connection status.
func (s *Session) Status() connection.Status { return s.socket.Status() }

// LastError returns the most recent connection error, or nil.
func (s *Session) LastError() error { return s.socket.LastError() }

// Username returns the local username, or "" when unknown.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// UserID returns the local user id, or "" until it is learned.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// ActiveChannel returns the slug of the active channel.
func (s *Session) ActiveChannel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Channels returns every registered channel slug, sorted.
func (s *Session) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Slugs()
}

// Channel returns a snapshot of one subscription.
func (s *Session) Channel(slug string) (channel.View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.registry.BySlug(slug)
	if sub == nil {
		return channel.View{}, false
	}
	return sub.View(), true
}

// Presence returns a copy of a channel's presence map.
func (s *Session) Presence(slug string) chat.PresenceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.registry.BySlug(slug)
	if sub == nil {
		return nil
	}
	return presence.Clone(sub.Presence())
}

// TypingUsers returns the usernames typing in a channel, sorted.
func (s *Session) TypingUsers(slug string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.registry.BySlug(slug)
	if sub == nil {
		return nil
	}
	return sub.TypingUsers()
}

// Subscribers returns the locally known roster of a channel and whether it
// was ever loaded.
func (s *Session) Subscribers(slug string) ([]chat.Subscriber, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.registry.BySlug(slug)
	if sub == nil {
		return nil, false
	}
	return sub.Subscribers()
}

// RealtimeBuffer returns a copy of a channel's buffered realtime messages.
func (s *Session) RealtimeBuffer(slug string) []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.registry.BySlug(slug)
	if sub == nil {
		return nil
	}
	return sub.Buffered()
}

// Messages returns a copy of the active channel's reconciled messages.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timeline == nil {
		return nil
	}
	return s.timeline.Messages()
}

// OnlineUsers returns who is online anywhere. The status topic is used when
// joined; otherwise per-channel presence is aggregated.
func (s *Session) OnlineUsers() []chat.OnlineUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusState == topicJoined {
		return presence.Flatten(s.global)
	}
	var states []chat.PresenceState
	s.registry.Each(func(sub *channel.Subscription) {
		states = append(states, sub.Presence())
	})
	return presence.Aggregate(states...)
}

// DMConversations returns the conversation list, most recently active first.
func (s *Session) DMConversations() []chat.DmConversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inbox.Conversations()
}

// DMTypingUsers returns who is typing in a DM conversation.
func (s *Session) DMTypingUsers(dmSlug string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inbox.TypingUsers(dmSlug)
}

// UnreadDMs returns the total unread count across DM conversations.
func (s *Session) UnreadDMs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inbox.UnreadTotal()
}

func (s *Session) subscribed(slug string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.BySlug(slug) != nil
}

func (s *Session) handleStatus(change connection.StatusChange) {
	evs := []Event{{Kind: EventStatus, Status: change.Status, Err: change.Err}}
	if change.Status == connection.StatusError && change.Err != nil {
		evs = append(evs, Event{Kind: EventError, Err: change.Err})
	}
	s.events.emit(evs...)
}

// emitFailure logs a failed operation and reports it to observers. scope is a
// channel slug or topic, empty for connection-wide failures.
func (s *Session) emitFailure(cat log.Category, msg, scope string, err error) {
	log.Warn(cat, msg, "scope", scope, "error", err)
	s.events.emit(Event{Kind: EventError, Channel: scope, Err: err})
}
