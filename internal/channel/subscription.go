// Package channel holds per-topic subscription state: join lifecycle, presence,
// typing users, the bounded realtime buffer and the subscriber roster.
//
// State is owned by a single session; callers outside the session receive
// copies through View.
package channel

import (
	"slices"

	"github.com/zjrosen/huddle/internal/chat"
	"github.com/zjrosen/huddle/internal/presence"
)

// DefaultBufferSize bounds the realtime buffer of an inactive topic.
const DefaultBufferSize = 100

// JoinState tracks where a topic is in the join handshake.
type JoinState int

const (
	// Joining means state is registered but the join reply has not arrived.
	Joining JoinState = iota
	Joined
)

func (s JoinState) String() string {
	if s == Joined {
		return "joined"
	}
	return "joining"
}

// Subscription is the mutable state of one joined (or joining) topic.
type Subscription struct {
	slug        string
	joinRef     string
	state       JoinState
	presence    chat.PresenceState
	typing      map[string]struct{}
	buffer      []chat.Message
	bufferSize  int
	subscribers []chat.Subscriber
	rosterKnown bool
}

func newSubscription(slug string, bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Subscription{
		slug:       slug,
		presence:   chat.PresenceState{},
		typing:     make(map[string]struct{}),
		bufferSize: bufferSize,
	}
}

// Slug returns the topic identifier.
func (s *Subscription) Slug() string { return s.slug }

// State returns the join state.
func (s *Subscription) State() JoinState { return s.state }

// JoinRef returns the ref of the join that owns this subscription.
func (s *Subscription) JoinRef() string { return s.joinRef }

// MarkJoined records a successful join.
func (s *Subscription) MarkJoined(joinRef string) {
	s.state = Joined
	s.joinRef = joinRef
}

// SyncPresence replaces presence with a full snapshot.
func (s *Subscription) SyncPresence(snapshot chat.PresenceState) {
	s.presence = presence.Sync(snapshot)
}

// ApplyPresenceDiff applies a membership diff.
func (s *Subscription) ApplyPresenceDiff(diff chat.PresenceDiff) {
	s.presence = presence.ApplyDiff(s.presence, diff)
}

// Presence returns the live presence map. Callers must not mutate it.
func (s *Subscription) Presence() chat.PresenceState { return s.presence }

// SetTyping adds or removes username from the typing set and reports whether
// the set changed.
func (s *Subscription) SetTyping(username string, typing bool) bool {
	_, had := s.typing[username]
	if typing == had {
		return false
	}
	if typing {
		s.typing[username] = struct{}{}
	} else {
		delete(s.typing, username)
	}
	return true
}

// TypingUsers returns the sorted typing set.
func (s *Subscription) TypingUsers() []string {
	out := make([]string, 0, len(s.typing))
	for u := range s.typing {
		out = append(out, u)
	}
	slices.Sort(out)
	return out
}

// Buffer appends msg to the realtime buffer, evicting the oldest entry when the
// bound is exceeded. It returns the number of evicted messages.
func (s *Subscription) Buffer(msg chat.Message) int {
	s.buffer = append(s.buffer, msg)
	evicted := len(s.buffer) - s.bufferSize
	if evicted <= 0 {
		return 0
	}
	s.buffer = slices.Delete(s.buffer, 0, evicted)
	return evicted
}

// Buffered returns a copy of the realtime buffer in arrival order.
func (s *Subscription) Buffered() []chat.Message {
	return slices.Clone(s.buffer)
}

// ClearBuffer empties the realtime buffer.
func (s *Subscription) ClearBuffer() {
	s.buffer = nil
}

// SetSubscribers replaces the roster.
func (s *Subscription) SetSubscribers(subs []chat.Subscriber) {
	s.subscribers = slices.Clone(subs)
	s.rosterKnown = true
}

// AddSubscriber inserts or updates a roster entry and reports whether the
// roster changed.
func (s *Subscription) AddSubscriber(sub chat.Subscriber) bool {
	if sub.Role == "" {
		sub.Role = chat.RoleMember
	}
	i := slices.IndexFunc(s.subscribers, func(x chat.Subscriber) bool { return x.UserID == sub.UserID })
	if i >= 0 {
		if s.subscribers[i] == sub {
			return false
		}
		s.subscribers[i] = sub
		return true
	}
	s.subscribers = append(s.subscribers, sub)
	return true
}

// RemoveSubscriber drops a roster entry and reports whether it existed.
func (s *Subscription) RemoveSubscriber(userID string) bool {
	before := len(s.subscribers)
	s.subscribers = slices.DeleteFunc(s.subscribers, func(x chat.Subscriber) bool { return x.UserID == userID })
	return len(s.subscribers) != before
}

// Subscribers returns a copy of the roster and whether it was ever loaded.
func (s *Subscription) Subscribers() ([]chat.Subscriber, bool) {
	return slices.Clone(s.subscribers), s.rosterKnown
}

// View is a read-only snapshot of a subscription.
type View struct {
	Slug        string
	State       JoinState
	Presence    chat.PresenceState
	TypingUsers []string
	Buffer      []chat.Message
	Subscribers []chat.Subscriber
}

// View returns a deep snapshot safe to hand to other goroutines.
func (s *Subscription) View() View {
	subs, _ := s.Subscribers()
	return View{
		Slug:        s.slug,
		State:       s.state,
		Presence:    presence.Clone(s.presence),
		TypingUsers: s.TypingUsers(),
		Buffer:      s.Buffered(),
		Subscribers: subs,
	}
}
