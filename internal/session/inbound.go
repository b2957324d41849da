package session

import (
	"context"
	"errors"

	"github.com/zjrosen/huddle/internal/channel"
	"github.com/zjrosen/huddle/internal/chat"
	"github.com/zjrosen/huddle/internal/dm"
	"github.com/zjrosen/huddle/internal/flags"
	"github.com/zjrosen/huddle/internal/log"
	"github.com/zjrosen/huddle/internal/presence"
	"github.com/zjrosen/huddle/internal/router"
	"github.com/zjrosen/huddle/internal/wire"
)

// ErrChannelCrashed is reported when the backend signals phx_error on a
// channel topic. The channel is rejoined.
var ErrChannelCrashed = errors.New("channel crashed")

func (s *Session) handleFrame(f wire.Frame) {
	var evs []Event
	switch {
	case f.Topic == wire.StatusTopic:
		evs = s.handleStatusFrame(f)
	case wire.IsUserTopic(f.Topic):
		evs = s.handleUserFrame(f)
	default:
		slug, ok := wire.SlugFromTopic(f.Topic)
		if !ok {
			log.Debug(log.CatSession, "Ignoring frame", "topic", f.Topic, "event", f.Event)
			return
		}
		evs = s.handleChannelFrame(slug, f)
	}
	s.events.emit(evs...)
}

func decode(f wire.Frame, v any) bool {
	if err := f.DecodePayload(v); err != nil {
		log.Warn(log.CatSession, "Dropping malformed payload", "topic", f.Topic, "event", f.Event, "error", err)
		return false
	}
	return true
}

func (s *Session) handleChannelFrame(slug string, f wire.Frame) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := s.registry.BySlug(slug)
	if sub == nil {
		log.Debug(log.CatChannel, "Dropping frame for unregistered channel", "slug", slug, "event", f.Event)
		return nil
	}

	switch f.Event {
	case wire.EventNewMessage:
		var msg chat.Message
		if !decode(f, &msg) {
			return nil
		}
		return s.routeLocked(sub, msg)

	case wire.EventPresenceState:
		var state chat.PresenceState
		if !decode(f, &state) {
			return nil
		}
		sub.SyncPresence(state)
		evs := []Event{{Kind: EventPresence, Channel: slug, Presence: presence.Clone(sub.Presence())}}
		evs = append(evs, s.pruneTypingLocked(sub)...)
		if s.learnIdentityLocked(sub.Presence()) {
			evs = append(evs, Event{Kind: EventIdentity, Channel: slug})
			go func() { _ = s.joinUserTopic(context.Background()) }()
		}
		return evs

	case wire.EventPresenceDiff:
		var diff chat.PresenceDiff
		if !decode(f, &diff) {
			return nil
		}
		sub.ApplyPresenceDiff(diff)
		evs := []Event{{Kind: EventPresence, Channel: slug, Presence: presence.Clone(sub.Presence())}}
		return append(evs, s.pruneTypingLocked(sub)...)

	case wire.EventTypingStart, wire.EventTypingStop:
		var p wire.TypingPayload
		if !decode(f, &p) || p.Username == "" || p.Username == s.username {
			return nil
		}
		if !sub.SetTyping(p.Username, f.Event == wire.EventTypingStart) {
			return nil
		}
		return []Event{{Kind: EventTyping, Channel: slug, Users: sub.TypingUsers()}}

	case wire.EventUserInvited:
		var p wire.MemberPayload
		if !decode(f, &p) {
			return nil
		}
		s.roster.Invalidate(context.Background(), slug)
		if !sub.AddSubscriber(chat.Subscriber{UserID: p.UserID, Username: p.Username, Role: p.Role}) {
			return nil
		}
		return []Event{{Kind: EventSubscribers, Channel: slug}}

	case wire.EventUserRemoved:
		var p wire.MemberPayload
		if !decode(f, &p) {
			return nil
		}
		if s.isSelfLocked(p.UserID, p.Username) {
			log.Info(log.CatChannel, "Removed from channel", "slug", slug)
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
				defer cancel()
				_ = s.socket.Leave(ctx, wire.ChannelTopic(slug))
			}()
			return s.dropChannelLocked(slug)
		}
		s.roster.Invalidate(context.Background(), slug)
		evs := []Event{{Kind: EventSubscribers, Channel: slug}}
		if p.Username != "" && sub.SetTyping(p.Username, false) {
			evs = append(evs, Event{Kind: EventTyping, Channel: slug, Users: sub.TypingUsers()})
		}
		sub.RemoveSubscriber(p.UserID)
		return evs

	case wire.EventError:
		log.Warn(log.CatChannel, "Channel crashed, rejoining", "slug", slug)
		go s.rejoinChannel(context.Background(), slug)
		return []Event{{Kind: EventError, Channel: slug, Err: ErrChannelCrashed}}

	case wire.EventClose:
		log.Debug(log.CatChannel, "Channel closed by server", "slug", slug)
		return nil

	default:
		log.Debug(log.CatChannel, "Unhandled channel event", "slug", slug, "event", f.Event)
		return nil
	}
}

// routeLocked stamps msg and either appends it to the active timeline or
// buffers it on its subscription.
func (s *Session) routeLocked(sub *channel.Subscription, msg chat.Message) []Event {
	slug := sub.Slug()
	msg, err := router.Stamp(msg)
	if err != nil {
		log.Warn(log.CatRouter, "Message id carries no timestamp", "slug", slug, "id", msg.ID, "error", err)
	}

	var evs []Event
	if msg.Username != "" && sub.SetTyping(msg.Username, false) {
		evs = append(evs, Event{Kind: EventTyping, Channel: slug, Users: sub.TypingUsers()})
	}

	disp := router.Route(slug, s.active, s.loading || s.timeline == nil)
	s.opts.Metrics.MessageRouted(disp.String())

	if disp == router.Deliver {
		res, replaced, ok := s.timeline.Append(msg)
		if !ok {
			log.Debug(log.CatRouter, "Dropping duplicate message", "slug", slug, "id", msg.ID)
			return evs
		}
		return append(evs, Event{Kind: EventNewMessage, Channel: slug, Message: res, Replaced: replaced})
	}

	if evicted := sub.Buffer(msg); evicted > 0 {
		s.opts.Metrics.BufferEvicted(evicted)
	}
	if router.NotifiesUnread(msg, slug, s.active) {
		evs = append(evs, Event{Kind: EventNonActiveMessage, Channel: slug, Message: msg})
	}
	return evs
}

// pruneTypingLocked clears typing users that are no longer present.
func (s *Session) pruneTypingLocked(sub *channel.Subscription) []Event {
	state := sub.Presence()
	changed := false
	for _, username := range sub.TypingUsers() {
		if _, ok := state[username]; !ok {
			changed = sub.SetTyping(username, false) || changed
		}
	}
	if !changed {
		return nil
	}
	return []Event{{Kind: EventTyping, Channel: sub.Slug(), Users: sub.TypingUsers()}}
}

// learnIdentityLocked fills in the missing half of the local identity from a
// presence snapshot. It reports whether the user id was learned.
func (s *Session) learnIdentityLocked(state chat.PresenceState) bool {
	if s.userID != "" {
		if s.username == "" {
			for username, entry := range state {
				for _, m := range entry.Metas {
					if m.UserID == s.userID {
						s.username = username
						return false
					}
				}
			}
		}
		return false
	}
	if s.username == "" {
		return false
	}
	id, ok := presence.FindUserID(state, s.username)
	if !ok {
		return false
	}
	s.userID = id
	log.Info(log.CatSession, "Learned user id from presence", "username", s.username, "user_id", id)
	return true
}

func (s *Session) isSelfLocked(userID, username string) bool {
	if userID != "" && s.userID != "" {
		return userID == s.userID
	}
	return username != "" && username == s.username
}

// dropChannelLocked destroys a subscription and everything scoped to it.
func (s *Session) dropChannelLocked(slug string) []Event {
	h, ok := s.registry.Lookup(slug)
	if !ok {
		return nil
	}
	s.registry.Remove(h)
	delete(s.limiters, slug)
	if s.active == slug {
		s.active = ""
		s.loading = false
		s.loadGen++
		s.timeline = nil
	}
	s.roster.Invalidate(context.Background(), slug)
	s.opts.Metrics.SetSubscriptions(s.registry.Len())
	return []Event{
		{Kind: EventChannelRemoved, Channel: slug},
		{Kind: EventChannelListStale, Channel: slug},
	}
}

func (s *Session) handleStatusFrame(f wire.Frame) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.statusState == topicIdle {
		return nil
	}
	switch f.Event {
	case wire.EventPresenceState:
		var state chat.PresenceState
		if !decode(f, &state) {
			return nil
		}
		s.global = presence.Sync(state)
	case wire.EventPresenceDiff:
		var diff chat.PresenceDiff
		if !decode(f, &diff) {
			return nil
		}
		s.global = presence.ApplyDiff(s.global, diff)
	default:
		log.Debug(log.CatPresence, "Unhandled status event", "event", f.Event)
		return nil
	}
	return []Event{{Kind: EventGlobalPresence, Presence: presence.Clone(s.global)}}
}

func (s *Session) handleUserFrame(f wire.Frame) []Event {
	switch f.Event {
	case wire.EventDMNewMessage:
		var p wire.DMMessagePayload
		if !decode(f, &p) || p.DMSlug == "" {
			return nil
		}
		msg, err := router.Stamp(p.Message)
		if err != nil {
			log.Warn(log.CatDM, "DM id carries no timestamp", "dm", p.DMSlug, "id", msg.ID, "error", err)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		conv, created := s.inbox.Receive(dm.Incoming{
			Slug:          p.DMSlug,
			ChannelID:     p.ChannelID,
			OtherUserID:   p.OtherUserID,
			OtherUsername: p.OtherUsername,
			Message:       msg,
		}, s.username)
		log.Debug(log.CatDM, "DM received", "dm", p.DMSlug, "created", created, "unread", conv.UnreadCount)

		evs := []Event{{Kind: EventDM, Channel: p.DMSlug, DM: conv, Message: msg}}
		if msg.Username != "" && s.inbox.SetTyping(p.DMSlug, msg.Username, false) {
			evs = append(evs, Event{Kind: EventDMTyping, Channel: p.DMSlug, Users: s.inbox.TypingUsers(p.DMSlug)})
		}
		return evs

	case wire.EventDMTypingStart, wire.EventDMTypingStop:
		var p wire.DMTypingPayload
		if !decode(f, &p) || p.DMSlug == "" || p.Username == "" {
			return nil
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if p.Username == s.username {
			return nil
		}
		if !s.inbox.SetTyping(p.DMSlug, p.Username, f.Event == wire.EventDMTypingStart) {
			return nil
		}
		return []Event{{Kind: EventDMTyping, Channel: p.DMSlug, Users: s.inbox.TypingUsers(p.DMSlug)}}

	case wire.EventChannelAdded:
		var p wire.ChannelAddedPayload
		if !decode(f, &p) || p.Slug == "" {
			return nil
		}
		log.Info(log.CatChannel, "Added to channel", "slug", p.Slug)
		if !s.opts.Flags.Enabled(flags.FlagAutoJoinInvites) {
			return []Event{{Kind: EventChannelListStale, Channel: p.Slug}}
		}
		go func() {
			_ = s.SubscribeToChannel(context.Background(), p.Slug)
			s.events.emit(Event{Kind: EventChannelListStale, Channel: p.Slug})
		}()
		return nil

	default:
		log.Debug(log.CatDM, "Unhandled user topic event", "event", f.Event)
		return nil
	}
}
