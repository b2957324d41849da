package session

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/zjrosen/huddle/internal/chat"
	"github.com/zjrosen/huddle/internal/log"
	"github.com/zjrosen/huddle/internal/wire"
)

type empty struct{}

// SendMessage posts content to a channel and waits for the ack. A backend
// rejection is returned as *connection.ReplyError.
func (s *Session) SendMessage(ctx context.Context, slug, content string) error {
	_, err := s.SendCommand(ctx, slug, wire.EventNewMessage, wire.ContentPayload{Content: content})
	return err
}

// SendCommand pushes an arbitrary named event with a JSON payload on a
// channel and returns the reply's response.
func (s *Session) SendCommand(ctx context.Context, slug, event string, payload any) (json.RawMessage, error) {
	if !s.subscribed(slug) {
		err := fmt.Errorf("%w: %s", ErrNotSubscribed, slug)
		s.emitFailure(log.CatSession, "Send failed", slug, err)
		return nil, err
	}
	resp, err := s.socket.Push(ctx, wire.ChannelTopic(slug), event, payload)
	if err != nil {
		s.emitFailure(log.CatSession, "Send failed", slug, err)
		return nil, err
	}
	return resp, nil
}

// StartTyping signals typing in a channel. Signals are throttled per channel
// and failures are ignored.
func (s *Session) StartTyping(ctx context.Context, slug string) {
	s.mu.Lock()
	ok := s.registry.BySlug(slug) != nil && s.limiterLocked(slug).Allow()
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := s.socket.Cast(ctx, wire.ChannelTopic(slug), wire.EventPushTypingStart, empty{}); err != nil {
		log.Debug(log.CatSession, "typing:start not sent", "slug", slug, "error", err)
	}
}

// StopTyping signals the end of typing in a channel. It is never throttled
// and resets the channel's throttle.
func (s *Session) StopTyping(ctx context.Context, slug string) {
	s.mu.Lock()
	ok := s.registry.BySlug(slug) != nil
	delete(s.limiters, slug)
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := s.socket.Cast(ctx, wire.ChannelTopic(slug), wire.EventPushTypingStop, empty{}); err != nil {
		log.Debug(log.CatSession, "typing:stop not sent", "slug", slug, "error", err)
	}
}

func (s *Session) limiterLocked(key string) *rate.Limiter {
	l, ok := s.limiters[key]
	if !ok {
		limit := rate.Inf
		if s.opts.TypingInterval > 0 {
			limit = rate.Every(s.opts.TypingInterval)
		}
		l = rate.NewLimiter(limit, 1)
		s.limiters[key] = l
	}
	return l
}

// MarkChannelAsRead marks a channel read and waits for the ack.
func (s *Session) MarkChannelAsRead(ctx context.Context, slug string) error {
	_, err := s.SendCommand(ctx, slug, wire.EventMarkAsRead, empty{})
	return err
}

// MarkAllMessagesAsRead marks every channel read. It is pushed on the user
// topic and needs the user id.
func (s *Session) MarkAllMessagesAsRead(ctx context.Context) error {
	topic, err := s.userTopicReady()
	if err == nil {
		_, err = s.socket.Push(ctx, topic, wire.EventMarkAllRead, empty{})
	}
	if err != nil {
		s.emitFailure(log.CatSession, "Mark all read failed", topic, err)
		return err
	}
	return nil
}

// MarkChannelAsReadBestEffort sends mark_as_read without waiting for the ack.
// It does nothing for a channel that is no longer registered.
func (s *Session) MarkChannelAsReadBestEffort(slug string) {
	if !s.subscribed(slug) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := s.socket.Cast(ctx, wire.ChannelTopic(slug), wire.EventMarkAsRead, empty{}); err != nil {
		log.Debug(log.CatSession, "Best-effort mark read failed", "slug", slug, "error", err)
	}
}

// SendDM posts content to a DM conversation over the user topic.
func (s *Session) SendDM(ctx context.Context, dmSlug, content string) error {
	topic, err := s.userTopicReady()
	if err == nil {
		_, err = s.socket.Push(ctx, topic, wire.EventDMSend, wire.DMSendPayload{DMSlug: dmSlug, Content: content})
	}
	if err != nil {
		s.emitFailure(log.CatDM, "DM send failed", dmSlug, err)
		return err
	}
	return nil
}

// StartDMTyping signals typing in a DM conversation, throttled like StartTyping.
func (s *Session) StartDMTyping(ctx context.Context, dmSlug string) {
	topic, err := s.userTopicReady()
	if err != nil {
		return
	}
	s.mu.Lock()
	ok := s.limiterLocked(wire.EventDMTypingStart + dmSlug).Allow()
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := s.socket.Cast(ctx, topic, wire.EventDMTypingStart, wire.DMTypingPayload{DMSlug: dmSlug}); err != nil {
		log.Debug(log.CatDM, "dm:typing_start not sent", "dm", dmSlug, "error", err)
	}
}

// StopDMTyping signals the end of typing in a DM conversation.
func (s *Session) StopDMTyping(ctx context.Context, dmSlug string) {
	topic, err := s.userTopicReady()
	if err != nil {
		return
	}
	s.mu.Lock()
	delete(s.limiters, wire.EventDMTypingStart+dmSlug)
	s.mu.Unlock()
	if err := s.socket.Cast(ctx, topic, wire.EventDMTypingStop, wire.DMTypingPayload{DMSlug: dmSlug}); err != nil {
		log.Debug(log.CatDM, "dm:typing_stop not sent", "dm", dmSlug, "error", err)
	}
}

// MarkDMRead zeroes a conversation's unread count locally and tells the
// backend, waiting for the ack.
func (s *Session) MarkDMRead(ctx context.Context, dmSlug string) error {
	if ev, ok := s.markDMReadLocal(dmSlug); ok {
		s.events.emit(ev)
	}
	topic, err := s.userTopicReady()
	if err == nil {
		_, err = s.socket.Push(ctx, topic, wire.EventDMMarkRead, wire.DMSlugPayload{DMSlug: dmSlug})
	}
	if err != nil {
		s.emitFailure(log.CatDM, "DM mark read failed", dmSlug, err)
		return err
	}
	return nil
}

// OpenDM makes dmSlug the open conversation: its inbound messages no longer
// count as unread. Pending unread messages are marked read best-effort.
func (s *Session) OpenDM(ctx context.Context, dmSlug string) {
	s.mu.Lock()
	s.inbox.Open(dmSlug)
	s.mu.Unlock()

	ev, changed := s.markDMReadLocal(dmSlug)
	if !changed {
		return
	}
	s.events.emit(ev)
	topic, err := s.userTopicReady()
	if err != nil {
		return
	}
	if err := s.socket.Cast(ctx, topic, wire.EventDMMarkRead, wire.DMSlugPayload{DMSlug: dmSlug}); err != nil {
		log.Debug(log.CatDM, "dm:mark_read not sent", "dm", dmSlug, "error", err)
	}
}

// CloseDM clears the open conversation.
func (s *Session) CloseDM() {
	s.mu.Lock()
	s.inbox.Close()
	s.mu.Unlock()
}

// OpenDMSlug returns the open conversation, or "".
func (s *Session) OpenDMSlug() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inbox.Active()
}

// SeedDMConversations replaces the conversation list, typically from the
// initial listing fetched at startup.
func (s *Session) SeedDMConversations(convs []chat.DmConversation) {
	s.mu.Lock()
	s.inbox.Seed(convs)
	s.mu.Unlock()
}

func (s *Session) markDMReadLocal(dmSlug string) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inbox.MarkRead(dmSlug) {
		return Event{}, false
	}
	conv, _ := s.inbox.Get(dmSlug)
	return Event{Kind: EventDM, Channel: dmSlug, DM: conv}, true
}
