package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zjrosen/huddle/internal/connection"
	"github.com/zjrosen/huddle/internal/flags"
	"github.com/zjrosen/huddle/internal/log"
	"github.com/zjrosen/huddle/internal/wire"
)

// SubscribeToChannels joins every slug concurrently. It never fails as a
// whole: each failed join is reported as one EventError naming the slug, and
// the failures are also returned keyed by slug (nil when all joined).
func (s *Session) SubscribeToChannels(ctx context.Context, slugs []string) map[string]error {
	var (
		mu     sync.Mutex
		failed map[string]error
		wg     sync.WaitGroup
	)
	for _, slug := range slugs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.SubscribeToChannel(ctx, slug); err != nil {
				mu.Lock()
				if failed == nil {
					failed = make(map[string]error)
				}
				failed[slug] = err
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return failed
}

// SubscribeToChannel joins one channel. State is registered before the join
// is sent so presence arriving ahead of the reply is kept; a failed join
// removes it again. Subscribing to a registered channel is a no-op.
func (s *Session) SubscribeToChannel(ctx context.Context, slug string) error {
	if slug == "" {
		return errors.New("empty channel slug")
	}

	s.mu.Lock()
	h, created := s.registry.Register(slug)
	n := s.registry.Len()
	s.mu.Unlock()
	if !created {
		return nil
	}
	s.opts.Metrics.SetSubscriptions(n)

	topic := wire.ChannelTopic(slug)
	_, err := s.socket.Join(ctx, topic, nil)

	s.mu.Lock()
	if err != nil {
		s.registry.Remove(h)
		n = s.registry.Len()
	} else if sub := s.registry.Get(h); sub != nil {
		sub.MarkJoined(s.socket.JoinRef(topic))
	}
	s.mu.Unlock()

	if err != nil {
		s.opts.Metrics.SetSubscriptions(n)
		s.joinFailed(slug, err)
		return fmt.Errorf("join %s: %w", slug, err)
	}
	log.Info(log.CatChannel, "Joined channel", "slug", slug)
	return nil
}

// UnsubscribeFromChannel leaves a channel and drops its state.
func (s *Session) UnsubscribeFromChannel(ctx context.Context, slug string) error {
	s.mu.Lock()
	sub := s.registry.BySlug(slug)
	if sub == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotSubscribed, slug)
	}
	evs := s.dropChannelLocked(slug)
	s.mu.Unlock()

	s.events.emit(evs...)
	if err := s.socket.Leave(ctx, wire.ChannelTopic(slug)); err != nil {
		log.Debug(log.CatChannel, "Leave failed", "slug", slug, "error", err)
	}
	return nil
}

func (s *Session) joinStatusTopic(ctx context.Context) error {
	s.mu.Lock()
	if s.statusState != topicIdle {
		s.mu.Unlock()
		return nil
	}
	s.statusState = topicJoining
	s.mu.Unlock()

	_, err := s.socket.Join(ctx, wire.StatusTopic, nil)

	s.mu.Lock()
	if err != nil {
		s.statusState = topicIdle
		s.global = nil
	} else {
		s.statusState = topicJoined
	}
	s.mu.Unlock()

	if err != nil {
		s.joinFailed(wire.StatusTopic, err)
		return err
	}
	log.Info(log.CatPresence, "Joined status topic")
	return nil
}

func (s *Session) joinUserTopic(ctx context.Context) error {
	s.mu.Lock()
	if s.userID == "" {
		s.mu.Unlock()
		return ErrNoIdentity
	}
	if s.userState != topicIdle {
		s.mu.Unlock()
		return nil
	}
	topic := wire.UserTopic(s.userID)
	s.userTopic = topic
	s.userState = topicJoining
	s.mu.Unlock()

	_, err := s.socket.Join(ctx, topic, nil)

	s.mu.Lock()
	if err != nil {
		s.userState = topicIdle
	} else {
		s.userState = topicJoined
	}
	s.mu.Unlock()

	if err != nil {
		s.joinFailed(topic, err)
		return err
	}
	log.Info(log.CatDM, "Joined user topic", "topic", topic)
	return nil
}

// userTopicReady returns the joined user topic.
func (s *Session) userTopicReady() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == "" {
		return "", ErrNoIdentity
	}
	if s.userState != topicJoined {
		return "", fmt.Errorf("%w: %s", ErrNotSubscribed, wire.UserTopic(s.userID))
	}
	return s.userTopic, nil
}

// rejoin runs after a reconnect. Every registered channel is joined again; a
// channel whose rejoin fails stays registered. The active channel's history
// is reloaded to cover messages missed while offline.
func (s *Session) rejoin() {
	ctx := context.Background()

	s.mu.Lock()
	slugs := s.registry.Slugs()
	s.statusState = topicIdle
	s.userState = topicIdle
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, slug := range slugs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.rejoinChannel(ctx, slug)
		}()
	}
	if s.opts.Flags.Enabled(flags.FlagStatusPresence) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.joinStatusTopic(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.joinUserTopic(ctx)
	}()
	wg.Wait()

	s.mu.Lock()
	active := s.active
	var gen uint64
	if active != "" {
		s.loading = true
		s.loadGen++
		gen = s.loadGen
	}
	s.mu.Unlock()
	if active != "" {
		_ = s.loadHistory(ctx, active, gen)
	}
}

func (s *Session) rejoinChannel(ctx context.Context, slug string) {
	topic := wire.ChannelTopic(slug)
	if _, err := s.socket.Join(ctx, topic, nil); err != nil {
		s.joinFailed(slug, err)
		return
	}
	s.mu.Lock()
	if sub := s.registry.BySlug(slug); sub != nil {
		sub.MarkJoined(s.socket.JoinRef(topic))
	}
	s.mu.Unlock()
	log.Debug(log.CatChannel, "Rejoined channel", "slug", slug)
}

func (s *Session) joinFailed(scope string, err error) {
	s.opts.Metrics.JoinFailed(joinFailureReason(err))
	s.emitFailure(log.CatChannel, "Join failed", scope, err)
}

func joinFailureReason(err error) string {
	var replyErr *connection.ReplyError
	switch {
	case errors.Is(err, connection.ErrTimeout):
		return "timeout"
	case errors.As(err, &replyErr):
		return "rejected"
	case errors.Is(err, connection.ErrNotConnected), errors.Is(err, connection.ErrDisconnected):
		return "disconnected"
	default:
		return "error"
	}
}
