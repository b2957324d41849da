package session

import (
	"context"
	"fmt"
	"slices"

	"github.com/zjrosen/huddle/internal/chat"
)

// LoadSubscribers returns a channel's roster, fetched over HTTP through a TTL
// cache. Each read extends the cached roster's lifetime; user_invited and
// user_removed invalidate it.
func (s *Session) LoadSubscribers(ctx context.Context, slug string) ([]chat.Subscriber, error) {
	if !s.subscribed(slug) {
		return nil, fmt.Errorf("%w: %s", ErrNotSubscribed, slug)
	}
	subs, err := s.roster.GetWithRefresh(ctx, slug, slug, s.opts.RosterTTL)
	if err != nil {
		return nil, fmt.Errorf("load subscribers for %s: %w", slug, err)
	}

	s.mu.Lock()
	sub := s.registry.BySlug(slug)
	if sub != nil {
		sub.SetSubscribers(subs)
	}
	s.mu.Unlock()

	if sub != nil {
		s.events.emit(Event{Kind: EventSubscribers, Channel: slug})
	}
	return slices.Clone(subs), nil
}
