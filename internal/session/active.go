package session

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/huddle/internal/chat"
	"github.com/zjrosen/huddle/internal/history"
	"github.com/zjrosen/huddle/internal/log"
	"github.com/zjrosen/huddle/internal/tracing"
)

// SetActiveChannel makes slug the channel whose messages are delivered live,
// joining it first when needed. The channel's history is fetched and merged
// with its realtime buffer; live messages arriving meanwhile are buffered and
// folded into the merge. An empty slug clears the active channel.
func (s *Session) SetActiveChannel(ctx context.Context, slug string) error {
	if slug == "" {
		s.mu.Lock()
		s.active = ""
		s.loading = false
		s.loadGen++
		s.timeline = nil
		s.mu.Unlock()
		return nil
	}

	if !s.subscribed(slug) {
		if err := s.SubscribeToChannel(ctx, slug); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.registry.BySlug(slug) == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotSubscribed, slug)
	}
	s.active = slug
	s.loading = true
	s.loadGen++
	s.timeline = nil
	gen := s.loadGen
	s.mu.Unlock()

	log.Debug(log.CatHistory, "Active channel changed", "slug", slug)
	return s.loadHistory(ctx, slug, gen)
}

// loadHistory fetches the newest page for slug and replaces the timeline,
// unless another load superseded it. The realtime buffer is cleared only
// when the fetch succeeded.
func (s *Session) loadHistory(ctx context.Context, slug string, gen uint64) (err error) {
	ctx, span := s.opts.Tracer.Start(ctx, tracing.SpanReconcile, trace.WithAttributes(
		attribute.String(tracing.AttrChannel, slug),
	))
	defer func() { tracing.Finish(span, err) }()

	msgs, fetchErr := s.opts.API.FetchMessages(ctx, slug, s.opts.HistoryLimit, "")

	s.mu.Lock()
	if gen != s.loadGen || s.active != slug {
		s.mu.Unlock()
		log.Debug(log.CatHistory, "Discarding superseded history", "slug", slug)
		return nil
	}
	var buffered []chat.Message
	sub := s.registry.BySlug(slug)
	if sub != nil {
		buffered = sub.Buffered()
	}
	span.SetAttributes(
		attribute.Int(tracing.AttrMessages, len(msgs)),
		attribute.Int(tracing.AttrBuffered, len(buffered)),
	)
	s.timeline = history.NewTimeline(slug, s.username, msgs, buffered)
	s.loading = false
	if fetchErr == nil && sub != nil {
		sub.ClearBuffer()
	}
	out := s.timeline.Messages()
	s.mu.Unlock()

	loaded := Event{Kind: EventHistoryLoaded, Channel: slug, Messages: out, Err: fetchErr}
	if fetchErr != nil {
		log.ErrorErr(log.CatHistory, "History fetch failed", fetchErr, "slug", slug)
		s.events.emit(loaded, Event{Kind: EventError, Channel: slug, Err: fetchErr})
		return fmt.Errorf("load history for %s: %w", slug, fetchErr)
	}
	log.Debug(log.CatHistory, "History reconciled", "slug", slug, "history", len(msgs), "buffered", len(buffered))
	s.events.emit(loaded)
	return nil
}

// LoadOlderMessages fetches the page before beforeID (the oldest loaded
// message when empty) and merges it into the active timeline. It returns the
// number of messages fetched; zero means the start of history was reached.
func (s *Session) LoadOlderMessages(ctx context.Context, beforeID string) (int, error) {
	s.mu.Lock()
	tl := s.timeline
	if tl == nil {
		s.mu.Unlock()
		return 0, ErrNoActiveChannel
	}
	slug := tl.Slug()
	if beforeID == "" {
		oldest, ok := tl.Oldest()
		if !ok {
			s.mu.Unlock()
			return 0, nil
		}
		beforeID = oldest
	}
	s.mu.Unlock()

	older, err := s.opts.API.FetchMessages(ctx, slug, s.opts.HistoryLimit, beforeID)
	if err != nil {
		s.emitFailure(log.CatHistory, "Older history fetch failed", slug, err)
		return 0, fmt.Errorf("load older messages for %s: %w", slug, err)
	}

	s.mu.Lock()
	if s.timeline != tl {
		s.mu.Unlock()
		return 0, nil
	}
	tl.Prepend(older)
	out := tl.Messages()
	s.mu.Unlock()

	s.events.emit(Event{Kind: EventHistoryLoaded, Channel: slug, Messages: out})
	return len(older), nil
}

// Ingest routes a locally produced message into slug as if it had arrived on
// the wire. The agent bridge uses it.
func (s *Session) Ingest(slug string, msg chat.Message) error {
	s.mu.Lock()
	sub := s.registry.BySlug(slug)
	if sub == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotSubscribed, slug)
	}
	evs := s.routeLocked(sub, msg)
	s.mu.Unlock()

	s.events.emit(evs...)
	return nil
}
