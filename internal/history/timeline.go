package history

import (
	"slices"

	"github.com/zjrosen/huddle/internal/chat"
)

// Timeline is the reconciled message list of the channel being viewed. It keeps
// the merged, uncoalesced list so older pages can be merged in later, and the
// coalesced list that is rendered.
type Timeline struct {
	slug     string
	viewer   string
	raw      []chat.Message
	messages []chat.Message
	seen     map[string]struct{}
}

// NewTimeline reconciles history with buffered for slug.
func NewTimeline(slug, viewer string, hist, buffered []chat.Message) *Timeline {
	t := &Timeline{slug: slug, viewer: viewer}
	t.rebuild(Merge(hist, buffered))
	return t
}

// Slug returns the channel this timeline belongs to.
func (t *Timeline) Slug() string { return t.slug }

// Append adds a live message. Messages whose id is already present are
// ignored (ok=false). replaced reports that the message was folded into the
// previous agent turn; result is the message as it now appears.
func (t *Timeline) Append(m chat.Message) (result chat.Message, replaced, ok bool) {
	if m.ID != "" {
		if _, dup := t.seen[m.ID]; dup {
			return chat.Message{}, false, false
		}
		t.seen[m.ID] = struct{}{}
	}
	t.raw = append(t.raw, m)
	t.messages, replaced = Append(t.messages, m, t.viewer)
	return t.messages[len(t.messages)-1], replaced, true
}

// Prepend merges an older page into the timeline.
func (t *Timeline) Prepend(older []chat.Message) {
	t.rebuild(Merge(older, t.raw))
}

// Messages returns a copy of the coalesced list.
func (t *Timeline) Messages() []chat.Message {
	return slices.Clone(t.messages)
}

// Oldest returns the id of the oldest message, used as the pagination cursor.
func (t *Timeline) Oldest() (string, bool) {
	if len(t.raw) == 0 {
		return "", false
	}
	return t.raw[0].ID, true
}

// Len returns the number of coalesced messages.
func (t *Timeline) Len() int { return len(t.messages) }

func (t *Timeline) rebuild(raw []chat.Message) {
	t.raw = raw
	t.messages = Coalesce(raw, t.viewer)
	t.seen = make(map[string]struct{}, len(raw))
	for _, m := range raw {
		if m.ID != "" {
			t.seen[m.ID] = struct{}{}
		}
	}
}
