// Package dm maintains the direct-message conversation list: most recently
// active first, with previews, unread counters and per-conversation typing.
package dm

import (
	"slices"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/zjrosen/huddle/internal/chat"
)

// PreviewWidth is the display width last_message_preview is truncated to.
const PreviewWidth = 60

// Incoming is one inbound DM as seen by the inbox.
type Incoming struct {
	Slug          string
	ChannelID     string
	OtherUserID   string
	OtherUsername string
	Message       chat.Message
}

// Inbox is the ordered conversation list. It is not safe for concurrent use;
// the owning session serializes access.
type Inbox struct {
	convs  []chat.DmConversation
	active string
	typing map[string]map[string]struct{}
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{typing: make(map[string]map[string]struct{})}
}

// Seed replaces the conversation list, e.g. from an initial listing.
func (in *Inbox) Seed(convs []chat.DmConversation) {
	in.convs = slices.Clone(convs)
	slices.SortStableFunc(in.convs, func(a, b chat.DmConversation) int {
		return strings.Compare(b.LastActivityAt, a.LastActivityAt)
	})
}

// Receive records an inbound DM: the conversation is updated and moved to the
// front, or created at the front. Unread is incremented unless the
// conversation is open or the message was written by selfUsername. Typing
// state is left to the caller, which clears the sender with SetTyping.
func (in *Inbox) Receive(ev Incoming, selfUsername string) (conv chat.DmConversation, created bool) {
	i := slices.IndexFunc(in.convs, func(c chat.DmConversation) bool { return c.Slug == ev.Slug })
	if i >= 0 {
		conv = in.convs[i]
		in.convs = slices.Delete(in.convs, i, i+1)
	} else {
		created = true
		conv = chat.DmConversation{
			Slug:          ev.Slug,
			ChannelID:     ev.ChannelID,
			OtherUserID:   ev.OtherUserID,
			OtherUsername: ev.OtherUsername,
		}
	}

	conv.LastActivityAt = ev.Message.Timestamp
	conv.LastMessagePreview = Preview(ev.Message.Content)
	if ev.Slug != in.active && ev.Message.Username != selfUsername {
		conv.UnreadCount++
	}

	in.convs = slices.Insert(in.convs, 0, conv)
	return conv, created
}

// Open makes slug the active conversation and clears its unread counter.
func (in *Inbox) Open(slug string) {
	in.active = slug
	in.MarkRead(slug)
}

// Close clears the active conversation.
func (in *Inbox) Close() { in.active = "" }

// Active returns the open conversation slug.
func (in *Inbox) Active() string { return in.active }

// MarkRead zeroes the unread counter of slug and reports whether it changed.
func (in *Inbox) MarkRead(slug string) bool {
	i := slices.IndexFunc(in.convs, func(c chat.DmConversation) bool { return c.Slug == slug })
	if i < 0 || in.convs[i].UnreadCount == 0 {
		return false
	}
	in.convs[i].UnreadCount = 0
	return true
}

// Conversations returns a copy of the ordered list.
func (in *Inbox) Conversations() []chat.DmConversation {
	return slices.Clone(in.convs)
}

// Get returns the conversation for slug.
func (in *Inbox) Get(slug string) (chat.DmConversation, bool) {
	i := slices.IndexFunc(in.convs, func(c chat.DmConversation) bool { return c.Slug == slug })
	if i < 0 {
		return chat.DmConversation{}, false
	}
	return in.convs[i], true
}

// UnreadTotal sums unread counters across conversations.
func (in *Inbox) UnreadTotal() int {
	total := 0
	for _, c := range in.convs {
		total += c.UnreadCount
	}
	return total
}

// SetTyping updates the typing set of a conversation and reports whether it changed.
func (in *Inbox) SetTyping(slug, username string, typing bool) bool {
	if username == "" {
		return false
	}
	set := in.typing[slug]
	_, had := set[username]
	if typing == had {
		return false
	}
	if typing {
		if set == nil {
			set = make(map[string]struct{})
			in.typing[slug] = set
		}
		set[username] = struct{}{}
		return true
	}
	delete(set, username)
	if len(set) == 0 {
		delete(in.typing, slug)
	}
	return true
}

// TypingUsers returns the sorted typing set of a conversation.
func (in *Inbox) TypingUsers(slug string) []string {
	out := make([]string, 0, len(in.typing[slug]))
	for u := range in.typing[slug] {
		out = append(out, u)
	}
	slices.Sort(out)
	return out
}

// Reset clears all state.
func (in *Inbox) Reset() {
	in.convs = nil
	in.active = ""
	in.typing = make(map[string]map[string]struct{})
}

// Preview flattens content to one line and truncates it to PreviewWidth cells.
func Preview(content string) string {
	flat := strings.Join(strings.Fields(content), " ")
	return runewidth.Truncate(flat, PreviewWidth, "…")
}
