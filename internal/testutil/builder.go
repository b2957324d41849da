package testutil

import "github.com/zjrosen/huddle/internal/chat"

// PresenceBuilder accumulates sessions and builds presence payloads.
type PresenceBuilder struct {
	state chat.PresenceState
}

// NewPresence creates an empty builder.
func NewPresence() *PresenceBuilder {
	return &PresenceBuilder{state: make(chat.PresenceState)}
}

// WithSession adds one live session for username. Calling it again for the
// same username adds a concurrent session.
func (b *PresenceBuilder) WithSession(username, ref, userID, onlineAt string) *PresenceBuilder {
	entry := b.state[username]
	entry.Metas = append(entry.Metas, Meta(ref, userID, onlineAt))
	b.state[username] = entry
	return b
}

// WithAgent adds a session that is running agent.
func (b *PresenceBuilder) WithAgent(username, ref, userID, onlineAt, agent string) *PresenceBuilder {
	b.WithSession(username, ref, userID, onlineAt)
	metas := b.state[username].Metas
	metas[len(metas)-1].CurrentAgent = agent
	return b
}

// Build returns the accumulated state.
func (b *PresenceBuilder) Build() chat.PresenceState {
	return b.state
}

// Diff wraps joins and leaves in a presence_diff payload.
func Diff(joins, leaves chat.PresenceState) chat.PresenceDiff {
	return chat.PresenceDiff{Joins: joins, Leaves: leaves}
}
