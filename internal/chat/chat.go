// Package chat defines the domain types shared by the realtime session manager:
// messages, presence entries, subscribers and direct-message conversations.
package chat

import "maps"

// MessageType classifies a chat message.
type MessageType string

const (
	MessageUser      MessageType = "user"
	MessageSystem    MessageType = "system"
	MessageAgentTurn MessageType = "agent_turn"
)

// Attribute keys used by streamed agent turns.
const (
	AttrTurnID    = "turn_id"
	AttrSessionID = "session_id"
	AttrEvent     = "event"

	// Accumulated by turn coalescing, parallel ordered lists.
	AttrTurnEvents   = "turn_events"
	AttrTurnContents = "turn_contents"
)

// Message is a single chat message. Timestamp is derived from ID and is never
// read from the wire.
type Message struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id,omitempty"`
	Username   string         `json:"username"`
	Content    string         `json:"content"`
	Type       MessageType    `json:"type,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Timestamp  string         `json:"-"`
}

// IsSystem reports whether the message is a system notice.
func (m Message) IsSystem() bool {
	return m.Type == MessageSystem
}

// IsAgentTurn reports whether the message is a fragment of streamed agent output.
func (m Message) IsAgentTurn() bool {
	return m.Type == MessageAgentTurn && m.StringAttr(AttrTurnID) != ""
}

// StringAttr returns a string attribute or "" when absent or not a string.
func (m Message) StringAttr(key string) string {
	if m.Attributes == nil {
		return ""
	}
	s, _ := m.Attributes[key].(string)
	return s
}

// TurnKey is the grouping key of an agent turn: session_id if present, else turn_id.
func (m Message) TurnKey() string {
	if sid := m.StringAttr(AttrSessionID); sid != "" {
		return sid
	}
	return m.StringAttr(AttrTurnID)
}

// Clone returns a copy whose Attributes map can be mutated independently.
func (m Message) Clone() Message {
	if m.Attributes != nil {
		m.Attributes = maps.Clone(m.Attributes)
	}
	return m
}

// SessionMeta describes one live session of a user.
type SessionMeta struct {
	Ref          string `json:"phx_ref"`
	UserID       string `json:"user_id"`
	OnlineAt     string `json:"online_at"`
	CurrentAgent string `json:"current_agent,omitempty"`
}

// PresenceEntry holds one meta per concurrent live session of a username.
type PresenceEntry struct {
	Metas []SessionMeta `json:"metas"`
}

// PresenceState maps username to its presence entry.
type PresenceState map[string]PresenceEntry

// PresenceDiff is a membership change. Leaves are applied before joins.
type PresenceDiff struct {
	Joins  PresenceState `json:"joins"`
	Leaves PresenceState `json:"leaves"`
}

// Role is a subscriber's role in a private channel.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Subscriber is a member of a private channel.
type Subscriber struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// DmConversation is one entry of the direct-message conversation list.
type DmConversation struct {
	ChannelID          string `json:"channel_id"`
	Slug               string `json:"slug"`
	OtherUserID        string `json:"other_user_id"`
	OtherUsername      string `json:"other_username"`
	LastActivityAt     string `json:"last_activity_at"`
	LastMessagePreview string `json:"last_message_preview"`
	UnreadCount        int    `json:"unread_count"`
}

// OnlineUser is one row of the global presence view.
type OnlineUser struct {
	Username string
	Meta     SessionMeta
}
