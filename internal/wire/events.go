package wire

import "github.com/zjrosen/huddle/internal/chat"

// Channel topic events.
const (
	EventNewMessage    = "new_message"
	EventPresenceState = "presence_state"
	EventPresenceDiff  = "presence_diff"
	EventTypingStart   = "user_typing_start"
	EventTypingStop    = "user_typing_stop"
	EventUserInvited   = "user_invited"
	EventUserRemoved   = "user_removed"

	// Outbound.
	EventPushTypingStart = "typing:start"
	EventPushTypingStop  = "typing:stop"
	EventMarkAsRead      = "mark_as_read"
	EventMarkAllRead     = "mark_all_read"
)

// User topic events.
const (
	EventDMNewMessage  = "dm:new_message"
	EventDMTypingStart = "dm:typing_start"
	EventDMTypingStop  = "dm:typing_stop"
	EventChannelAdded  = "channel_added"

	// Outbound.
	EventDMSend     = "dm:send"
	EventDMMarkRead = "dm:mark_read"
)

// TypingPayload is carried by typing events on channel topics.
type TypingPayload struct {
	Username string `json:"username"`
	UserID   string `json:"user_id,omitempty"`
}

// MemberPayload is carried by user_invited and user_removed.
type MemberPayload struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Role     chat.Role `json:"role,omitempty"`
}

// ContentPayload is the body of new_message pushes.
type ContentPayload struct {
	Content string `json:"content"`
}

// DMMessagePayload is carried by dm:new_message.
type DMMessagePayload struct {
	DMSlug        string       `json:"dm_slug"`
	ChannelID     string       `json:"channel_id"`
	OtherUserID   string       `json:"other_user_id"`
	OtherUsername string       `json:"other_username"`
	Message       chat.Message `json:"message"`
}

// DMTypingPayload is carried by dm typing events in both directions.
type DMTypingPayload struct {
	DMSlug   string `json:"dm_slug"`
	Username string `json:"username,omitempty"`
}

// DMSendPayload is the body of dm:send.
type DMSendPayload struct {
	DMSlug  string `json:"dm_slug"`
	Content string `json:"content"`
}

// ChannelAddedPayload is carried by channel_added.
type ChannelAddedPayload struct {
	Slug      string `json:"slug"`
	ChannelID string `json:"channel_id,omitempty"`
	Name      string `json:"name,omitempty"`
}

// DMSlugPayload is the body of dm:mark_read.
type DMSlugPayload struct {
	DMSlug string `json:"dm_slug"`
}
