package testutil

import "github.com/zjrosen/huddle/internal/chat"

// MessageOption configures a message built by Message.
type MessageOption func(*chat.Message)

// AgentTurn makes the message a fragment of the streamed agent turn turnID.
func AgentTurn(turnID string) MessageOption {
	return func(m *chat.Message) {
		m.Type = chat.MessageAgentTurn
		setAttr(m, chat.AttrTurnID, turnID)
	}
}

// InSession groups an agent turn fragment by session id instead of turn id.
func InSession(sessionID string) MessageOption {
	return func(m *chat.Message) { setAttr(m, chat.AttrSessionID, sessionID) }
}

// TurnEvent sets the agent event name of a fragment, e.g. "text" or "tool_use".
func TurnEvent(event string) MessageOption {
	return func(m *chat.Message) { setAttr(m, chat.AttrEvent, event) }
}

// UserID overrides the sender id.
func UserID(id string) MessageOption {
	return func(m *chat.Message) { m.UserID = id }
}

// Unstamped clears the derived timestamp, as a message arrives on the wire.
func Unstamped() MessageOption {
	return func(m *chat.Message) { m.Timestamp = "" }
}

func setAttr(m *chat.Message, key string, value any) {
	if m.Attributes == nil {
		m.Attributes = make(map[string]any)
	}
	m.Attributes[key] = value
}
