package presentation

import (
	"github.com/zjrosen/huddle/internal/chat"
	"github.com/zjrosen/huddle/internal/presence"
)

// OnlineUserDTO is one row of `huddle who`.
type OnlineUserDTO struct {
	Username     string `json:"username"`
	UserID       string `json:"user_id,omitempty"`
	OnlineAt     string `json:"online_at,omitempty"`
	CurrentAgent string `json:"current_agent,omitempty"`
	Sessions     int    `json:"sessions"`
}

// FromOnlineUsers converts the global presence view. Each row represents the
// user's preferred session, so Sessions is always 1.
func FromOnlineUsers(users []chat.OnlineUser) []OnlineUserDTO {
	dtos := make([]OnlineUserDTO, 0, len(users))
	for _, u := range users {
		dtos = append(dtos, OnlineUserDTO{
			Username:     u.Username,
			UserID:       u.Meta.UserID,
			OnlineAt:     u.Meta.OnlineAt,
			CurrentAgent: u.Meta.CurrentAgent,
			Sessions:     1,
		})
	}
	return dtos
}

// FromPresence converts one channel's presence map, counting live sessions
// per user. Rows are sorted by username.
func FromPresence(state chat.PresenceState) []OnlineUserDTO {
	flat := presence.Flatten(state)
	dtos := FromOnlineUsers(flat)
	for i := range dtos {
		dtos[i].Sessions = len(state[dtos[i].Username].Metas)
	}
	return dtos
}

// SendResultDTO reports a delivered message.
type SendResultDTO struct {
	Channel string `json:"channel"`
	Sent    bool   `json:"sent"`
}
