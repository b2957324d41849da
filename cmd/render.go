package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/huddle/internal/chat"
	"github.com/zjrosen/huddle/internal/connection"
	"github.com/zjrosen/huddle/internal/dm"
	"github.com/zjrosen/huddle/internal/session"
)

var (
	timeStyle    = lipgloss.NewStyle().Faint(true)
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#1A5FB4", Dark: "#62A0EA"})
	selfStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#26A269", Dark: "#8FF0A4"})
	systemStyle  = lipgloss.NewStyle().Italic(true).Faint(true)
	agentStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9141AC", Dark: "#DC8ADD"})
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#986A44", Dark: "#F9F06B"})
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E01B24"))
	statusBar    = lipgloss.NewStyle().Faint(true)
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#2EC27E"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E01B24"))
)

// clockOf returns HH:MM:SS from a derived message timestamp.
func clockOf(ts string) string {
	if len(ts) < len("2006-01-02T15:04:05") {
		return "--:--:--"
	}
	return ts[11:19]
}

// formatMessage renders one line per message. Agent turns render their
// accumulated fragments on continuation lines.
func formatMessage(m chat.Message, self string) string {
	clock := timeStyle.Render(clockOf(m.Timestamp))
	switch {
	case m.IsSystem():
		return clock + " " + systemStyle.Render("* "+m.Content)
	case m.IsAgentTurn():
		return clock + " " + agentStyle.Render(m.Username+" ▸") + " " + m.Content
	}
	name := userStyle
	if self != "" && m.Username == self {
		name = selfStyle
	}
	return clock + " " + name.Render(m.Username+":") + " " + m.Content
}

// renderEvent turns a session event into printable lines. Events that only
// change the status bar render nothing.
func renderEvent(ev session.Event, self string) []string {
	switch ev.Kind {
	case session.EventHistoryLoaded:
		lines := make([]string, 0, len(ev.Messages)+2)
		lines = append(lines, noticeStyle.Render(fmt.Sprintf("── #%s (%d messages) ──", ev.Channel, len(ev.Messages))))
		for _, m := range ev.Messages {
			lines = append(lines, formatMessage(m, self))
		}
		if ev.Err != nil {
			lines = append(lines, errorStyle.Render("history unavailable: "+ev.Err.Error()))
		}
		return lines
	case session.EventNewMessage:
		line := formatMessage(ev.Message, self)
		if ev.Replaced {
			line = timeStyle.Render("  ↳ ") + line
		}
		return []string{line}
	case session.EventNonActiveMessage:
		return []string{noticeStyle.Render(fmt.Sprintf("[#%s] %s: %s", ev.Channel, ev.Message.Username, dm.Preview(ev.Message.Content)))}
	case session.EventDM:
		if ev.DM.UnreadCount == 0 {
			return nil
		}
		return []string{noticeStyle.Render(fmt.Sprintf("[dm @%s] %s (%d unread)", ev.DM.OtherUsername, ev.DM.LastMessagePreview, ev.DM.UnreadCount))}
	case session.EventChannelRemoved:
		return []string{errorStyle.Render("removed from #" + ev.Channel)}
	case session.EventError:
		if ev.Err == nil {
			return nil
		}
		if ev.Channel != "" {
			return []string{errorStyle.Render(fmt.Sprintf("error in %s: %v", ev.Channel, ev.Err))}
		}
		return []string{errorStyle.Render("error: " + ev.Err.Error())}
	case session.EventStatus:
		if ev.Status == connection.StatusConnecting || ev.Status == connection.StatusConnected {
			return nil
		}
		return []string{noticeStyle.Render("connection " + ev.Status.String())}
	}
	return nil
}

// renderStatusBar summarizes connection status, the active channel, who is
// online and who is typing.
func renderStatusBar(status connection.Status, active string, online int, typing []string) string {
	dot := offlineStyle.Render("●")
	if status == connection.StatusConnected {
		dot = onlineStyle.Render("●")
	}
	parts := []string{dot + " " + status.String()}
	if active != "" {
		parts = append(parts, "#"+active)
	}
	parts = append(parts, fmt.Sprintf("%d online", online))
	switch len(typing) {
	case 0:
	case 1:
		parts = append(parts, typing[0]+" is typing…")
	default:
		parts = append(parts, strings.Join(typing, ", ")+" are typing…")
	}
	return statusBar.Render(strings.Join(parts, " · "))
}
