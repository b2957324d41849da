// Package presentation formats command output for humans or as JSON.
package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).PaddingRight(2)
	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
	json   bool
}

// NewFormatter creates a formatter writing a text table, or indented JSON
// when asJSON is set.
func NewFormatter(writer io.Writer, asJSON bool) *Formatter {
	return &Formatter{
		writer: writer,
		json:   asJSON,
	}
}

// FormatOnlineUsers writes the who listing.
func (f *Formatter) FormatOnlineUsers(users []OnlineUserDTO) error {
	if f.json {
		return f.encode(users)
	}
	if len(users) == 0 {
		_, err := fmt.Fprintln(f.writer, "nobody online")
		return err
	}
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderHeader(false).
		Headers("USER", "SESSIONS", "ONLINE SINCE", "AGENT").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, u := range users {
		t.Row(u.Username, strconv.Itoa(u.Sessions), dash(u.OnlineAt), dash(u.CurrentAgent))
	}
	_, err := fmt.Fprintln(f.writer, t.Render())
	return err
}

// FormatSendResult writes the outcome of `huddle send`. Text mode is silent.
func (f *Formatter) FormatSendResult(result SendResultDTO) error {
	if !f.json {
		return nil
	}
	return f.encode(result)
}

func (f *Formatter) encode(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
