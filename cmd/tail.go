package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/huddle/internal/log"
	"github.com/zjrosen/huddle/internal/pubsub"
	"github.com/zjrosen/huddle/internal/session"
	"github.com/zjrosen/huddle/internal/watcher"
)

var tailChannel string

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Stream channel messages",
	Long: `Connect, subscribe to the configured channels and print the active channel's
history followed by live messages. Messages in other channels print as one-line
notices. Edits to the config file's channel list are applied live.`,
	Args: cobra.NoArgs,
	RunE: runTail,
}

func init() {
	tailCmd.Flags().StringVar(&tailChannel, "channel", "", "active channel (default: first configured channel)")
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, _ []string) error {
	active := tailChannel
	if active == "" && len(cfg.Channels) > 0 {
		active = cfg.Channels[0]
	}
	if active == "" {
		return fmt.Errorf("no channel to tail: pass --channel or list channels in the config")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Subscribe before joining so the history event is not missed.
	listener := pubsub.NewContinuousListener(ctx, rt.session.Broker())
	subscribeConfigured(ctx, rt.session, cfg.Channels)

	m := newTailModel(ctx, rt.session, listener, active)
	if w, err := watcher.New(watcher.DefaultConfig(configPath())); err != nil {
		log.Warn(log.CatWatcher, "Config watcher unavailable", "error", err)
	} else if ch, err := w.Start(); err != nil {
		log.Warn(log.CatWatcher, "Config watcher unavailable", "error", err)
		_ = w.Stop()
	} else {
		defer func() { _ = w.Stop() }()
		m.configChanged = ch
	}

	_, err = tea.NewProgram(m, tea.WithContext(ctx)).Run()
	rt.session.MarkChannelAsReadBestEffort(rt.session.ActiveChannel())
	if err != nil && !errors.Is(err, tea.ErrInterrupted) && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

type (
	activatedMsg     struct{ err error }
	configChangedMsg struct{}
	channelsSyncMsg  struct{ added, removed []string }
)

// tailModel prints session events above a one-line status bar.
type tailModel struct {
	ctx           context.Context
	session       *session.Session
	listener      *pubsub.ContinuousListener[session.Event]
	active        string
	configChanged <-chan struct{}
}

func newTailModel(ctx context.Context, s *session.Session, l *pubsub.ContinuousListener[session.Event], active string) *tailModel {
	return &tailModel{ctx: ctx, session: s, listener: l, active: active}
}

func (m *tailModel) Init() tea.Cmd {
	return tea.Batch(m.listener.Listen(), m.activate(), m.waitConfig())
}

func (m *tailModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
	case pubsub.Event[session.Event]:
		lines := renderEvent(msg.Payload, m.session.Username())
		if n := m.listener.Missed(msg); n > 0 {
			lines = append([]string{noticeStyle.Render(fmt.Sprintf("… %d events skipped", n))}, lines...)
		}
		if len(lines) == 0 {
			return m, m.listener.Listen()
		}
		return m, tea.Sequence(tea.Println(strings.Join(lines, "\n")), m.listener.Listen())
	case activatedMsg:
		if msg.err != nil {
			log.Warn(log.CatSession, "Active channel not loaded", "slug", m.active, "error", msg.err)
		}
	case configChangedMsg:
		return m, tea.Batch(m.syncChannels(), m.waitConfig())
	case channelsSyncMsg:
		var lines []string
		for _, slug := range msg.added {
			lines = append(lines, noticeStyle.Render("joined #"+slug))
		}
		for _, slug := range msg.removed {
			lines = append(lines, noticeStyle.Render("left #"+slug))
		}
		if len(lines) > 0 {
			return m, tea.Println(strings.Join(lines, "\n"))
		}
	}
	return m, nil
}

func (m *tailModel) View() string {
	s := m.session
	active := s.ActiveChannel()
	return renderStatusBar(s.Status(), active, len(s.OnlineUsers()), s.TypingUsers(active)) + "\n"
}

func (m *tailModel) activate() tea.Cmd {
	return func() tea.Msg {
		return activatedMsg{err: m.session.SetActiveChannel(m.ctx, m.active)}
	}
}

func (m *tailModel) waitConfig() tea.Cmd {
	if m.configChanged == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return nil
		case _, ok := <-m.configChanged:
			if !ok {
				return nil
			}
			return configChangedMsg{}
		}
	}
}

// syncChannels re-reads the channel list and joins or leaves the difference.
// The active channel is never left.
func (m *tailModel) syncChannels() tea.Cmd {
	return func() tea.Msg {
		v := viper.New()
		v.SetConfigFile(configPath())
		if err := v.ReadInConfig(); err != nil {
			log.Warn(log.CatConfig, "Config reload failed", "error", err)
			return nil
		}
		added, removed := diffChannels(m.session.Channels(), v.GetStringSlice("channels"), m.session.ActiveChannel())
		log.Info(log.CatConfig, "Config channels changed", "added", added, "removed", removed)

		failed := m.session.SubscribeToChannels(m.ctx, added)
		added = slices.DeleteFunc(added, func(slug string) bool { return failed[slug] != nil })
		for _, slug := range removed {
			if err := m.session.UnsubscribeFromChannel(m.ctx, slug); err != nil {
				log.Debug(log.CatChannel, "Leave failed", "slug", slug, "error", err)
			}
		}
		return channelsSyncMsg{added: added, removed: removed}
	}
}

// diffChannels returns the slugs listed but not subscribed and the slugs
// subscribed but no longer listed, excluding keep.
func diffChannels(subscribed, listed []string, keep string) (added, removed []string) {
	for _, slug := range listed {
		if slug != "" && !slices.Contains(subscribed, slug) && !slices.Contains(added, slug) {
			added = append(added, slug)
		}
	}
	for _, slug := range subscribed {
		if slug != keep && !slices.Contains(listed, slug) {
			removed = append(removed, slug)
		}
	}
	return added, removed
}
