package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/huddle/internal/flags"
	"github.com/zjrosen/huddle/internal/presentation"
	"github.com/zjrosen/huddle/internal/session"
)

// presenceWait bounds how long who waits for presence snapshots.
const presenceWait = 3 * time.Second

var (
	whoChannel string
	whoJSON    bool
)

var whoCmd = &cobra.Command{
	Use:   "who",
	Short: "List who is online",
	Long: `List who is online across the backend, or in one channel with --channel.

Without the status-presence flag, global presence is aggregated from the
configured channels.`,
	Args: cobra.NoArgs,
	RunE: runWho,
}

func init() {
	whoCmd.Flags().StringVar(&whoChannel, "channel", "", "list one channel's presence")
	whoCmd.Flags().BoolVar(&whoJSON, "json", false, "print the listing as JSON")
	rootCmd.AddCommand(whoCmd)
}

func runWho(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	global := whoChannel == "" && flags.New(cfg.Flags).Enabled(flags.FlagStatusPresence)

	snapshots := make(chan struct{}, 64)
	signal := func(session.Event) {
		select {
		case snapshots <- struct{}{}:
		default:
		}
	}
	rt, err := openRuntime(ctx, func(s *session.Session) {
		if global {
			s.On(session.EventGlobalPresence, signal)
		} else {
			s.On(session.EventPresence, signal)
		}
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	formatter := presentation.NewFormatter(os.Stdout, whoJSON)
	switch {
	case whoChannel != "":
		if err := rt.session.SubscribeToChannel(ctx, whoChannel); err != nil {
			return err
		}
		waitSnapshots(ctx, snapshots, 1)
		return formatter.FormatOnlineUsers(presentation.FromPresence(rt.session.Presence(whoChannel)))
	case global:
		waitSnapshots(ctx, snapshots, 1)
	default:
		subscribeConfigured(ctx, rt.session, cfg.Channels)
		waitSnapshots(ctx, snapshots, len(rt.session.Channels()))
	}
	return formatter.FormatOnlineUsers(presentation.FromOnlineUsers(rt.session.OnlineUsers()))
}

// waitSnapshots returns after n signals, presenceWait or ctx cancellation,
// whichever comes first.
func waitSnapshots(ctx context.Context, signals <-chan struct{}, n int) {
	timer := time.NewTimer(presenceWait)
	defer timer.Stop()
	for range n {
		select {
		case <-signals:
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}
