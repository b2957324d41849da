package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/huddle/internal/presentation"
)

var sendJSON bool

var sendCmd = &cobra.Command{
	Use:   "send CHANNEL TEXT...",
	Short: "Send a message to a channel",
	Long: `Connect, join CHANNEL, send TEXT and disconnect. The remaining arguments are
joined with spaces.

Examples:
  huddle send general hello everyone
  huddle send general "deploy finished" --json`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	slug := args[0]
	text := strings.TrimSpace(strings.Join(args[1:], " "))
	if text == "" {
		return fmt.Errorf("message text is empty")
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.session.SubscribeToChannel(ctx, slug); err != nil {
		return err
	}
	if err := rt.session.SendMessage(ctx, slug, text); err != nil {
		return fmt.Errorf("sending to %s: %w", slug, err)
	}
	return presentation.NewFormatter(os.Stdout, sendJSON).FormatSendResult(presentation.SendResultDTO{Channel: slug, Sent: true})
}
