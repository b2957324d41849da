package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/huddle/internal/config"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List or edit the configured channels",
	Long: `List the channels huddle subscribes to, or add and remove them in the config
file. A running "huddle tail" picks up the change.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, slug := range cfg.Channels {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), slug)
		}
		return nil
	},
}

var channelsAddCmd = &cobra.Command{
	Use:   "add SLUG",
	Short: "Add a channel to the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return config.AddChannel(configPath(), args[0], cfg.Channels)
	},
}

var channelsRemoveCmd = &cobra.Command{
	Use:     "remove SLUG",
	Aliases: []string{"rm"},
	Short:   "Remove a channel from the config file",
	Args:    cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return config.RemoveChannel(configPath(), args[0], cfg.Channels)
	},
}

func init() {
	channelsCmd.AddCommand(channelsAddCmd, channelsRemoveCmd)
	rootCmd.AddCommand(channelsCmd)
}
