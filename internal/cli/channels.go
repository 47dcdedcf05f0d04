package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"eventsbot/internal/store"
)

// NewChannelsCommand creates the channels command group.
func NewChannelsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Manage the channels the digest is posted to",
	}
	cmd.AddCommand(newChannelsAddCommand(rootOpts))
	cmd.AddCommand(newChannelsRemoveCommand(rootOpts))
	cmd.AddCommand(newChannelsListCommand(rootOpts))
	return cmd
}

func newChannelsAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <channel-id>",
		Short: "Register a Slack channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts.cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			err = st.AddChannel(cmd.Context(), args[0])
			if errors.Is(err, store.ErrChannelExists) {
				return WrapExitError(ExitCommandError, "add channel", err)
			}
			if err != nil {
				return WrapExitError(ExitFailure, "add channel", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", args[0])
			return nil
		},
	}
}

func newChannelsRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <channel-id>",
		Short: "Unregister a Slack channel and forget its stored messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts.cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			err = st.RemoveChannel(cmd.Context(), args[0])
			if errors.Is(err, store.ErrChannelNotFound) {
				return WrapExitError(ExitCommandError, "remove channel", err)
			}
			if err != nil {
				return WrapExitError(ExitFailure, "remove channel", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}

func newChannelsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts.cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			channels, err := st.ListChannels(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "list channels", err)
			}
			if channels == nil {
				channels = []string{}
			}
			return output(cmd.OutOrStdout(), rootOpts.Format, channels, func(w io.Writer) {
				for _, c := range channels {
					fmt.Fprintln(w, c)
				}
			})
		},
	}
}
