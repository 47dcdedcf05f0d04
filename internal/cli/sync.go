package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"eventsbot/internal/digest"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization pass and exit",
		Long: `Fetch the events feed, render the current week and the lookahead week,
and post or update the digest in every registered channel.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(rootOpts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, runErr := a.digest.RunOnce(cmd.Context())
			if err := output(cmd.OutOrStdout(), rootOpts.Format, summary, func(w io.Writer) {
				printSummary(w, summary)
			}); err != nil {
				return err
			}
			if runErr != nil {
				return WrapExitError(ExitFailure, "sync pass failed", runErr)
			}
			return nil
		},
	}
}

func printSummary(w io.Writer, s digest.Summary) {
	fmt.Fprintf(w, "pass %s\n", s.PassID)
	for _, ws := range s.Weeks {
		fmt.Fprintf(w, "week %s: %d events, %d messages, %d created, %d updated, %d unchanged, %d spillovers\n",
			ws.Week, ws.Events, ws.Drafts, ws.Created, ws.Updated, ws.Unchanged, len(ws.Spillovers))
	}
}
