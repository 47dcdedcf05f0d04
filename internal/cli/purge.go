package cli

import (
	"github.com/spf13/cobra"

	"eventsbot/internal/digest"
)

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Forget stored messages older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(rootOpts.cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			p := &digest.Purger{Store: st, RetentionDays: rootOpts.cfg.RetentionDays}
			if err := p.RunOnce(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "purge failed", err)
			}
			return nil
		},
	}
}
