package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	appLog "eventsbot/internal/log"
	"eventsbot/internal/schedule"
	"eventsbot/internal/web"
)

const (
	jobSync  = "sync"
	jobPurge = "purge"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP server",
		Long: `Run synchronization passes on sync_schedule, purge old messages on
purge_schedule and serve Slack slash commands, /healthz and /api.

A background job that panics or fails unexpectedly stops the process
with exit code 1 so that a supervisor can restart it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.cfg
			if listen != "" {
				cfg.Listen = listen
			}
			return runServe(cmd.Context(), rootOpts)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func runServe(parent context.Context, rootOpts *RootOptions) error {
	cfg := rootOpts.cfg
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"week_start", cfg.WeekStart,
		"feed_format", cfg.Feed.Format,
		"sync_schedule", cfg.SyncSchedule,
		"purge_schedule", cfg.PurgeSchedule,
		"retention_days", cfg.RetentionDays,
		"max_parallel_channels", cfg.MaxParallelChannels,
	)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sched := schedule.New(ctx, a.loc)
	jobs := []schedule.Job{
		{Name: jobSync, Spec: cfg.SyncSchedule, Run: func(ctx context.Context) error {
			_, err := a.digest.RunOnce(ctx)
			return err
		}},
		{Name: jobPurge, Spec: cfg.PurgeSchedule, Run: a.purger.RunOnce},
	}
	for _, j := range jobs {
		if err := sched.Add(j); err != nil {
			return WrapExitError(ExitCommandError, "schedule jobs", err)
		}
	}

	server := web.NewServer(cfg, web.Deps{
		Store:    a.store,
		Admins:   a.slack,
		Health:   sched,
		CheckAPI: func() { sched.Trigger(jobSync) },
	})

	srvErr := make(chan error, 1)
	go func() { srvErr <- server.Run(ctx) }()
	sched.Start()

	var result error
	serverDone := false
	select {
	case <-ctx.Done():
		appLog.Info("shutting down")
	case fe := <-sched.Fatal():
		result = WrapExitError(ExitFailure, "background job died", fe)
	case err := <-srvErr:
		serverDone = true
		if err != nil {
			result = WrapExitError(ExitFailure, "http server", err)
		}
	}

	cancel()
	if !serverDone {
		if err := <-srvErr; err != nil {
			appLog.Error("http server shutdown", err)
		}
	}
	stopped := sched.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(30 * time.Second):
		appLog.Warn("jobs still running at shutdown")
	}
	return result
}
