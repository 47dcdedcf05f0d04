package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"eventsbot/internal/cli"
	appLog "eventsbot/internal/log"
)

var version = "0.1.0-dev"

func main() {
	appLog.Info("eventsbot starting", "version", version)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	err := cli.NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	code := cli.GetExitCode(err)
	if errors.Is(err, context.Canceled) {
		code = cli.ExitSuccess
	}
	appLog.Info("eventsbot exiting", "code", code)
	os.Exit(code)
}
