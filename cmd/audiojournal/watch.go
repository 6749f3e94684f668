package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/audiojournal/internal/observe"
)

var watchCmd = &cobra.Command{
	Use:   "watch [inbox]",
	Short: "Process recordings as they arrive in a directory",
	Long: `Watches the inbox directory and processes every new recording once it has
stopped growing. Health probes and Prometheus metrics are served on
server.listen_addr. Stops on SIGINT or SIGTERM.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	var dir string
	if len(args) == 1 {
		dir = args[0]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	a, closeApp, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp()

	slog.Info("ready, press Ctrl+C to stop")
	if err := a.Watch(ctx, dir); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("shutdown signal received, stopping")
	return nil
}
