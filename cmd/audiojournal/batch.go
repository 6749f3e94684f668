package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/MrWong99/audiojournal/internal/batch"
)

var (
	batchConcurrency int
	batchPattern     string
)

var batchCmd = &cobra.Command{
	Use:   "batch <directory|manifest.xlsx>",
	Short: "Process many recordings",
	Long: `Processes every recording in a directory (selected by a glob pattern) or
listed in an .xlsx manifest with path, date and language columns. The command
fails when any recording fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "j", 0, "recordings processed at once (default from config)")
	batchCmd.Flags().StringVar(&batchPattern, "pattern", "", "glob selecting recordings in a directory (default from config)")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	if batchConcurrency > 0 {
		cfg.Batch.Concurrency = batchConcurrency
	}
	if batchPattern != "" {
		cfg.Batch.Pattern = batchPattern
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, closeApp, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp()

	out := cmd.OutOrStdout()
	var (
		mu   sync.Mutex
		ok   = color.New(color.FgGreen).SprintFunc()
		part = color.New(color.FgYellow).SprintFunc()
		fail = color.New(color.FgRed, color.Bold).SprintFunc()
	)
	progress := func(o batch.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case o.Failed():
			fmt.Fprintf(out, "%s %s: %v\n", fail("FAIL"), o.Item.Path, o.Err)
		case o.Err != nil:
			fmt.Fprintf(out, "%s %s -> %s: %v\n", part("PART"), o.Item.Path, o.Result.Date, o.Err)
		default:
			fmt.Fprintf(out, "%s   %s -> %s\n", ok("OK"), o.Item.Path, o.Result.Date)
		}
	}

	sum, err := a.Batch(ctx, args[0], progress)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d processed, %d failed\n", len(sum.Outcomes)-sum.Failed(), sum.Failed())
	if n := sum.Failed(); n > 0 {
		return fmt.Errorf("%d of %d recordings failed", n, len(sum.Outcomes))
	}
	return nil
}
