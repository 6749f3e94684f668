package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/audiojournal/internal/journal"
)

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "Inspect journal entries",
}

var entriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List entry dates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := journal.NewFileStore(cfg.Paths.JournalDir)
		if err != nil {
			return err
		}
		dates, err := store.List(context.Background())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(dates) == 0 {
			fmt.Fprintln(out, "No entries yet.")
			return nil
		}
		for _, d := range dates {
			fmt.Fprintln(out, d)
		}
		return nil
	},
}

var entriesShowCmd = &cobra.Command{
	Use:   "show <date>",
	Short: "Print the entry of a date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := journal.NewFileStore(cfg.Paths.JournalDir)
		if err != nil {
			return err
		}
		e, err := store.Load(context.Background(), args[0])
		if errors.Is(err, journal.ErrNotFound) {
			return fmt.Errorf("no entry for %s", args[0])
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# %s\n", e.Date)
		if e.Created != "" {
			fmt.Fprintf(out, "created %s", e.Created)
			if e.Audio != "" {
				fmt.Fprintf(out, " from %s", e.Audio)
			}
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, e.Body)
		return nil
	},
}

func init() {
	entriesCmd.AddCommand(entriesListCmd, entriesShowCmd)
	rootCmd.AddCommand(entriesCmd)
}
