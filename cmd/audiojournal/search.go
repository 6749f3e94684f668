package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/audiojournal/internal/vectorindex"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Find journal entries similar to a text",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "k", "k", vectorindex.DefaultLimit, "maximum number of results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, closeApp, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp()

	results, err := a.Search(ctx, args[0], searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No similar entries found.")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(out, "  [%d] %s (%.3f)\n", i+1, r.Date, r.Similarity)
		if line := firstLine(r.Text); line != "" {
			fmt.Fprintf(out, "      %s\n", line)
		}
	}
	return nil
}

// firstLine returns the first non-blank line of s, cut to 100 runes.
func firstLine(s string) string {
	for line := range strings.Lines(s) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > 100 {
			return string(r[:99]) + "…"
		}
		return line
	}
	return ""
}
