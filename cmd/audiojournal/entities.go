package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/audiojournal/internal/entity"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Inspect the entity registry",
}

var entitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every entity with its mention count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		all, err := reg.List(context.Background())
		if err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No entities yet.")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SLUG\tNAME\tKIND\tMENTIONS")
		for _, e := range all {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", e.Slug, e.Name, e.Kind, len(e.Mentions))
		}
		return tw.Flush()
	},
}

var entitiesShowCmd = &cobra.Command{
	Use:   "show <slug>",
	Short: "Print an entity and its mentions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		e, err := reg.Get(context.Background(), args[0])
		if errors.Is(err, entity.ErrNotFound) {
			return fmt.Errorf("no entity %q", args[0])
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s, %s)\n", e.Name, e.Slug, e.Kind)
		for _, m := range e.Mentions {
			fmt.Fprintf(out, "  %s  %s\n", m.Date, m.Context)
		}
		return nil
	},
}

var entitiesSimilarCmd = &cobra.Command{
	Use:   "similar <name>",
	Short: "List entities whose names sound like name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		matches, err := reg.Similar(context.Background(), args[0])
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Nothing sounds like %q.\n", args[0])
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SLUG\tNAME\tSCORE\tPHONETIC")
		for _, m := range matches {
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%t\n", m.Slug, m.Name, m.Score, m.Phonetic)
		}
		return tw.Flush()
	},
}

func init() {
	entitiesCmd.AddCommand(entitiesListCmd, entitiesShowCmd, entitiesSimilarCmd)
	rootCmd.AddCommand(entitiesCmd)
}

func openRegistry() (*entity.FileRegistry, error) {
	return entity.NewFileRegistry(cfg.Paths.EntitiesDir, entity.WithJournalDir(cfg.Paths.JournalDir))
}
