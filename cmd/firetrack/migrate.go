package main

import (
	"fmt"

	"github.com/Veraticus/firetrack/internal/cli"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database",
		Long: `Bring the database schema up to date.

A fresh database is seeded with the UK category taxonomy and the built-in
system rules. Running migrate again is harmless.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer closeQuietly(store)

			categories, err := store.GetCategories(ctx)
			if err != nil {
				return err
			}
			rules, err := store.ListRules(ctx)
			if err != nil {
				return err
			}
			system := 0
			for _, r := range rules {
				if r.IsSystem {
					system++
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess("Database is up to date: "+settings.Database.Path))
			fmt.Fprintln(out, cli.SubtleStyle.Render(fmt.Sprintf("  %d categories, %d rules (%d system)", len(categories), len(rules), system)))
			return nil
		},
	}
}
