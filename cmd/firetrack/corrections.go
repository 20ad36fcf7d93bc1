package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/Veraticus/firetrack/internal/cli"
	"github.com/Veraticus/firetrack/internal/model"
	"github.com/spf13/cobra"
)

func correctionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corrections",
		Short: "Record and review category corrections",
		Long: `A correction records that a transaction belongs in a different category than
the one it was given. Repeated corrections of the same description become rule
suggestions (see 'firetrack suggestions').`,
	}

	cmd.AddCommand(correctionsRecordCmd())
	cmd.AddCommand(correctionsHistoryCmd())

	return cmd
}

func correctionsRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record <description>",
		Short: "Record a correction",
		Args:  cobra.ExactArgs(1),
		Example: `  firetrack corrections record "DELIVEROO LONDON" --category Takeaway --was "Eating Out" --source ai
  firetrack corrections record "TESCO STORES 1234" --category Groceries --transaction acct:2024010101 --apply`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			categoryName, _ := cmd.Flags().GetString("category")
			was, _ := cmd.Flags().GetString("was")
			source, _ := cmd.Flags().GetString("source")
			txnID, _ := cmd.Flags().GetString("transaction")
			apply, _ := cmd.Flags().GetBool("apply")

			origin, err := parseSource(source)
			if err != nil {
				return err
			}
			corrected, err := resolveCategory(ctx, a.store, categoryName)
			if err != nil {
				return err
			}

			correction := model.Correction{
				Description:         args[0],
				CorrectedCategoryID: corrected.ID,
				OriginalSource:      origin,
			}
			if was != "" {
				original, err := resolveCategory(ctx, a.store, was)
				if err != nil {
					return err
				}
				correction.OriginalCategoryID = &original.ID
			}

			saved, err := a.learning.RecordCorrection(ctx, correction)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Recorded %q as %s", saved.Description, corrected.Name)))

			if apply && txnID != "" {
				if err := a.store.SetTransactionCategory(ctx, txnID, corrected.ID); err != nil {
					return fmt.Errorf("failed to update transaction: %w", err)
				}
				fmt.Fprintln(out, cli.FormatSuccess("Transaction "+txnID+" updated"))
			}

			printSuggestionHint(cmd, a)
			return nil
		},
	}

	cmd.Flags().String("category", "", "Correct category name")
	cmd.Flags().String("was", "", "Category the transaction had before")
	cmd.Flags().String("source", string(model.SourceNone), "Strategy that produced the wrong category")
	cmd.Flags().String("transaction", "", "Transaction id the correction applies to")
	cmd.Flags().Bool("apply", false, "Also set the category on --transaction")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func correctionsHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <description>",
		Short: "Show earlier corrections of a description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			history, err := a.learning.GetCorrectionsForDescription(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(history) == 0 {
				fmt.Fprintln(out, cli.InfoStyle.Render("No corrections recorded for "+args[0]))
				return nil
			}

			categories, err := a.store.GetCategories(ctx)
			if err != nil {
				return fmt.Errorf("failed to get categories: %w", err)
			}
			idx := model.NewCategoryIndex(categories)
			name := func(id string) string {
				if c, ok := idx.ByID(id); ok {
					return c.Name
				}
				return "-"
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				cli.TableHeaderStyle.Render("When"),
				cli.TableHeaderStyle.Render("From"),
				cli.TableHeaderStyle.Render("To"),
				cli.TableHeaderStyle.Render("Source"),
				cli.TableHeaderStyle.Render("Learned"))
			for _, c := range history {
				from := "-"
				if c.OriginalCategoryID != nil {
					from = name(*c.OriginalCategoryID)
				}
				learned := "no"
				if c.Processed {
					learned = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					c.CreatedAt.Format("2006-01-02 15:04"), from, name(c.CorrectedCategoryID), c.OriginalSource, learned)
			}
			return w.Flush()
		},
	}
}

func parseSource(s string) (model.Source, error) {
	switch src := model.Source(strings.ToLower(strings.TrimSpace(s))); src {
	case model.SourceRuleExact, model.SourceRulePattern, model.SourceSimilar, model.SourceAI, model.SourceNone:
		return src, nil
	default:
		return "", fmt.Errorf("unknown source %q (want rule_exact, rule_pattern, similar, ai or none)", s)
	}
}
