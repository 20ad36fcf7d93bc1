package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/firetrack/internal/cli"
	"github.com/Veraticus/firetrack/internal/model"
	"github.com/spf13/cobra"
)

// categoriseChunk is how many transactions go through the engine between progress updates.
const categoriseChunk = 25

func categoriseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categorise [description]",
		Aliases: []string{"categorize"},
		Short:   "Categorise uncategorised transactions",
		Long: `Run uncategorised transactions through rules, similar history and AI.

With a description argument, categorise that text alone and print the verdict.
Otherwise the newest uncategorised transactions are processed; pass --apply to
store the categories that meet --min-confidence.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCategorise,
	}

	cmd.Flags().Int("limit", 200, "Maximum number of transactions to process")
	cmd.Flags().Bool("apply", false, "Store categories on the transactions")
	cmd.Flags().Float64("min-confidence", 0.5, "Minimum confidence required to apply a category")
	cmd.Flags().BoolP("verbose", "v", false, "Print every result")

	return cmd
}

func runCategorise(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	apply, _ := cmd.Flags().GetBool("apply")
	minConfidence, _ := cmd.Flags().GetFloat64("min-confidence")
	verbose, _ := cmd.Flags().GetBool("verbose")
	out := cmd.OutOrStdout()

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx := interrupts.HandleInterrupts(cmd.Context(), apply)
	defer interrupts.Stop()

	a, err := newApp(ctx, settings)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 1 {
		txn := model.Transaction{Description: strings.TrimSpace(args[0])}
		result := a.engine.Categorise(ctx, txn)
		fmt.Fprintln(out, cli.FormatResult(txn, result))
		for _, alt := range result.Alternatives {
			fmt.Fprintf(out, "  %s %s %s\n", cli.SubtleStyle.Render("or"), alt.CategoryName, cli.FormatConfidence(alt.Confidence))
		}
		return nil
	}

	txns, err := a.store.UncategorisedTransactions(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(txns) == 0 {
		fmt.Fprintln(out, cli.FormatInfo("No uncategorised transactions. Import a statement with 'firetrack import'."))
		return nil
	}

	fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("Categorising %d transactions", len(txns))))
	if a.classifier != nil {
		fmt.Fprintln(out, cli.FormatInfo("AI quota: "+a.classifier.CheckAIAvailability(ctx).String()))
	}

	progress := cli.NewProgress(out, len(txns), "Categorising transactions...")
	results := make([]model.CategorisationResult, 0, len(txns))
	for start := 0; start < len(txns) && ctx.Err() == nil; start += categoriseChunk {
		end := min(start+categoriseChunk, len(txns))
		results = append(results, a.engine.CategoriseBatch(ctx, txns[start:end])...)
		interrupts.Track(len(results))
		progress.Add(end - start)
	}
	if ctx.Err() == nil {
		progress.Finish()
	}
	txns = txns[:len(results)]

	if verbose {
		for i, r := range results {
			fmt.Fprintln(out, cli.FormatResult(txns[i], r))
		}
	}

	if apply {
		applied, err := applyResults(cmd, a, txns, results, minConfidence)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Applied %d categories", applied)))
	}

	fmt.Fprintln(out, cli.RenderStats(a.engine.CalculateStats(results)))
	printSuggestionHint(cmd, a)
	return nil
}

func applyResults(cmd *cobra.Command, a *app, txns []model.Transaction, results []model.CategorisationResult, minConfidence float64) (int, error) {
	// Results gathered before an interrupt are still stored.
	ctx := context.WithoutCancel(cmd.Context())
	applied := 0
	for i, r := range results {
		if !r.IsCategorised() || r.Confidence < minConfidence {
			continue
		}
		if err := a.store.SetTransactionCategory(ctx, txns[i].ID, *r.CategoryID); err != nil {
			return applied, fmt.Errorf("failed to apply category to %s: %w", txns[i].ID, err)
		}
		applied++
	}
	slog.Info("Applied categories", "applied", applied, "results", len(results), "min_confidence", minConfidence)
	return applied, nil
}

func printSuggestionHint(cmd *cobra.Command, a *app) {
	if ok, n := a.learning.CheckForSuggestions(cmd.Context()); ok {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(fmt.Sprintf("%d rule suggestions from your corrections. See 'firetrack suggestions list'.", n)))
	}
}
