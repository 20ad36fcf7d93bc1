package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/firetrack/internal/cli"
	"github.com/Veraticus/firetrack/internal/model"
	"github.com/spf13/cobra"
)

func suggestionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggestions",
		Short: "Review rules learned from your corrections",
	}

	cmd.AddCommand(suggestionsListCmd())
	cmd.AddCommand(suggestionsAcceptCmd())

	return cmd
}

func suggestionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rule suggestions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			suggestions, err := a.learning.AnalyseCorrections(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(suggestions) == 0 {
				fmt.Fprintln(out, cli.InfoStyle.Render("No suggestions yet. Keep recording corrections with 'firetrack corrections record'."))
				return nil
			}

			fmt.Fprintln(out, cli.FormatTitle("Rule Suggestions"))
			for i, s := range suggestions {
				fmt.Fprintln(out, renderSuggestion(i+1, s))
			}
			fmt.Fprintln(out, cli.FormatInfo("Accept with 'firetrack suggestions accept <number>...' or --all."))
			return nil
		},
	}
}

func renderSuggestion(n int, s model.PatternSuggestion) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %q → %s  %s  (%d corrections)\n",
		cli.BoldStyle.Render(fmt.Sprintf("[%d]", n)),
		s.MatchType, s.Pattern, s.CategoryName, cli.FormatConfidence(s.Confidence), s.CorrectionCount)
	for _, d := range s.SampleDescriptions {
		fmt.Fprintf(&b, "      %s\n", cli.SubtleStyle.Render(d))
	}
	return strings.TrimRight(b.String(), "\n")
}

func suggestionsAcceptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accept [number...]",
		Short: "Turn suggestions into rules",
		Long: `Create rules from the numbered suggestions shown by 'firetrack suggestions list'.
The corrections behind each accepted suggestion are marked as learned.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			if !all && len(args) == 0 {
				return fmt.Errorf("give suggestion numbers or --all")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			suggestions, err := a.learning.AnalyseCorrections(ctx)
			if err != nil {
				return err
			}

			chosen, err := selectSuggestions(suggestions, args, all)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, s := range chosen {
				rule, err := a.learning.CreateRuleFromSuggestion(ctx, s)
				if err != nil {
					fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%q: %v", s.Pattern, err)))
					continue
				}
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Created %s rule %q → %s", rule.MatchType, rule.Pattern, rule.CategoryName)))
			}
			return nil
		},
	}

	cmd.Flags().Bool("all", false, "Accept every suggestion")

	return cmd
}

func selectSuggestions(suggestions []model.PatternSuggestion, args []string, all bool) ([]model.PatternSuggestion, error) {
	if all {
		return suggestions, nil
	}
	chosen := make([]model.PatternSuggestion, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(suggestions) {
			return nil, fmt.Errorf("no suggestion numbered %q (have %d)", arg, len(suggestions))
		}
		chosen = append(chosen, suggestions[n-1])
	}
	return chosen, nil
}
