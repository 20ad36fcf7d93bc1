package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Veraticus/firetrack/internal/cli"
	"github.com/Veraticus/firetrack/internal/common"
	"github.com/Veraticus/firetrack/internal/model"
	"github.com/Veraticus/firetrack/internal/rules"
	"github.com/Veraticus/firetrack/internal/service"
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage categorisation rules",
		Long: `Rules map description patterns to categories. They are tried before any
other strategy, highest confidence first.

Match types:
  exact     the whole description equals the pattern (ignoring case)
  contains  the description contains the pattern
  regex     the description matches the regular expression`,
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesShowCmd())
	cmd.AddCommand(rulesCreateCmd())
	cmd.AddCommand(rulesEditCmd())
	cmd.AddCommand(rulesDeleteCmd())
	cmd.AddCommand(rulesTestCmd())
	cmd.AddCommand(rulesStatsCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			var filter service.RuleFilter
			if system, _ := cmd.Flags().GetBool("system"); system {
				filter.IsSystem = boolPtr(true)
			}
			if user, _ := cmd.Flags().GetBool("user"); user {
				filter.IsSystem = boolPtr(false)
			}
			if name, _ := cmd.Flags().GetString("category"); name != "" {
				cat, err := resolveCategory(ctx, a.store, name)
				if err != nil {
					return err
				}
				filter.CategoryID = cat.ID
			}

			list, err := a.rules.GetRules(ctx, filter)
			if err != nil {
				return fmt.Errorf("failed to get rules: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, cli.InfoStyle.Render("No rules found. Use 'firetrack rules create' to add one."))
				return nil
			}

			fmt.Fprintln(out, cli.FormatTitle(cli.RuleIcon+" Rules"))
			return writeRulesTable(out, list)
		},
	}

	cmd.Flags().Bool("system", false, "Only show system rules")
	cmd.Flags().Bool("user", false, "Only show user rules")
	cmd.Flags().String("category", "", "Only show rules for this category")
	cmd.MarkFlagsMutuallyExclusive("system", "user")

	return cmd
}

func writeRulesTable(out io.Writer, list []model.Rule) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		cli.TableHeaderStyle.Render("ID"),
		cli.TableHeaderStyle.Render("Pattern"),
		cli.TableHeaderStyle.Render("Match"),
		cli.TableHeaderStyle.Render("Category"),
		cli.TableHeaderStyle.Render("Confidence"),
		cli.TableHeaderStyle.Render("Kind")); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		strings.Repeat("─", 8),
		strings.Repeat("─", 20),
		strings.Repeat("─", 8),
		strings.Repeat("─", 15),
		strings.Repeat("─", 10),
		strings.Repeat("─", 6)); err != nil {
		return fmt.Errorf("failed to write separator: %w", err)
	}

	for _, r := range list {
		kind := "user"
		if r.IsSystem {
			kind = "system"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
			shortID(r.ID), r.Pattern, r.MatchType, r.CategoryName, r.Confidence, kind); err != nil {
			return fmt.Errorf("failed to write rule row: %w", err)
		}
	}

	return w.Flush()
}

func rulesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <rule-id>",
		Short: "Show a single rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			rule, err := findRule(cmd, a, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRule(rule))
			return nil
		},
	}
}

func renderRule(r *model.Rule) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID:         %s\n", r.ID)
	fmt.Fprintf(&b, "Pattern:    %s\n", r.Pattern)
	fmt.Fprintf(&b, "Match type: %s\n", r.MatchType)
	fmt.Fprintf(&b, "Category:   %s\n", r.CategoryName)
	fmt.Fprintf(&b, "Confidence: %.2f\n", r.Confidence)
	fmt.Fprintf(&b, "System:     %t\n", r.IsSystem)
	fmt.Fprintf(&b, "Created:    %s", r.CreatedAt.Format("2006-01-02 15:04"))
	if r.Notes != "" {
		fmt.Fprintf(&b, "\nNotes:      %s", r.Notes)
	}
	return cli.RenderBox(cli.RuleIcon+" Rule", b.String())
}

func rulesCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user rule",
		Example: `  firetrack rules create --pattern "netflix.com" --match exact --category Entertainment
  firetrack rules create --pattern "^uber\s*\*?\s*trip" --match regex --category Taxis --confidence 0.9`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			pattern, _ := cmd.Flags().GetString("pattern")
			match, _ := cmd.Flags().GetString("match")
			categoryName, _ := cmd.Flags().GetString("category")
			confidence, _ := cmd.Flags().GetFloat64("confidence")
			notes, _ := cmd.Flags().GetString("notes")

			matchType, err := model.ParseMatchType(match)
			if err != nil {
				return err
			}
			cat, err := resolveCategory(ctx, a.store, categoryName)
			if err != nil {
				return err
			}

			rule, err := a.rules.CreateRule(ctx, model.Rule{
				Pattern:    pattern,
				MatchType:  matchType,
				CategoryID: cat.ID,
				Confidence: confidence,
				Notes:      notes,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created rule %s", rule.ID)))
			fmt.Fprintln(cmd.OutOrStdout(), renderRule(rule))
			return nil
		},
	}

	cmd.Flags().String("pattern", "", "Description pattern")
	cmd.Flags().String("match", string(model.MatchContains), "Match type (exact, contains, regex)")
	cmd.Flags().String("category", "", "Category name")
	cmd.Flags().Float64("confidence", 1.0, "Rule confidence between 0 and 1")
	cmd.Flags().String("notes", "", "Free-form notes")
	_ = cmd.MarkFlagRequired("pattern")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func rulesEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <rule-id>",
		Short: "Change fields of a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			existing, err := findRule(cmd, a, args[0])
			if err != nil {
				return err
			}

			var update model.RuleUpdate
			flags := cmd.Flags()
			if flags.Changed("pattern") {
				v, _ := flags.GetString("pattern")
				update.Pattern = &v
			}
			if flags.Changed("match") {
				v, _ := flags.GetString("match")
				mt, err := model.ParseMatchType(v)
				if err != nil {
					return err
				}
				update.MatchType = &mt
			}
			if flags.Changed("category") {
				v, _ := flags.GetString("category")
				cat, err := resolveCategory(ctx, a.store, v)
				if err != nil {
					return err
				}
				update.CategoryID = &cat.ID
			}
			if flags.Changed("confidence") {
				v, _ := flags.GetFloat64("confidence")
				update.Confidence = &v
			}
			if flags.Changed("notes") {
				v, _ := flags.GetString("notes")
				update.Notes = &v
			}

			rule, err := a.rules.UpdateRule(ctx, existing.ID, update)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Rule updated"))
			fmt.Fprintln(cmd.OutOrStdout(), renderRule(rule))
			return nil
		},
	}

	cmd.Flags().String("pattern", "", "New description pattern")
	cmd.Flags().String("match", "", "New match type (exact, contains, regex)")
	cmd.Flags().String("category", "", "New category name")
	cmd.Flags().Float64("confidence", 0, "New confidence between 0 and 1")
	cmd.Flags().String("notes", "", "New notes")

	return cmd
}

func rulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete a user rule",
		Long:  "Delete a user rule. System rules cannot be deleted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			rule, err := findRule(cmd, a, args[0])
			if err != nil {
				return err
			}
			if _, err := a.rules.DeleteRule(ctx, rule.ID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted rule %q", rule.Pattern)))
			return nil
		},
	}
}

func rulesTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Show which recent transactions a rule would match",
		Long: `Replay a candidate rule over recent transactions without saving it.

"Would change" counts matched transactions currently filed under a different category.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			pattern, _ := cmd.Flags().GetString("pattern")
			match, _ := cmd.Flags().GetString("match")
			categoryName, _ := cmd.Flags().GetString("category")
			limit, _ := cmd.Flags().GetInt("limit")

			matchType, err := model.ParseMatchType(match)
			if err != nil {
				return err
			}
			var categoryID string
			if categoryName != "" {
				cat, err := resolveCategory(ctx, a.store, categoryName)
				if err != nil {
					return err
				}
				categoryID = cat.ID
			}

			result, err := a.rules.TestRule(ctx, pattern, matchType, categoryID, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%q matches %d transactions (%d would change)",
				pattern, result.TotalMatched, result.WouldChange)))
			for _, txn := range result.Transactions {
				current := txn.CategoryName
				if current == "" {
					current = cli.SubtleStyle.Render("uncategorised")
				}
				fmt.Fprintf(out, "  %s  %-40s %10s  %s\n",
					txn.Date.Format("2006-01-02"), txn.Description, txn.Amount.StringFixed(2), current)
			}
			return nil
		},
	}

	cmd.Flags().String("pattern", "", "Description pattern")
	cmd.Flags().String("match", string(model.MatchContains), "Match type (exact, contains, regex)")
	cmd.Flags().String("category", "", "Category the rule would assign")
	cmd.Flags().Int("limit", rules.DefaultTestLimit, "Maximum number of matches to list")
	_ = cmd.MarkFlagRequired("pattern")

	return cmd
}

func rulesStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise the rule set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.rules.GetRuleStats(ctx)
			if err != nil {
				return err
			}

			var b strings.Builder
			fmt.Fprintf(&b, "  • Total: %d\n", stats.Total)
			fmt.Fprintf(&b, "  • System: %d\n", stats.System)
			fmt.Fprintf(&b, "  • User: %d\n", stats.User)
			fmt.Fprintf(&b, "  • Created in the last 30 days: %d\n", stats.RecentlyCreated)
			for _, mt := range []model.MatchType{model.MatchExact, model.MatchContains, model.MatchRegex} {
				fmt.Fprintf(&b, "\n  %-9s %d", string(mt)+":", stats.ByMatchType[mt])
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox(cli.ChartIcon+" Rule Statistics", b.String()))
			return nil
		},
	}
}

// findRule looks a rule up by full id or by a unique id prefix as printed by 'rules list'.
func findRule(cmd *cobra.Command, a *app, id string) (*model.Rule, error) {
	ctx := cmd.Context()
	if rule, err := a.rules.GetRule(ctx, id); err == nil {
		return rule, nil
	}

	all, err := a.rules.GetRules(ctx, service.RuleFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to get rules: %w", err)
	}
	var found *model.Rule
	for i := range all {
		if strings.HasPrefix(all[i].ID, id) {
			if found != nil {
				return nil, fmt.Errorf("rule id %q is ambiguous", id)
			}
			found = &all[i]
		}
	}
	if found == nil {
		return nil, fmt.Errorf("rule %q: %w", id, common.ErrNotFound)
	}
	return found, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func boolPtr(b bool) *bool {
	return &b
}
