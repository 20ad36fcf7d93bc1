package main

import (
	"fmt"

	"github.com/Veraticus/firetrack/internal/cli"
	"github.com/spf13/cobra"
)

func usageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show today's AI categorisation quota",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, settings)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			availability := a.usage.CheckAIAvailability(ctx)

			body := fmt.Sprintf("  • Provider: %s\n  • Used today: %d\n  • Remaining: %d\n  • Daily limit: %d",
				settings.LLM.Provider, availability.Used, availability.Remaining, availability.DailyLimit)
			fmt.Fprintln(out, cli.RenderBox(cli.RobotIcon+" AI Usage", body))

			switch {
			case a.classifier == nil:
				fmt.Fprintln(out, cli.FormatWarning("AI categorisation is off: set llm.api_key or the provider's API key variable."))
			case !availability.Available:
				fmt.Fprintln(out, cli.FormatWarning("Daily quota used up. AI categorisation resumes tomorrow."))
			}
			return nil
		},
	}
}
