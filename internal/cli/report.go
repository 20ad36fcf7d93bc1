package cli

import (
	"fmt"
	"strings"

	"github.com/Veraticus/firetrack/internal/model"
)

var sourceOrder = []model.Source{
	model.SourceRuleExact,
	model.SourceRulePattern,
	model.SourceSimilar,
	model.SourceAI,
	model.SourceNone,
}

// SourceLabel returns a human-readable label for a categorisation source.
func SourceLabel(s model.Source) string {
	switch s {
	case model.SourceRuleExact:
		return "exact rule"
	case model.SourceRulePattern:
		return "pattern rule"
	case model.SourceSimilar:
		return "similar history"
	case model.SourceAI:
		return RobotIcon + " AI"
	case model.SourceNone:
		return "uncategorised"
	default:
		return string(s)
	}
}

// FormatConfidence renders a confidence as a whole percentage, coloured by band.
func FormatConfidence(c float64) string {
	text := fmt.Sprintf("%3.0f%%", c*100)
	switch {
	case c >= 0.8:
		return SuccessStyle.Render(text)
	case c >= 0.5:
		return WarningStyle.Render(text)
	default:
		return SubtleStyle.Render(text)
	}
}

// FormatResult renders one result as a single line: description, category, source, confidence.
func FormatResult(txn model.Transaction, r model.CategorisationResult) string {
	category := SubtleStyle.Render("-")
	if r.CategoryName != nil {
		category = BoldStyle.Render(*r.CategoryName)
	}
	line := fmt.Sprintf("%-40s %s  %s  (%s)", truncate(txn.Description, 40), category,
		FormatConfidence(r.Confidence), SourceLabel(r.Source))
	if !r.IsCategorised() && r.MatchDetails != "" {
		line += " " + SubtleStyle.Render(r.MatchDetails)
	}
	return line
}

// RenderStats renders categorisation statistics in a box.
func RenderStats(stats model.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  • Transactions: %d\n", stats.Total)
	fmt.Fprintf(&b, "  • Categorised: %d\n", stats.Categorised)
	fmt.Fprintf(&b, "  • Uncategorised: %d\n", stats.Uncategorised)
	fmt.Fprintf(&b, "  • High confidence: %d\n", stats.HighConfidence)
	fmt.Fprintf(&b, "  • Low confidence: %d\n", stats.LowConfidence)
	fmt.Fprintf(&b, "  • AI used: %d\n", stats.AIUsed)
	b.WriteString("\n")
	for _, s := range sourceOrder {
		if n := stats.BySource[s]; n > 0 {
			fmt.Fprintf(&b, "  %-18s %d\n", SourceLabel(s)+":", n)
		}
	}
	return RenderBox(ChartIcon+" Categorisation Summary", strings.TrimRight(b.String(), "\n"))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
