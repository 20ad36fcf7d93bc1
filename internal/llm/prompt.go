package llm

import (
	"fmt"
	"strings"

	"github.com/Veraticus/firetrack/internal/model"
)

// formatTaxonomy renders categories grouped by group name, one per line with its id.
// Income categories carry an [INCOME] marker.
func formatTaxonomy(categories []model.Category) string {
	var (
		groups []string
		byName = make(map[string][]model.Category)
	)
	for _, c := range categories {
		group := c.GroupName
		if group == "" {
			group = "Other"
		}
		if _, seen := byName[group]; !seen {
			groups = append(groups, group)
		}
		byName[group] = append(byName[group], c)
	}

	var sb strings.Builder
	for _, group := range groups {
		fmt.Fprintf(&sb, "%s:\n", group)
		for _, c := range byName[group] {
			marker := ""
			if c.IsIncome {
				marker = " [INCOME]"
			}
			fmt.Fprintf(&sb, "  - %s%s (id: %s)\n", c.Name, marker, c.ID)
		}
	}
	return sb.String()
}

func formatTransaction(txn model.Transaction) string {
	direction := "money out"
	if txn.IsCredit() {
		direction = "money in"
	}
	date := "unknown"
	if !txn.Date.IsZero() {
		date = txn.Date.Format("2006-01-02")
	}
	return fmt.Sprintf("Description: %s | Amount: %s (%s) | Date: %s",
		txn.Description, txn.Amount.StringFixed(2), direction, date)
}

// buildSinglePrompt asks for one categorisation.
func buildSinglePrompt(txn model.Transaction, categories []model.Category) string {
	var sb strings.Builder
	sb.WriteString("Categorise this UK bank transaction into exactly one of the categories below.\n\n")
	sb.WriteString("CATEGORIES:\n")
	sb.WriteString(formatTaxonomy(categories))
	sb.WriteString("\nTRANSACTION:\n")
	sb.WriteString(formatTransaction(txn))
	sb.WriteString("\n\nOnly use [INCOME] categories for money coming in.\n")
	sb.WriteString(`Respond with JSON in exactly this shape:
{"categoryId": "<id>", "categoryName": "<name>", "confidence": <0.0-1.0>, "reasoning": "<one sentence>",
 "alternatives": [{"categoryId": "<id>", "categoryName": "<name>", "confidence": <0.0-1.0>}]}
Include at most 3 alternatives.`)
	return sb.String()
}

// buildBatchPrompt asks for one categorisation per transaction, keyed by index.
func buildBatchPrompt(txns []model.Transaction, categories []model.Category) string {
	var sb strings.Builder
	sb.WriteString("Categorise each of these UK bank transactions into exactly one of the categories below.\n\n")
	sb.WriteString("CATEGORIES:\n")
	sb.WriteString(formatTaxonomy(categories))
	sb.WriteString("\nTRANSACTIONS:\n")
	for i, txn := range txns {
		fmt.Fprintf(&sb, "[%d] %s\n", i, formatTransaction(txn))
	}
	sb.WriteString("\nOnly use [INCOME] categories for money coming in.\n")
	sb.WriteString(`Respond with JSON in exactly this shape, one result per transaction:
{"results": [{"index": <n>, "categoryId": "<id>", "categoryName": "<name>", "confidence": <0.0-1.0>, "reasoning": "<one sentence>"}]}`)
	return sb.String()
}
