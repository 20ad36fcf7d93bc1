// Package cli provides styled terminal output for the firetrack commands.
package cli

import "github.com/charmbracelet/lipgloss"

// Ember palette: warm accents on a neutral base.
var (
	ember = lipgloss.Color("#F4A261")
	teal  = lipgloss.Color("#4ECDC4")
	amber = lipgloss.Color("#FFE66D")
	coral = lipgloss.Color("#FF6B6B")
	mint  = lipgloss.Color("#95E1D3")
	ash   = lipgloss.Color("#666666")
	soot  = lipgloss.Color("#333333")
)

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

// Shared text styles.
var (
	TitleStyle       = fg(ember).Bold(true).MarginBottom(1)
	TableHeaderStyle = fg(ember).Bold(true)
	SuccessStyle     = fg(teal)
	WarningStyle     = fg(amber)
	ErrorStyle       = fg(coral)
	InfoStyle        = fg(mint)
	SubtleStyle      = fg(ash)
	BoldStyle        = lipgloss.NewStyle().Bold(true)
	BoxStyle         = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(soot).Padding(1, 2)
)

const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	FireIcon    = "🔥"
	RobotIcon   = "🤖"
	ChartIcon   = "📊"
	RuleIcon    = "📏"
)

func withIcon(style lipgloss.Style, icon, msg string) string {
	return style.Render(icon + " " + msg)
}

func FormatSuccess(msg string) string { return withIcon(SuccessStyle, SuccessIcon, msg) }
func FormatError(msg string) string   { return withIcon(ErrorStyle, ErrorIcon, msg) }
func FormatWarning(msg string) string { return withIcon(WarningStyle, WarningIcon, msg) }
func FormatInfo(msg string) string    { return withIcon(InfoStyle, InfoIcon, msg) }

// FormatTitle prefixes title with the flame used across firetrack headings.
func FormatTitle(title string) string { return withIcon(TitleStyle, FireIcon, title) }

// RenderBox draws content under a margin-free title inside a rounded border.
func RenderBox(title, content string) string {
	heading := TitleStyle.UnsetMargins().Render(title)
	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, heading, content))
}
