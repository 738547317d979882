package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// --- Palette ---
var (
	ColorPrimary   = lipgloss.Color("#7D56F4") // indigo
	ColorSecondary = lipgloss.Color("#04B575") // green
	ColorError     = lipgloss.Color("#FF5F87")
	ColorWarning   = lipgloss.Color("#FFAF00")
	ColorText      = lipgloss.Color("#FAFAFA")
	ColorSubtle    = lipgloss.Color("#767676")
	ColorBorder    = lipgloss.Color("#3C3C3C")
	ColorHighlight = lipgloss.Color("#3E3E3E")
	ColorBanner    = lipgloss.Color("#C0392B") // torch red
)

var (
	Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(1, 2)

	Title = lipgloss.NewStyle().
		Foreground(ColorPrimary).
		Bold(true).
		Padding(0, 1).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(ColorSubtle)

	Text   = lipgloss.NewStyle().Foreground(ColorText)
	Subtle = lipgloss.NewStyle().Foreground(ColorSubtle)

	Value  = lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true)
	Active = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)

	Error   = lipgloss.NewStyle().Foreground(ColorError)
	Warn    = lipgloss.NewStyle().Foreground(ColorWarning)
	Success = lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true)

	KeyKey  = lipgloss.NewStyle().Foreground(ColorText).Bold(true)
	KeyDesc = lipgloss.NewStyle().Foreground(ColorSubtle)

	Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1).
		Margin(0, 1)

	TabBase = lipgloss.NewStyle().
		Foreground(ColorSubtle).
		Padding(0, 2)

	TabActive = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(ColorPrimary).
			Padding(0, 2)

	FooterBase = lipgloss.NewStyle().
			Height(1).
			Padding(0, 1)
)

func RenderKey(key, desc string) string {
	return lipgloss.JoinHorizontal(lipgloss.Center,
		KeyKey.Render("<"+key+">"),
		" ",
		KeyDesc.Render(desc),
	)
}

// Verdict renders a pass/fail mark.
func Verdict(passed bool) string {
	if passed {
		return Success.Render("✓")
	}
	return Error.Render("✗")
}

// ErrorRate picks the style for a failure percentage.
func ErrorRate(pct float64) lipgloss.Style {
	switch {
	case pct > 5:
		return Error
	case pct > 1:
		return Warn
	}
	return Active
}
