package dashboard

import "github.com/charmbracelet/lipgloss"

// Semantic colors shared by the dashboard widgets.
var (
	colorPrimary = lipgloss.Color("#2196F3")
	colorSuccess = lipgloss.Color("#8BC34A")
	colorWarning = lipgloss.Color("#FFC107")
	colorError   = lipgloss.Color("#e53935")
	colorMuted   = lipgloss.Color("#7a8699")
)

// Styles holds the lipgloss styles for the live dashboard.
type Styles struct {
	Header lipgloss.Style
	Label  lipgloss.Style
	Value  lipgloss.Style
	Muted  lipgloss.Style
	Footer lipgloss.Style

	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style

	Spinner lipgloss.Style
	Feed    lipgloss.Style
}

// DefaultStyles returns the dashboard's default style set.
func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Background(colorPrimary).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 2).
			Bold(true),

		Label: lipgloss.NewStyle().
			Foreground(colorMuted),

		Value: lipgloss.NewStyle().
			Bold(true),

		Muted: lipgloss.NewStyle().
			Foreground(colorMuted),

		Footer: lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 2),

		Success: lipgloss.NewStyle().
			Foreground(colorSuccess),

		Warning: lipgloss.NewStyle().
			Foreground(colorWarning),

		Error: lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true),

		Info: lipgloss.NewStyle().
			Foreground(colorPrimary),

		Spinner: lipgloss.NewStyle().
			Foreground(colorPrimary),

		Feed: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1),
	}
}
