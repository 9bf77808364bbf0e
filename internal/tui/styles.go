package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines the colour palette for the demo editor.
type Theme struct {
	// Primary is the main accent colour.
	Primary lipgloss.Color

	// Secondary is the secondary accent colour.
	Secondary lipgloss.Color

	// Foreground is the default text colour.
	Foreground lipgloss.Color

	// Muted is for less important text.
	Muted lipgloss.Color

	// Error indicates problems.
	Error lipgloss.Color

	// Border is the border colour.
	Border lipgloss.Color
}

// DefaultTheme returns the default colour theme.
func DefaultTheme() *Theme {
	return &Theme{
		Primary:    lipgloss.Color("#7C3AED"), // Purple
		Secondary:  lipgloss.Color("#06B6D4"), // Cyan
		Foreground: lipgloss.Color("#CDD6F4"), // Light gray
		Muted:      lipgloss.Color("#6C7086"), // Medium gray
		Error:      lipgloss.Color("#F38BA8"), // Red
		Border:     lipgloss.Color("#45475A"), // Border gray
	}
}

// Styles contains pre-configured lipgloss styles for the demo editor.
type Styles struct {
	theme *Theme

	// Title style for the header line.
	Title lipgloss.Style

	// Caret style for the insertion point marker.
	Caret lipgloss.Style

	// Reference style for resolved page links.
	Reference lipgloss.Style

	// Placeholder style for an open completion episode.
	Placeholder lipgloss.Style

	// Dropdown style for the floating result box.
	Dropdown lipgloss.Style

	// Selected style for the highlighted result.
	Selected lipgloss.Style

	// Item style for unselected results.
	Item lipgloss.Style

	// Muted style for hints and empty states.
	Muted lipgloss.Style

	// Error style for failure notices.
	Error lipgloss.Style

	// StatusBar style for the bottom line.
	StatusBar lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(theme *Theme) *Styles {
	if theme == nil {
		theme = DefaultTheme()
	}

	return &Styles{
		theme: theme,

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Primary),

		Caret: lipgloss.NewStyle().
			Foreground(theme.Secondary).
			Bold(true),

		Reference: lipgloss.NewStyle().
			Foreground(theme.Secondary).
			Underline(true),

		Placeholder: lipgloss.NewStyle().
			Foreground(theme.Primary),

		Dropdown: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 1),

		Selected: lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.Foreground).
			Background(theme.Primary),

		Item: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Error: lipgloss.NewStyle().
			Foreground(theme.Error),

		StatusBar: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 1),
	}
}

// DefaultStyles returns styles with the default theme.
func DefaultStyles() *Styles {
	return NewStyles(DefaultTheme())
}
