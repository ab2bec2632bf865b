package sync

import "github.com/charmbracelet/lipgloss"

// Theme represents the color theme for the TUI
type Theme struct {
	Primary lipgloss.AdaptiveColor
	Success lipgloss.AdaptiveColor
	Warning lipgloss.AdaptiveColor
	Error   lipgloss.AdaptiveColor
	Info    lipgloss.AdaptiveColor
	Border  lipgloss.AdaptiveColor
	Text    lipgloss.AdaptiveColor
	TextDim lipgloss.AdaptiveColor
}

// GruvboxTheme creates a Gruvbox-inspired theme
func GruvboxTheme() Theme {
	return Theme{
		Primary: lipgloss.AdaptiveColor{Light: "#b8bb26", Dark: "#b8bb26"},
		Success: lipgloss.AdaptiveColor{Light: "#98971a", Dark: "#b8bb26"},
		Warning: lipgloss.AdaptiveColor{Light: "#d79921", Dark: "#fabd2f"},
		Error:   lipgloss.AdaptiveColor{Light: "#cc241d", Dark: "#fb4934"},
		Info:    lipgloss.AdaptiveColor{Light: "#458588", Dark: "#83a598"},
		Border:  lipgloss.AdaptiveColor{Light: "#d5c4a1", Dark: "#504945"},
		Text:    lipgloss.AdaptiveColor{Light: "#3c3836", Dark: "#fbf1c7"},
		TextDim: lipgloss.AdaptiveColor{Light: "#7c6f64", Dark: "#a89984"},
	}
}

// Styles contains predefined styles for the TUI
type Styles struct {
	Title     lipgloss.Style
	Paragraph lipgloss.Style
	Subtle    lipgloss.Style
	Error     lipgloss.Style
	Section   lipgloss.Style
	States    map[string]lipgloss.Style
}

// DefaultStyles returns default styles for the TUI
func DefaultStyles() Styles {
	theme := GruvboxTheme()
	bold := func(c lipgloss.AdaptiveColor) lipgloss.Style {
		return lipgloss.NewStyle().Bold(true).Foreground(c)
	}

	return Styles{
		Title:     bold(theme.Primary),
		Paragraph: lipgloss.NewStyle().Foreground(theme.Text),
		Subtle:    lipgloss.NewStyle().Foreground(theme.TextDim),
		Error:     bold(theme.Error),
		Section: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 1),
		States: map[string]lipgloss.Style{
			"synced":  bold(theme.Success),
			"syncing": bold(theme.Info),
			"pending": bold(theme.Warning),
			"error":   bold(theme.Error),
		},
	}
}

// State renders a sync state label in its color
func (s Styles) State(state string) string {
	style, ok := s.States[state]
	if !ok {
		style = s.Subtle
	}
	return style.Render(state)
}
