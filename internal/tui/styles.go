package tui

import "github.com/charmbracelet/lipgloss"

var (
	// PhaseStyle is used for the current phase label (bold cyan)
	PhaseStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	// SpecStyle is used for the build spec in the header
	SpecStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46"))

	// StatusStyle is used for the status bar (dark background)
	StatusStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	// LogBoxStyle frames the log pane
	LogBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Foreground(lipgloss.Color("245"))

	// HintStyle is used for key hints (dim)
	HintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)
