package ui

import "github.com/charmbracelet/lipgloss"

type Style struct {
	Title         lipgloss.Style
	UserLabel     lipgloss.Style
	AssistantText lipgloss.Style
	ErrorText     lipgloss.Style
	StatusBar     lipgloss.Style
	Help          lipgloss.Style
	InputBorder   lipgloss.Style
}

func DefaultStyles() *Style {
	return &Style{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1),
		UserLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")),
		AssistantText: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "236", Dark: "252"}),
		ErrorText: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		StatusBar: lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		InputBorder: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")),
	}
}
