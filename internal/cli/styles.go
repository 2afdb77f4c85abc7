package cli

import "github.com/charmbracelet/lipgloss"

var (
	styleAssistant = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	styleMeta      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleWarn      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	styleOK        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	styleHeader    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
)
