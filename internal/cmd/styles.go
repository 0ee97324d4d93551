package cmd

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#58A6FF"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#008000", Dark: "#3FB950"}
	colorError   = lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#F85149"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#CC6600", Dark: "#D29922"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#8B949E"}
)

var (
	styleCategory = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	styleSuccess  = lipgloss.NewStyle().Foreground(colorSuccess)
	styleError    = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleWarning  = lipgloss.NewStyle().Foreground(colorWarning)
	styleMuted    = lipgloss.NewStyle().Foreground(colorMuted)
	styleQuery    = lipgloss.NewStyle().PaddingLeft(4).Foreground(colorMuted)
)

const (
	branch     = "├─ "
	lastBranch = "└─ "
)
