// Package replay renders stored run traces for inspection.
package replay

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	thoughtStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))

	// Search is blue, Calculator magenta.
	searchStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))

	calcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("13"))

	safetyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("14"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	seqStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Width(4).
			Align(lipgloss.Right)

	blockHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("8")).
				Italic(true)

	divider = lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Render(strings.Repeat("━", 60))
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "success":
		return successStyle
	case "failed":
		return errorStyle
	case "blocked":
		return safetyStyle
	default:
		return warnStyle
	}
}

func toolStyle(tool string) lipgloss.Style {
	switch tool {
	case "Search":
		return searchStyle
	case "Calculator":
		return calcStyle
	case "SafetyGuard":
		return safetyStyle
	default:
		return errorStyle
	}
}
