package viz

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/memdyn/internal/dynamo"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00ffff")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("#444466"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444466")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888899")).Width(14)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ccff")).Bold(true)
	graphStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("49"))
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#666688")).Italic(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444"))

	barHigh = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff88"))
	barMid  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffcc00"))
	barLow  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444"))
)

var statusStyles = map[dynamo.Status]lipgloss.Style{
	dynamo.Running:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff88")),
	dynamo.Converged: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ccff")),
	dynamo.TimedOut:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffaa00")),
	dynamo.Failed:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff4444")),
}

// StatusBadge renders a run state in its color.
func StatusBadge(s dynamo.Status) string {
	return statusStyles[s].Render(strings.ToUpper(s.String()))
}

// Field renders one label/value row.
func Field(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func Fieldf(label, format string, args ...any) string {
	return Field(label, fmt.Sprintf(format, args...))
}

// ProgressBar renders a fraction in [0, 1] as a colored bar.
func ProgressBar(frac float64, width int) string {
	filled := min(max(int(frac*float64(width)), 0), width)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	switch {
	case frac > 0.8:
		return barHigh.Render(bar)
	case frac > 0.4:
		return barMid.Render(bar)
	}
	return barLow.Render(bar)
}

func Title(s string) string { return titleStyle.Render(s) }
func Panel(s string) string { return panelStyle.Render(s) }
