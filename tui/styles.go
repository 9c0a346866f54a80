// Package tui provides the terminal UI for clipscribe using Charm libraries
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"clipscribe/upload"
)

// Color palette
var (
	ColorPrimary   = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"} // Violet
	ColorSecondary = lipgloss.AdaptiveColor{Light: "#0EA5E9", Dark: "#38BDF8"} // Sky blue
	ColorAccent    = lipgloss.AdaptiveColor{Light: "#F59E0B", Dark: "#FBBF24"} // Amber

	ColorSuccess = lipgloss.AdaptiveColor{Light: "#10B981", Dark: "#34D399"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#F59E0B", Dark: "#FBBF24"}
	ColorError   = lipgloss.AdaptiveColor{Light: "#EF4444", Dark: "#F87171"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#6366F1", Dark: "#818CF8"}

	ColorText   = lipgloss.AdaptiveColor{Light: "#1E293B", Dark: "#F1F5F9"}
	ColorSubtle = lipgloss.AdaptiveColor{Light: "#64748B", Dark: "#94A3B8"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#94A3B8", Dark: "#64748B"}
	ColorBorder = lipgloss.AdaptiveColor{Light: "#CBD5E1", Dark: "#334155"}

	ColorBrand = lipgloss.AdaptiveColor{Light: "#DB2777", Dark: "#F472B6"} // Pink
)

// Base styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			MarginBottom(1)

	BodyStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	SuccessStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSuccess)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorError)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	InfoStyle = lipgloss.NewStyle().
			Foreground(ColorInfo)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	BadgeStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Background(ColorPrimary).
			Foreground(lipgloss.Color("#FFFFFF"))

	BadgeSuccessStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Background(ColorSuccess).
				Foreground(lipgloss.Color("#FFFFFF"))

	BadgeErrorStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Background(ColorError).
			Foreground(lipgloss.Color("#FFFFFF"))
)

// LogoASCII is the application banner
var LogoASCII = `
  ___ _    ___ ___  ___  ___ ___ ___ ___ ___
 / __| |  |_ _| _ \/ __|/ __| _ \_ _| _ ) __|
| (__| |__ | ||  _/\__ \ (__|   /| || _ \ _|
 \___|____|___|_|  |___/\___|_|_\___|___/___|
`

// GetHeader returns the styled header
func GetHeader() string {
	return lipgloss.NewStyle().
		Foreground(ColorBrand).
		Bold(true).
		Render(LogoASCII)
}

// StatusBadge renders the pipeline status as a colored badge
func StatusBadge(status upload.Status) string {
	label := status.String()
	switch status.Code {
	case upload.StatusSuccess:
		return BadgeSuccessStyle.Render(label)
	case upload.StatusError:
		return BadgeErrorStyle.Render("Error")
	case upload.StatusWaiting:
		return lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(ColorSubtle).
			Render(label)
	default:
		return BadgeStyle.Render(label)
	}
}

// ProgressBar renders a plain block progress bar for non-interactive output
func ProgressBar(current, total int, width int) string {
	if total == 0 {
		total = 1
	}

	percentage := float64(current) / float64(total)
	filled := int(percentage * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	filledChar := lipgloss.NewStyle().Foreground(ColorPrimary).Render("█")
	emptyChar := lipgloss.NewStyle().Foreground(ColorBorder).Render("░")

	bar := strings.Repeat(filledChar, filled) + strings.Repeat(emptyChar, width-filled)

	percentText := lipgloss.NewStyle().
		Foreground(ColorSubtle).
		Render(fmt.Sprintf(" %3d%%", int(percentage*100)))

	return bar + percentText
}

// renderKeyHelp renders key/description pairs in order
func renderKeyHelp(keys ...string) string {
	if len(keys) == 0 {
		return ""
	}

	helpStyle := lipgloss.NewStyle().Foreground(ColorMuted)
	keyStyle := lipgloss.NewStyle().Foreground(ColorSubtle).Bold(true)

	var parts []string
	for i := 0; i+1 < len(keys); i += 2 {
		parts = append(parts, keyStyle.Render(keys[i])+" "+helpStyle.Render(keys[i+1]))
	}

	return helpStyle.Render(strings.Join(parts, "  |  "))
}

func truncateString(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")

	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
