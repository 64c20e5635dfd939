// Package ui provides shared terminal rendering helpers: the color palette,
// status styling, and sparkline rendering for telemetry series.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"tilewatch/internal/state"
)

// Color palette using ANSI color codes for terminal compatibility.

// Semantic colors for status indication
const (
	ColorSuccess lipgloss.Color = "2" // Green
	ColorError   lipgloss.Color = "1" // Red
	ColorWarning lipgloss.Color = "3" // Yellow
	ColorInfo    lipgloss.Color = "6" // Cyan
)

// Text colors for content hierarchy
const (
	ColorPrimary   lipgloss.Color = "7" // White/default
	ColorSecondary lipgloss.Color = "4" // Blue
	ColorMuted     lipgloss.Color = "8" // Gray (bright black)
)

// StatusColor maps an entity status onto the palette.
func StatusColor(s state.Status) lipgloss.Color {
	switch s {
	case state.StatusOK:
		return ColorSuccess
	case state.StatusDegraded:
		return ColorWarning
	case state.StatusFailed:
		return ColorError
	case state.StatusSpare:
		return ColorSecondary
	default:
		return ColorMuted
	}
}

// StatusSymbol returns the one-character marker shown next to an entity.
func StatusSymbol(s state.Status) string {
	switch s {
	case state.StatusOK:
		return "●"
	case state.StatusDegraded:
		return "◐"
	case state.StatusFailed:
		return "✗"
	case state.StatusSpare:
		return "○"
	default:
		return "?"
	}
}
