package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"tilewatch/internal/protocol"
)

// Sparkline block characters representing 8 vertical levels (lowest to highest).
const sparklineBlocks = "▁▂▃▄▅▆▇█"

// sparklineBlockRunes provides indexed access to block characters.
var sparklineBlockRunes = []rune(sparklineBlocks)

// RenderSparkline creates a sparkline visualization from a telemetry series.
// The width parameter determines how many of the most recent samples to
// display. Values are mapped to 8 vertical levels based on the min/max range
// of the valid samples; gap samples render as spaces.
func RenderSparkline(samples []protocol.Sample, width int, color lipgloss.Color) string {
	if len(samples) == 0 || width <= 0 {
		return ""
	}

	// Use only the most recent 'width' samples
	if len(samples) > width {
		samples = samples[len(samples)-width:]
	}

	// Find min and max among valid samples
	var minVal, maxVal float64
	found := false
	for _, s := range samples {
		if !s.Valid {
			continue
		}
		if !found {
			minVal, maxVal = s.Value, s.Value
			found = true
			continue
		}
		if s.Value < minVal {
			minVal = s.Value
		}
		if s.Value > maxVal {
			maxVal = s.Value
		}
	}
	if !found {
		// Nothing but gaps
		return strings.Repeat(" ", len(samples))
	}

	var sb strings.Builder
	sb.Grow(len(samples) * 4) // UTF-8 block chars are up to 3 bytes + buffer

	numLevels := len(sparklineBlockRunes)
	valueRange := maxVal - minVal

	for _, s := range samples {
		if !s.Valid {
			sb.WriteRune(' ')
			continue
		}

		var level int
		if valueRange == 0 {
			// All values are the same, use middle level
			level = numLevels / 2
		} else {
			normalized := (s.Value - minVal) / valueRange
			level = int(normalized * float64(numLevels-1))
			if level < 0 {
				level = 0
			} else if level >= numLevels {
				level = numLevels - 1
			}
		}
		sb.WriteRune(sparklineBlockRunes[level])
	}

	style := lipgloss.NewStyle().Foreground(color)
	return style.Render(sb.String())
}

// LastValid returns the most recent valid sample in the series, if any.
func LastValid(samples []protocol.Sample) (float64, bool) {
	for i := len(samples) - 1; i >= 0; i-- {
		if samples[i].Valid {
			return samples[i].Value, true
		}
	}
	return 0, false
}
