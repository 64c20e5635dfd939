package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"tilewatch/internal/state"
	"tilewatch/internal/ui"
)

// Card geometry. Cards hold the tile name, status, and two sparkline rows.
const (
	cardWidth      = 26
	sparklineWidth = 20
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ui.ColorMuted).
			Padding(0, 1).
			Width(cardWidth)
	selectedCardStyle = cardStyle.
				BorderForeground(ui.ColorInfo)
	mutedStyle   = lipgloss.NewStyle().Foreground(ui.ColorMuted)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(ui.ColorSecondary)
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	if len(m.entities) == 0 {
		b.WriteString(mutedStyle.Render("waiting for first snapshot…"))
		b.WriteString("\n")
	} else {
		b.WriteString(m.renderGrid())
	}

	if commands := m.renderCommands(); commands != "" {
		b.WriteString("\n")
		b.WriteString(commands)
	}

	if m.logViewReady && len(m.logLines) > 0 {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("Events"))
		b.WriteString("\n")
		b.WriteString(m.logView.View())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("←/→ select · f fault · c reconfigure · r refresh · q quit"))
	return b.String()
}

// renderHeader shows the connection indicator and queue depth.
func (m Model) renderHeader() string {
	indicator := lipgloss.NewStyle().Foreground(ui.ColorError).Render("○ reconnecting")
	if m.ready {
		indicator = lipgloss.NewStyle().Foreground(ui.ColorSuccess).Render("● connected")
	}

	title := headerStyle.Render("tilewatch")
	if queued := m.conn.QueueLen(); queued > 0 {
		return fmt.Sprintf("%s  %s  %s", title, indicator,
			mutedStyle.Render(fmt.Sprintf("%d queued", queued)))
	}
	return fmt.Sprintf("%s  %s", title, indicator)
}

// renderGrid lays the tile cards out in rows sized to the terminal width.
func (m Model) renderGrid() string {
	perRow := columnsFor(m.width)

	var rows []string
	for start := 0; start < len(m.entities); start += perRow {
		end := start + perRow
		if end > len(m.entities) {
			end = len(m.entities)
		}

		cards := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			cards = append(cards, m.renderCard(m.entities[i], i == m.selected))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	}

	return strings.Join(rows, "\n")
}

// renderCard renders one tile: status line, heartbeat and temperature rows.
func (m Model) renderCard(id string, selected bool) string {
	status := m.statuses.Status(id)
	statusStyle := lipgloss.NewStyle().Foreground(ui.StatusColor(status))

	var b strings.Builder
	b.WriteString(statusStyle.Render(ui.StatusSymbol(status)))
	b.WriteString(" ")
	b.WriteString(headerStyle.Render(id))
	b.WriteString(" ")
	b.WriteString(statusStyle.Render(string(status)))
	b.WriteString("\n")

	hb := m.telemetry.Heartbeat(id, sparklineWidth)
	b.WriteString("hb   ")
	b.WriteString(ui.RenderSparkline(hb, sparklineWidth, ui.StatusColor(status)))
	if v, ok := ui.LastValid(hb); ok {
		b.WriteString(mutedStyle.Render(fmt.Sprintf(" %.0f", v)))
	}
	b.WriteString("\n")

	temp := m.telemetry.Temperature(id, sparklineWidth)
	b.WriteString("temp ")
	b.WriteString(ui.RenderSparkline(temp, sparklineWidth, ui.ColorSecondary))
	if v, ok := ui.LastValid(temp); ok {
		b.WriteString(mutedStyle.Render(fmt.Sprintf(" %.1f°", v)))
	}

	if selected {
		return selectedCardStyle.Render(b.String())
	}
	return cardStyle.Render(b.String())
}

// renderCommands lists tracked command lifecycles, newest last.
func (m Model) renderCommands() string {
	records := m.commands.Records()
	if len(records) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(sectionStyle.Render("Commands"))
	b.WriteString("\n")
	for _, rec := range records {
		b.WriteString("  ")
		b.WriteString(rec.ID)
		b.WriteString("  ")
		b.WriteString(commandStateStyle(rec.State).Render(rec.State.String()))
		if rec.Result != "" {
			b.WriteString(mutedStyle.Render(" (" + rec.Result + ")"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func commandStateStyle(s state.CommandState) lipgloss.Style {
	switch s {
	case state.CommandCompleted:
		return lipgloss.NewStyle().Foreground(ui.ColorSuccess)
	case state.CommandTimedOut:
		return lipgloss.NewStyle().Foreground(ui.ColorError)
	case state.CommandAcknowledged:
		return lipgloss.NewStyle().Foreground(ui.ColorInfo)
	default:
		return lipgloss.NewStyle().Foreground(ui.ColorWarning)
	}
}

// columnsFor returns how many cards fit per row at the given width.
func columnsFor(width int) int {
	// Border and padding add 4 columns per card.
	cols := width / (cardWidth + 4)
	if cols < 1 {
		return 1
	}
	return cols
}

// logViewSize computes the log viewport dimensions for a terminal size.
func logViewSize(width, height int) (int, int) {
	w := width - 2
	if w < 20 {
		w = 20
	}
	h := height / 5
	if h < 3 {
		h = 3
	}
	return w, h
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
