// Package monitor implements the live TUI dashboard: a tile grid with status
// colors and telemetry sparklines, an in-flight command list, and an event
// log, all fed by router events. The dashboard only observes the stores; all
// mutation stays on the message path.
package monitor

import (
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"tilewatch/internal/protocol"
	"tilewatch/internal/state"
)

// Connection is the outbound surface the dashboard needs from the connection
// manager.
type Connection interface {
	Ready() bool
	QueueLen() int
	Send(data []byte)
	RequestSnapshot()
}

// maxLogLines bounds the in-memory event log.
const maxLogLines = 200

// sweepInterval drives command timeout/retention sweeps and periodic redraws.
const sweepInterval = time.Second

// tickMsg signals a periodic sweep/redraw.
type tickMsg time.Time

// Model is the Bubble Tea model for the dashboard.
type Model struct {
	statuses  *state.StatusModel
	telemetry *state.Buffer
	commands  *state.Tracker
	conn      Connection
	events    <-chan tea.Msg
	sweep     func(time.Time)

	entities []string
	selected int
	ready    bool
	logLines []string
	width    int
	height   int
	quitting bool

	logView      viewport.Model
	logViewReady bool
}

// NewModel creates a dashboard over the given stores and connection. sweep is
// invoked periodically with the current time to drive command timeouts.
func NewModel(statuses *state.StatusModel, telemetry *state.Buffer, commands *state.Tracker,
	conn Connection, events <-chan tea.Msg, sweep func(time.Time)) Model {
	return Model{
		statuses:  statuses,
		telemetry: telemetry,
		commands:  commands,
		conn:      conn,
		events:    events,
		sweep:     sweep,
		selected:  -1,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), tick())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeLogView()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		if m.sweep != nil {
			m.sweep(time.Time(msg))
		}
		return m, tick()

	case ReadyMsg:
		m.ready = msg.Ready
		if !msg.Ready {
			m.appendLog("connection lost, reconnecting…")
		} else {
			m.appendLog("connected")
		}
		return m, m.waitForEvent()

	case StatusMsg:
		m.refreshEntities()
		return m, m.waitForEvent()

	case TelemetryMsg:
		m.refreshEntities()
		return m, m.waitForEvent()

	case LifecycleMsg:
		m.appendLog("command " + msg.CmdID + " " + msg.State.String())
		return m, m.waitForEvent()

	case InfoMsg:
		m.appendLog(msg.Text)
		return m, m.waitForEvent()
	}

	return m, nil
}

// handleKey processes operator input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "left", "h":
		return m.moveSelection(-1), nil

	case "right", "l", "tab":
		return m.moveSelection(1), nil

	case "r":
		m.conn.RequestSnapshot()
		m.appendLog("snapshot requested")
		return m, nil

	case "f":
		if id, ok := m.selectedEntity(); ok {
			m.conn.Send(protocol.FaultEvent(id, "stuck_output", "major"))
			m.appendLog("fault injected on " + id)
		}
		return m, nil

	case "c":
		if id, ok := m.selectedEntity(); ok {
			cmdID, data := protocol.Reconfigure(id, "partial_reconfig", "")
			m.commands.Issue(cmdID)
			m.conn.Send(data)
			m.appendLog("reconfigure " + cmdID + " issued for " + id)
		}
		return m, nil
	}

	return m, nil
}

// moveSelection shifts the highlighted tile and tells both the local model
// and the controller about the new selection.
func (m Model) moveSelection(delta int) Model {
	m.refreshEntities()
	if len(m.entities) == 0 {
		return m
	}

	m.selected += delta
	if m.selected < 0 {
		m.selected = len(m.entities) - 1
	}
	if m.selected >= len(m.entities) {
		m.selected = 0
	}

	id := m.entities[m.selected]
	m.statuses.Highlight(id)
	m.conn.Send(protocol.SelectComponent(id))
	return m
}

// selectedEntity returns the highlighted entity, if any.
func (m Model) selectedEntity() (string, bool) {
	if m.selected < 0 || m.selected >= len(m.entities) {
		return "", false
	}
	return m.entities[m.selected], true
}

// refreshEntities re-reads the known entity list, preserving the selection by
// id where possible.
func (m *Model) refreshEntities() {
	var selectedID string
	if m.selected >= 0 && m.selected < len(m.entities) {
		selectedID = m.entities[m.selected]
	}

	m.entities = m.statuses.Entities()

	if selectedID != "" {
		m.selected = -1
		for i, id := range m.entities {
			if id == selectedID {
				m.selected = i
				break
			}
		}
	}
}

// appendLog adds a line to the bounded event log and refreshes the viewport.
func (m *Model) appendLog(line string) {
	m.logLines = append(m.logLines, time.Now().Format("15:04:05")+" "+line)
	if len(m.logLines) > maxLogLines {
		m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
	}
	if m.logViewReady {
		m.logView.SetContent(joinLines(m.logLines))
		m.logView.GotoBottom()
	}
}

// resizeLogView sizes the log viewport to the current terminal.
func (m *Model) resizeLogView() {
	w, h := logViewSize(m.width, m.height)
	if !m.logViewReady {
		m.logView = viewport.New(w, h)
		m.logViewReady = true
	} else {
		m.logView.Width = w
		m.logView.Height = h
	}
	m.logView.SetContent(joinLines(m.logLines))
	m.logView.GotoBottom()
}

// waitForEvent blocks on the event channel as a tea command.
func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func tick() tea.Cmd {
	return tea.Tick(sweepInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
