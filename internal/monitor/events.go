package monitor

import (
	tea "github.com/charmbracelet/bubbletea"

	"tilewatch/internal/protocol"
	"tilewatch/internal/router"
	"tilewatch/internal/state"
)

// Messages delivered into the Bubble Tea loop by the connection and router
// layers.

// ReadyMsg reflects the connection indicator.
type ReadyMsg struct {
	Ready bool
}

// StatusMsg reports an applied entity status update.
type StatusMsg struct {
	ID     string
	Status state.Status
}

// TelemetryMsg reports one appended telemetry sample.
type TelemetryMsg struct {
	ID     string
	Metric string
	Sample protocol.Sample
}

// LifecycleMsg reports a command lifecycle transition.
type LifecycleMsg struct {
	CmdID string
	State state.CommandState
}

// InfoMsg carries an informational line from the controller.
type InfoMsg struct {
	Text string
}

// NewEventChannel creates the buffered channel the dashboard drains.
func NewEventChannel() chan tea.Msg {
	return make(chan tea.Msg, 256)
}

// ForwardEvents adapts router callbacks onto the event channel. Events are
// dropped rather than blocking the message path when the dashboard falls
// behind; the next snapshot repairs anything missed.
func ForwardEvents(ch chan<- tea.Msg) router.Events {
	return router.Events{
		StatusChanged: func(id string, status state.Status) {
			push(ch, StatusMsg{ID: id, Status: status})
		},
		TelemetryAppended: func(id, metric string, sample protocol.Sample) {
			push(ch, TelemetryMsg{ID: id, Metric: metric, Sample: sample})
		},
		LifecycleChanged: func(cmdID string, st state.CommandState) {
			push(ch, LifecycleMsg{CmdID: cmdID, State: st})
		},
		Info: func(text string) {
			push(ch, InfoMsg{Text: text})
		},
	}
}

// ForwardReady adapts the connection-state callback onto the event channel.
func ForwardReady(ch chan<- tea.Msg) func(bool) {
	return func(ready bool) {
		push(ch, ReadyMsg{Ready: ready})
	}
}

func push(ch chan<- tea.Msg, msg tea.Msg) {
	select {
	case ch <- msg:
	default:
	}
}
