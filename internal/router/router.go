// Package router classifies inbound controller messages and applies them to
// the status, telemetry, and command stores. It is the only writer on the
// message path; rendering collaborators observe changes through the Events
// callbacks and never get reached into directly.
package router

import (
	"sort"
	"sync"
	"time"

	"tilewatch/internal/logger"
	"tilewatch/internal/protocol"
	"tilewatch/internal/state"
)

// Events are the side-effect callbacks emitted per applied update. Any field
// may be nil. Callbacks run synchronously on the message path and must not
// block.
type Events struct {
	StatusChanged     func(entityID string, status state.Status)
	TelemetryAppended func(entityID, metric string, sample protocol.Sample)
	LifecycleChanged  func(cmdID string, st state.CommandState)
	Info              func(text string)
}

// Router routes decoded messages to the stores. Unknown discriminators are
// ignored silently so newer controllers can add message types without
// breaking older clients.
type Router struct {
	statuses  *state.StatusModel
	telemetry *state.Buffer
	commands  *state.Tracker
	events    Events
	log       logger.Logger

	// resync asks the connection layer for a fresh snapshot after a short
	// delay; a later request supersedes a pending one.
	resync func()

	mu      sync.Mutex
	lastSeq int64 // newest request sequence seen in an applied snapshot
}

// New creates a router over the given stores.
func New(statuses *state.StatusModel, telemetry *state.Buffer, commands *state.Tracker, events Events, log logger.Logger) *Router {
	if log == nil {
		log = logger.Noop()
	}
	return &Router{
		statuses:  statuses,
		telemetry: telemetry,
		commands:  commands,
		events:    events,
		log:       log,
	}
}

// SetResync installs the deferred-snapshot trigger, normally wired to the
// connection manager's superseding resync scheduler.
func (r *Router) SetResync(fn func()) {
	r.resync = fn
}

// Route applies one inbound message. It never fails: malformed payloads are
// logged and skipped, unknown types ignored.
func (r *Router) Route(m protocol.Message) {
	switch m.Type {
	case protocol.TypeStatusSnapshot, protocol.TypeBoardSnapshot:
		r.applySnapshot(m)
	case protocol.TypeNodeUpdate:
		r.applyNodeUpdate(m)
	case protocol.TypeCmdAck:
		r.applyCmdAck(m)
	case protocol.TypeCmdResult:
		r.applyCmdResult(m)
	case protocol.TypeFaultReport, protocol.TypeFault:
		r.applyFaultReport(m)
	case protocol.TypeLog, protocol.TypeInfo:
		r.applyLog(m)
	default:
		r.log.Debug("ignoring message type %q", m.Type)
	}
}

// Sweep drives time-based command transitions and emits lifecycle events for
// commands that timed out waiting for an acknowledgement.
func (r *Router) Sweep(now time.Time) {
	for _, id := range r.commands.Sweep(now) {
		r.emitLifecycle(id, state.CommandTimedOut)
	}
}

func (r *Router) applySnapshot(m protocol.Message) {
	snap := m.Snapshot()

	if snap.HasSeq && r.staleSeq(snap.Seq) {
		r.log.Debug("dropping stale snapshot seq=%d", snap.Seq)
		return
	}

	// Apply in a fixed order so observers see deterministic event streams.
	ids := make([]string, 0, len(snap.Nodes))
	for id := range snap.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		r.applyNodeState(id, snap.Nodes[id])
	}
}

func (r *Router) applyNodeUpdate(m protocol.Message) {
	id, node, err := m.NodeUpdate()
	if err != nil {
		r.log.Warn("skipping node_update: %v", err)
		return
	}
	r.applyNodeState(id, node)
}

// applyNodeState performs the shared per-entity update: normalize and set the
// status, append one telemetry sample per metric, emit events.
func (r *Router) applyNodeState(id string, node protocol.NodeState) {
	if node.HasStatus {
		st, ok := state.ParseStatus(node.Status)
		if !ok {
			r.log.Debug("normalizing unknown status %q for %s", node.Status, id)
		}
		if err := r.statuses.SetStatus(id, st); err != nil {
			r.log.Warn("status update for %s rejected: %v", id, err)
		} else if r.events.StatusChanged != nil {
			r.events.StatusChanged(id, st)
		}
	}

	r.telemetry.Append(id, node.Metrics)
	if r.events.TelemetryAppended != nil {
		r.events.TelemetryAppended(id, state.MetricHeartbeat, node.Metrics.Heartbeat)
		r.events.TelemetryAppended(id, state.MetricTemperature, node.Metrics.Temperature)
	}
}

func (r *Router) applyCmdAck(m protocol.Message) {
	ack, err := m.CmdAck()
	if err != nil {
		r.log.Warn("skipping cmd_ack: %v", err)
		return
	}

	if st, changed := r.commands.Acknowledge(ack.CmdID, ack.EstimatedMS, ack.HasEstimate); changed {
		r.emitLifecycle(ack.CmdID, st)
	}
}

func (r *Router) applyCmdResult(m protocol.Message) {
	res, err := m.CmdResult()
	if err != nil {
		r.log.Warn("skipping cmd_result: %v", err)
		return
	}

	result := res.Status
	if result == "" {
		result = "unknown"
	}

	if st, changed := r.commands.Complete(res.CmdID, result); changed {
		r.emitLifecycle(res.CmdID, st)
	}

	// The command may have changed downstream state the client has not seen
	// yet; ask for a fresh snapshot shortly.
	if r.resync != nil {
		r.resync()
	}
}

func (r *Router) applyFaultReport(m protocol.Message) {
	report, err := m.FaultReport()
	if err != nil {
		r.log.Warn("skipping fault report: %v", err)
		return
	}

	// A fault report overrides whatever the snapshot path last said.
	if err := r.statuses.SetStatus(report.NodeID, state.StatusFailed); err != nil {
		r.log.Warn("fault report for %s rejected: %v", report.NodeID, err)
		return
	}
	if r.events.StatusChanged != nil {
		r.events.StatusChanged(report.NodeID, state.StatusFailed)
	}
	if report.Detail != "" && r.events.Info != nil {
		r.events.Info("fault on " + report.NodeID + ": " + report.Detail)
	}
}

func (r *Router) applyLog(m protocol.Message) {
	text := m.LogText()
	if text == "" {
		return
	}
	if r.events.Info != nil {
		r.events.Info(text)
	}
}

// staleSeq records the snapshot's sequence and reports whether it is older
// than one already applied. Reconnects can replay in-flight snapshots from a
// previous connection; those must not clobber newer state.
func (r *Router) staleSeq(seq int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seq < r.lastSeq {
		return true
	}
	r.lastSeq = seq
	return false
}

func (r *Router) emitLifecycle(cmdID string, st state.CommandState) {
	if r.events.LifecycleChanged != nil {
		r.events.LifecycleChanged(cmdID, st)
	}
}
