// Package protocol defines the wire messages exchanged with a tile-board
// controller and the tolerant decoding rules for them. Inbound payloads are
// loosely typed JSON objects with a mandatory type discriminator; individual
// fields may be missing, misnamed (aliases), or malformed without aborting
// message processing.
package protocol

import (
	"encoding/json"

	"tilewatch/internal/errors"
)

// Inbound message type discriminators.
const (
	TypeStatusSnapshot = "status_snapshot"
	TypeBoardSnapshot  = "board_snapshot"
	TypeNodeUpdate     = "node_update"
	TypeCmdAck         = "cmd_ack"
	TypeCmdResult      = "cmd_result"
	TypeFaultReport    = "fault_report"
	TypeFault          = "fault"
	TypeLog            = "log"
	TypeInfo           = "info"
)

// Outbound message type discriminators.
const (
	TypeStatusRequest   = "status_request"
	TypeSelectComponent = "select_component"
	TypeFaultEvent      = "fault_event"
	TypeRunScenario     = "run_scenario"
	TypeReconfigure     = "cmd_reconfigure"
)

// Message is a decoded inbound frame: the type discriminator plus the raw
// payload fields. Typed accessors below extract message-specific views.
type Message struct {
	Type string
	Raw  map[string]interface{}
}

// Decode parses a raw frame into a Message. It fails only when the payload is
// not a JSON object or carries no type discriminator; field-level problems are
// left for the typed accessors to tolerate.
func Decode(data []byte) (Message, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Message{}, errors.WrapWithCode(err, errors.ErrParse,
			"Malformed message payload",
			"The frame was discarded; check the controller version")
	}

	t := stringField(raw, typeAliases...)
	if t == "" {
		return Message{}, errors.New(errors.ErrParse,
			"Message has no type discriminator",
			"The frame was discarded; check the controller version")
	}

	return Message{Type: t, Raw: raw}, nil
}

// Sample is a nullable numeric telemetry value. A sample with Valid=false
// represents a gap in the series.
type Sample struct {
	Value float64
	Valid bool
}

// Number wraps a float64 in a valid Sample.
func Number(v float64) Sample {
	return Sample{Value: v, Valid: true}
}

// Gap returns an invalid (absent) Sample.
func Gap() Sample {
	return Sample{}
}

// Metrics holds the canonical per-entity telemetry values after alias
// resolution. Either value may be a gap.
type Metrics struct {
	Heartbeat   Sample
	Temperature Sample
}

// NodeState is one entity's portion of a snapshot or update.
type NodeState struct {
	Status    string // raw remote status string, empty if absent
	HasStatus bool
	Metrics   Metrics
}

// Snapshot is a full statement of all known entities.
type Snapshot struct {
	Seq    int64 // echoed request sequence, 0 if the peer did not stamp one
	HasSeq bool
	Nodes  map[string]NodeState
}

// CmdAck acknowledges a previously issued command.
type CmdAck struct {
	CmdID       string
	EstimatedMS int64
	HasEstimate bool
}

// CmdResult reports the terminal status of a command.
type CmdResult struct {
	CmdID  string
	Status string // empty if absent; callers default it
}

// FaultReport names an entity that has failed, independent of snapshots.
type FaultReport struct {
	NodeID string
	Detail string
}

// Snapshot extracts the snapshot view of a status_snapshot / board_snapshot
// message. Entities with malformed bodies are skipped rather than failing the
// whole snapshot.
func (m Message) Snapshot() Snapshot {
	snap := Snapshot{Nodes: make(map[string]NodeState)}

	if seq, ok := numberField(m.Raw, "seq"); ok {
		snap.Seq = int64(seq)
		snap.HasSeq = true
	}

	nodes, ok := m.Raw["nodes"].(map[string]interface{})
	if !ok {
		return snap
	}

	for id, v := range nodes {
		body, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		snap.Nodes[id] = nodeState(body)
	}

	return snap
}

// NodeUpdate extracts the single-entity view of a node_update message.
// Returns an error when no entity identifier can be resolved.
func (m Message) NodeUpdate() (string, NodeState, error) {
	id := stringField(m.Raw, nodeIDAliases...)
	if id == "" {
		return "", NodeState{}, errors.New(errors.ErrParse,
			"node_update without a node identifier",
			"")
	}
	return id, nodeState(m.Raw), nil
}

// CmdAck extracts the acknowledgement view of a cmd_ack message.
func (m Message) CmdAck() (CmdAck, error) {
	id := stringField(m.Raw, "cmd_id")
	if id == "" {
		return CmdAck{}, errors.New(errors.ErrParse,
			"cmd_ack without a cmd_id",
			"")
	}
	ack := CmdAck{CmdID: id}
	if est, ok := numberField(m.Raw, "estimated_ms"); ok {
		ack.EstimatedMS = int64(est)
		ack.HasEstimate = true
	}
	return ack, nil
}

// CmdResult extracts the result view of a cmd_result message.
func (m Message) CmdResult() (CmdResult, error) {
	id := stringField(m.Raw, "cmd_id")
	if id == "" {
		return CmdResult{}, errors.New(errors.ErrParse,
			"cmd_result without a cmd_id",
			"")
	}
	return CmdResult{
		CmdID:  id,
		Status: stringField(m.Raw, "status"),
	}, nil
}

// FaultReport extracts the fault view of a fault_report / fault message.
func (m Message) FaultReport() (FaultReport, error) {
	id := stringField(m.Raw, nodeIDAliases...)
	if id == "" {
		return FaultReport{}, errors.New(errors.ErrParse,
			"fault report without a node identifier",
			"")
	}
	return FaultReport{
		NodeID: id,
		Detail: stringField(m.Raw, detailAliases...),
	}, nil
}

// LogText extracts the text of a log / info message. Empty if absent.
func (m Message) LogText() string {
	return stringField(m.Raw, textAliases...)
}

// nodeState builds a NodeState from a loosely typed entity body.
func nodeState(body map[string]interface{}) NodeState {
	var st NodeState
	if s := stringField(body, "status"); s != "" {
		st.Status = s
		st.HasStatus = true
	}
	if metrics, ok := body["metrics"].(map[string]interface{}); ok {
		st.Metrics = ResolveMetrics(metrics)
	}
	return st
}
