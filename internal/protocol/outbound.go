package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// StatusRequest builds a full-snapshot request stamped with a sequence number
// so stale snapshots replayed across reconnects can be recognized.
func StatusRequest(seq int64) []byte {
	return encode(map[string]interface{}{
		"type": TypeStatusRequest,
		"seq":  seq,
	})
}

// SelectComponent informs the controller of the operator's local selection.
func SelectComponent(nodeID string) []byte {
	return encode(map[string]interface{}{
		"type":    TypeSelectComponent,
		"node_id": nodeID,
	})
}

// FaultEvent builds a fault-injection message for the named entity.
func FaultEvent(nodeID, faultType, severity string) []byte {
	return encode(map[string]interface{}{
		"type":       TypeFaultEvent,
		"node_id":    nodeID,
		"fault_type": faultType,
		"severity":   severity,
	})
}

// RunScenario asks the controller to apply a named scenario preset.
func RunScenario(scenario string) []byte {
	return encode(map[string]interface{}{
		"type":     TypeRunScenario,
		"scenario": scenario,
	})
}

// Reconfigure builds a reconfiguration command. The returned cmd_id is what
// the controller echoes in cmd_ack and cmd_result.
func Reconfigure(target, action, spare string) (cmdID string, data []byte) {
	cmdID = NewCmdID()
	msg := map[string]interface{}{
		"type":        TypeReconfigure,
		"cmd_id":      cmdID,
		"target_node": target,
		"action":      action,
	}
	if spare != "" {
		msg["spare_id"] = spare
	}
	return cmdID, encode(msg)
}

// NewCmdID generates a command identifier unique enough for one operator
// session.
func NewCmdID() string {
	return fmt.Sprintf("cmd_%d", time.Now().UnixNano()/int64(time.Millisecond))
}

// encode marshals an outbound message. The inputs are maps of JSON-safe
// values built above, so marshalling cannot fail.
func encode(msg map[string]interface{}) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return data
}
