package sim

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilewatch/internal/logger"
)

// dialTestServer hosts the /ws handler on an ephemeral port and connects one
// client to it. The heartbeat loop is deliberately not started so the only
// traffic is what the test provokes.
func dialTestServer(t *testing.T) (*Server, *websocket.Conn) {
	t.Helper()

	s := NewServer(ServerOptions{Tiles: 4, Spares: 1, Log: logger.Noop()})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", s.handleWS)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	return s, ws
}

func readMessage(t *testing.T, ws *websocket.Conn) map[string]interface{} {
	t.Helper()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeMessage(t *testing.T, ws *websocket.Conn, msg map[string]interface{}) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(msg))
}

func TestServerAnswersStatusRequest(t *testing.T) {
	_, ws := dialTestServer(t)

	writeMessage(t, ws, map[string]interface{}{"type": "status_request", "seq": 3})

	msg := readMessage(t, ws)
	assert.Equal(t, "status_snapshot", msg["type"])
	assert.Equal(t, float64(3), msg["seq"], "the request sequence is echoed")

	nodes, ok := msg["nodes"].(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, nodes, 4)
}

func TestServerAcceptsMsgTypeAlias(t *testing.T) {
	_, ws := dialTestServer(t)

	writeMessage(t, ws, map[string]interface{}{"msg_type": "status_request", "seq": 1})

	msg := readMessage(t, ws)
	assert.Equal(t, "status_snapshot", msg["type"])
}

func TestServerBroadcastsFaultReport(t *testing.T) {
	s, ws := dialTestServer(t)

	writeMessage(t, ws, map[string]interface{}{
		"type":       "fault_event",
		"node_id":    "tile_1",
		"fault_type": "stuck_output",
		"severity":   "major",
	})

	msg := readMessage(t, ws)
	assert.Equal(t, "fault_report", msg["type"])
	assert.Equal(t, "tile_1", msg["node_id"])
	assert.Equal(t, "stuck_output", msg["detail"])

	status, _ := s.Board().Status("tile_1")
	assert.Equal(t, tileDegraded, status)
}

func TestServerReconfigureLifecycle(t *testing.T) {
	s, ws := dialTestServer(t)
	require.NoError(t, s.Board().InjectFault("tile_0", "stuck_output", "critical"))

	writeMessage(t, ws, map[string]interface{}{
		"type":        "cmd_reconfigure",
		"cmd_id":      "cmd_test_1",
		"action":      "partial_reconfig",
		"target_node": "tile_0",
	})

	ack := readMessage(t, ws)
	assert.Equal(t, "cmd_ack", ack["type"])
	assert.Equal(t, "cmd_test_1", ack["cmd_id"])
	est, ok := ack["estimated_ms"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, est, 50.0)

	result := readMessage(t, ws)
	assert.Equal(t, "cmd_result", result["type"])
	assert.Equal(t, "cmd_test_1", result["cmd_id"])
	assert.Equal(t, "success", result["status"])

	status, _ := s.Board().Status("tile_0")
	assert.Equal(t, tileOK, status, "the fault was cleared by the reconfiguration")
}

func TestServerReconfigureFastSwapFailure(t *testing.T) {
	_, ws := dialTestServer(t)

	// tile_1 is not a spare, so the swap must fail.
	writeMessage(t, ws, map[string]interface{}{
		"type":        "cmd_reconfigure",
		"cmd_id":      "cmd_test_2",
		"action":      "fast_swap",
		"target_node": "tile_0",
		"spare_id":    "tile_1",
	})

	ack := readMessage(t, ws)
	require.Equal(t, "cmd_ack", ack["type"])

	result := readMessage(t, ws)
	assert.Equal(t, "cmd_result", result["type"])
	assert.Equal(t, "failed", result["status"])
}

func TestServerIgnoresMalformedAndUnknownFrames(t *testing.T) {
	_, ws := dialTestServer(t)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	writeMessage(t, ws, map[string]interface{}{"type": "mystery"})
	writeMessage(t, ws, map[string]interface{}{"type": "cmd_reconfigure"}) // no cmd_id

	// The connection survives; a normal request still gets answered.
	writeMessage(t, ws, map[string]interface{}{"type": "status_request"})
	msg := readMessage(t, ws)
	assert.Equal(t, "status_snapshot", msg["type"])
}

func TestMsgType(t *testing.T) {
	assert.Equal(t, "a", msgType(map[string]interface{}{"type": "a"}))
	assert.Equal(t, "b", msgType(map[string]interface{}{"msg_type": "b"}))
	assert.Equal(t, "a", msgType(map[string]interface{}{"type": "a", "msg_type": "b"}))
	assert.Equal(t, "", msgType(map[string]interface{}{}))
}
