package conn

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilewatch/internal/logger"
	"tilewatch/internal/protocol"
	"tilewatch/internal/router"
	"tilewatch/internal/state"
)

// fakeTransport records sent frames and can be scripted to fail.
type fakeTransport struct {
	mu        sync.Mutex
	sent      [][]byte
	failAfter int // fail sends once this many have succeeded; -1 never fails
	onClose   func(error)
	closed    bool
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAfter >= 0 && len(f.sent) >= f.failAfter {
		return fmt.Errorf("transport broken")
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.sent))
	for i, data := range f.sent {
		out[i] = string(data)
	}
	return out
}

// frameType extracts the type discriminator from a raw outbound frame.
func frameType(t *testing.T, raw string) string {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	s, _ := m["type"].(string)
	return s
}

// harness bundles a manager with its scripted dialer.
type harness struct {
	mgr          *Manager
	router       *router.Router
	mu           sync.Mutex
	transport    *fakeTransport
	dialErr      error
	dials        int
	failNextDial bool // the next dialed transport fails every send
}

// newHarness pins the timers to an hour so they never fire inside a test run;
// timer-driven behavior uses newHarnessDelays with short delays instead.
func newHarness(t *testing.T, queueLimit int) *harness {
	t.Helper()
	return newHarnessDelays(t, queueLimit, time.Hour, time.Hour)
}

func newHarnessDelays(t *testing.T, queueLimit int, reconnectDelay, resyncDelay time.Duration) *harness {
	t.Helper()

	h := &harness{}
	statuses := state.NewStatusModel()
	telemetry := state.NewBuffer(10)
	commands := state.NewTracker(0, 0, nil)
	h.router = router.New(statuses, telemetry, commands, router.Events{}, logger.Noop())

	h.mgr = New(Options{
		URL:            "ws://test.invalid/ws",
		ReconnectDelay: reconnectDelay,
		ResyncDelay:    resyncDelay,
		QueueLimit:     queueLimit,
		Dial: func(url string, onMessage func([]byte), onClose func(error)) (Transport, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.dials++
			if h.dialErr != nil {
				return nil, h.dialErr
			}
			ft := &fakeTransport{failAfter: -1, onClose: onClose}
			if h.failNextDial {
				ft.failAfter = 0
				h.failNextDial = false
			}
			h.transport = ft
			return ft, nil
		},
		Log: logger.Noop(),
	}, h.router)

	t.Cleanup(h.mgr.Close)
	return h
}

func (h *harness) dialCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dials
}

func (h *harness) setDialErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dialErr = err
}

func (h *harness) current() *fakeTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transport
}

func TestConnectSendsInitialSnapshotRequest(t *testing.T) {
	h := newHarness(t, 0)

	h.mgr.Connect()
	require.True(t, h.mgr.Ready())

	frames := h.current().frames()
	require.Len(t, frames, 1)
	assert.Equal(t, "status_request", frameType(t, frames[0]))

	var req map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(frames[0]), &req))
	assert.Equal(t, float64(1), req["seq"], "snapshot requests are sequence stamped")
}

func TestConnectIsIdempotentWhileReady(t *testing.T) {
	h := newHarness(t, 0)

	h.mgr.Connect()
	h.mgr.Connect()

	h.mu.Lock()
	dials := h.dials
	h.mu.Unlock()
	assert.Equal(t, 1, dials)
}

func TestSendQueuesWhileDisconnected(t *testing.T) {
	h := newHarness(t, 0)

	h.mgr.Send([]byte(`{"type":"select_component","node_id":"tile_0"}`))
	h.mgr.Send([]byte(`{"type":"fault_event","node_id":"tile_1"}`))
	assert.Equal(t, 2, h.mgr.QueueLen())

	h.mgr.Connect()
	require.True(t, h.mgr.Ready())
	assert.Equal(t, 0, h.mgr.QueueLen())

	// Queued frames flush in FIFO order, then the snapshot request follows.
	frames := h.current().frames()
	require.Len(t, frames, 3)
	assert.Equal(t, "select_component", frameType(t, frames[0]))
	assert.Equal(t, "fault_event", frameType(t, frames[1]))
	assert.Equal(t, "status_request", frameType(t, frames[2]))
}

func TestSendFailureQueuesMessage(t *testing.T) {
	h := newHarness(t, 0)
	h.mgr.Connect()

	ft := h.current()
	ft.mu.Lock()
	ft.failAfter = len(ft.sent)
	ft.mu.Unlock()

	h.mgr.Send([]byte(`{"type":"select_component"}`))
	assert.Equal(t, 1, h.mgr.QueueLen(), "a failed send keeps the message queued")
}

func TestQueueBoundDropsOldest(t *testing.T) {
	h := newHarness(t, 2)

	h.mgr.Send([]byte(`{"type":"a"}`))
	h.mgr.Send([]byte(`{"type":"b"}`))
	h.mgr.Send([]byte(`{"type":"c"}`))
	assert.Equal(t, 2, h.mgr.QueueLen())

	h.mgr.Connect()
	frames := h.current().frames()
	require.Len(t, frames, 3)
	assert.Equal(t, "b", frameType(t, frames[0]), "the oldest message was dropped at the bound")
	assert.Equal(t, "c", frameType(t, frames[1]))
	assert.Equal(t, "status_request", frameType(t, frames[2]))
}

func TestUnboundedQueue(t *testing.T) {
	h := newHarness(t, -1)

	for i := 0; i < 1000; i++ {
		h.mgr.Send([]byte(`{"type":"x"}`))
	}
	assert.Equal(t, 1000, h.mgr.QueueLen())
}

func TestDialFailureLeavesNotReady(t *testing.T) {
	h := newHarness(t, 0)
	h.mu.Lock()
	h.dialErr = fmt.Errorf("connection refused")
	h.mu.Unlock()

	h.mgr.Connect()
	assert.False(t, h.mgr.Ready())

	// Messages sent meanwhile stay queued for the next attempt.
	h.mgr.Send([]byte(`{"type":"select_component"}`))
	assert.Equal(t, 1, h.mgr.QueueLen())
}

func TestTransportCloseFlipsReadyAndKeepsQueueing(t *testing.T) {
	readyCh := make(chan bool, 4)

	h := newHarness(t, 0)
	h.mgr.opts.OnReady = func(ready bool) { readyCh <- ready }

	h.mgr.Connect()
	assert.True(t, <-readyCh)

	ft := h.current()
	ft.onClose(fmt.Errorf("peer went away"))
	assert.False(t, <-readyCh)
	assert.False(t, h.mgr.Ready())

	h.mgr.Send([]byte(`{"type":"select_component"}`))
	assert.Equal(t, 1, h.mgr.QueueLen())
}

func TestStaleCloseFromOldTransportIgnored(t *testing.T) {
	h := newHarness(t, 0)

	h.mgr.Connect()
	first := h.current()
	firstClose := first.onClose

	// First transport dies and a fresh connect succeeds.
	firstClose(fmt.Errorf("gone"))
	h.mgr.Connect()
	require.True(t, h.mgr.Ready())

	// A duplicate close event from the dead transport must not disturb the
	// live connection.
	firstClose(fmt.Errorf("gone again"))
	assert.True(t, h.mgr.Ready())
}

func TestInboundFramesReachTheRouter(t *testing.T) {
	statuses := state.NewStatusModel()
	telemetry := state.NewBuffer(10)
	commands := state.NewTracker(0, 0, nil)
	r := router.New(statuses, telemetry, commands, router.Events{}, logger.Noop())

	var onMessage func([]byte)
	mgr := New(Options{
		URL:            "ws://test.invalid/ws",
		ReconnectDelay: time.Hour,
		ResyncDelay:    time.Hour,
		Dial: func(url string, om func([]byte), onClose func(error)) (Transport, error) {
			onMessage = om
			return &fakeTransport{failAfter: -1}, nil
		},
		Log: logger.Noop(),
	}, r)
	t.Cleanup(mgr.Close)

	mgr.Connect()
	require.NotNil(t, onMessage)

	onMessage([]byte(`{"type":"status_snapshot","nodes":{"tile_0":{"status":"ok"}}}`))
	assert.Equal(t, state.StatusOK, statuses.Status("tile_0"))

	// Malformed frames are discarded without killing anything.
	onMessage([]byte(`not json`))
	assert.True(t, mgr.Ready())
}

func TestFlushFailurePreservesQueueOrder(t *testing.T) {
	h := newHarness(t, 0)

	h.mgr.Send([]byte(`{"type":"select_component","node_id":"tile_0"}`))
	h.mgr.Send([]byte(`{"type":"fault_event","node_id":"tile_1"}`))

	// The first transport dies before any frame gets out; the flush fails at
	// the head of the queue.
	h.mu.Lock()
	h.failNextDial = true
	h.mu.Unlock()
	h.mgr.Connect()

	assert.Equal(t, 2, h.mgr.QueueLen(), "the failed head goes back to the queue front")
	assert.Empty(t, h.current().frames())

	// The broken transport reports its death; the next connect delivers
	// everything in the original order, exactly once.
	h.current().onClose(fmt.Errorf("broken pipe"))
	h.mgr.Connect()
	require.True(t, h.mgr.Ready())

	frames := h.current().frames()
	require.Len(t, frames, 3)
	assert.Equal(t, "select_component", frameType(t, frames[0]))
	assert.Equal(t, "fault_event", frameType(t, frames[1]))
	assert.Equal(t, "status_request", frameType(t, frames[2]))
}

func TestReconnectTimerRetriesUntilSuccess(t *testing.T) {
	h := newHarnessDelays(t, 0, 10*time.Millisecond, time.Hour)
	h.setDialErr(fmt.Errorf("connection refused"))

	h.mgr.Connect()
	require.False(t, h.mgr.Ready())

	// The timer keeps retrying on its own while the peer stays down.
	require.Eventually(t, func() bool { return h.dialCount() >= 3 },
		2*time.Second, 5*time.Millisecond)

	h.setDialErr(nil)
	require.Eventually(t, h.mgr.Ready, 2*time.Second, 5*time.Millisecond)
}

func TestResyncSupersedesPendingRequest(t *testing.T) {
	h := newHarnessDelays(t, 0, time.Hour, 30*time.Millisecond)

	h.mgr.Connect()
	require.True(t, h.mgr.Ready())

	// Two command results land inside one resync window.
	for _, payload := range []string{
		`{"type":"cmd_result","cmd_id":"cmd_a","status":"ok"}`,
		`{"type":"cmd_result","cmd_id":"cmd_b","status":"ok"}`,
	} {
		msg, err := protocol.Decode([]byte(payload))
		require.NoError(t, err)
		h.router.Route(msg)
	}

	countSnapshots := func() int {
		n := 0
		for _, raw := range h.current().frames() {
			var m map[string]interface{}
			if json.Unmarshal([]byte(raw), &m) == nil && m["type"] == "status_request" {
				n++
			}
		}
		return n
	}

	// The initial request plus exactly one collapsed refresh.
	require.Eventually(t, func() bool { return countSnapshots() == 2 },
		2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, countSnapshots(), "back-to-back results collapse into one refresh")
}

func TestSupersededReconnectTimerIsInert(t *testing.T) {
	h := newHarnessDelays(t, 0, 10*time.Millisecond, time.Hour)
	h.setDialErr(fmt.Errorf("connection refused"))

	h.mgr.Connect() // arms the retry timer

	// An operator-driven connect supersedes the pending timer and fails too,
	// arming a fresh one.
	h.mgr.Connect()

	h.setDialErr(nil)
	require.Eventually(t, h.mgr.Ready, 2*time.Second, 5*time.Millisecond)

	// Once connected, no stale timer callback fires an extra attempt.
	settled := h.dialCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, settled, h.dialCount())
}

func TestCloseStopsFurtherConnects(t *testing.T) {
	h := newHarness(t, 0)

	h.mgr.Connect()
	ft := h.current()
	h.mgr.Close()

	assert.True(t, ft.closed)
	assert.False(t, h.mgr.Ready())

	h.mgr.Connect()
	assert.False(t, h.mgr.Ready())
}
