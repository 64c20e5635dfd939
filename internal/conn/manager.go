// Package conn maintains the single logical connection to the controller:
// dialing, reconnecting, queueing outbound messages while disconnected, and
// handing parsed inbound messages to the router.
package conn

import (
	"sync"
	"time"

	"tilewatch/internal/logger"
	"tilewatch/internal/protocol"
	"tilewatch/internal/router"
	"tilewatch/internal/task"
)

// Defaults for the reconnect and resync policies.
const (
	DefaultReconnectDelay = 2 * time.Second
	DefaultResyncDelay    = 300 * time.Millisecond
	DefaultQueueLimit     = 256
)

// Options configures a Manager.
type Options struct {
	// URL of the controller websocket endpoint.
	URL string

	// ReconnectDelay between a close and the next connection attempt.
	// Reconnecting never gives up.
	ReconnectDelay time.Duration

	// ResyncDelay before the deferred snapshot request that follows a
	// command result.
	ResyncDelay time.Duration

	// QueueLimit bounds the outbound queue; once full the oldest message is
	// dropped with a warning. 0 applies DefaultQueueLimit, negative means
	// unbounded.
	QueueLimit int

	// Dial opens the transport. Defaults to DialWebSocket.
	Dial DialFunc

	// OnReady observes connection-state changes for the indicator.
	OnReady func(ready bool)

	Log logger.Logger
}

// Manager owns at most one live transport at a time. While disconnected it
// queues outbound messages and retries connecting on a fixed delay; on every
// successful connect it flushes the queue in FIFO order and then requests a
// fresh sequence-stamped snapshot.
type Manager struct {
	opts   Options
	router *router.Router

	mu         sync.Mutex
	transport  Transport
	ready      bool
	connecting bool
	closed     bool
	queue      [][]byte
	dropped    int
	reconnect  *task.Handle
	resync     *task.Handle
	seq        int64

	// gen identifies the current connection attempt so a close event from a
	// previous transport cannot disturb the live one.
	gen        int64
	abortedGen int64
}

// New creates a manager and wires the router's deferred-resync trigger to it.
func New(opts Options, r *router.Router) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.ResyncDelay <= 0 {
		opts.ResyncDelay = DefaultResyncDelay
	}
	if opts.QueueLimit == 0 {
		opts.QueueLimit = DefaultQueueLimit
	}
	if opts.Dial == nil {
		opts.Dial = DialWebSocket
	}
	if opts.Log == nil {
		opts.Log = logger.Noop()
	}

	m := &Manager{opts: opts, router: r}
	r.SetResync(m.scheduleResync)
	return m
}

// Connect opens the transport unless one is already open or opening. On
// success the outbound queue is flushed oldest first and an initial snapshot
// request is sent. On failure a single reconnect attempt is scheduled.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.ready || m.connecting || m.closed {
		m.mu.Unlock()
		return
	}
	m.connecting = true
	// A pending reconnect timer is superseded by this attempt.
	m.reconnect.Cancel()
	m.reconnect = nil
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	t, err := m.opts.Dial(m.opts.URL, m.handleFrame, func(closeErr error) {
		m.handleClose(gen, closeErr)
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.connecting = false

	if m.closed {
		if t != nil {
			t.Close()
		}
		return
	}

	if err != nil {
		m.opts.Log.Warn("connect failed: %v", err)
		m.scheduleReconnectLocked()
		return
	}

	if m.abortedGen == gen {
		// The connection died before this attempt finished bookkeeping; the
		// close handler already scheduled the reconnect.
		return
	}

	m.transport = t
	m.ready = true
	m.opts.Log.Info("connected to %s", m.opts.URL)
	m.notifyReady(true)

	if err := m.flushLocked(); err != nil {
		// The transport died mid-flush; its close callback handles the
		// reconnect, and the unsent messages stay queued in order.
		m.opts.Log.Warn("flush interrupted: %v", err)
		return
	}

	m.requestSnapshotLocked()
}

// Send transmits the frame immediately when connected, queueing it on
// transmission failure or while disconnected. Messages are never dropped
// except by the queue bound.
func (m *Manager) Send(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ready && m.transport != nil {
		if err := m.transport.Send(data); err == nil {
			return
		} else {
			m.opts.Log.Warn("send failed, queueing message: %v", err)
		}
	}

	m.enqueueLocked(data)
}

// RequestSnapshot sends a sequence-stamped status_request.
func (m *Manager) RequestSnapshot() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestSnapshotLocked()
}

// Ready reports whether a transport is currently open.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// QueueLen returns the number of queued outbound messages.
func (m *Manager) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Close shuts the manager down permanently; no further reconnects occur.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.reconnect.Cancel()
	m.reconnect = nil
	m.resync.Cancel()
	m.resync = nil

	if m.transport != nil {
		m.transport.Close()
		m.transport = nil
	}
	m.ready = false
}

// handleFrame parses one raw inbound frame and routes it. Parse failures are
// logged and discarded; they never take the connection down.
func (m *Manager) handleFrame(raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		m.opts.Log.Warn("discarding inbound frame: %v", err)
		return
	}
	m.router.Route(msg)
}

// handleClose runs when the transport dies for any reason. It flips ready off
// and schedules exactly one reconnect.
func (m *Manager) handleClose(gen int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		// A defunct transport from an earlier attempt; the live connection
		// is unaffected.
		return
	}
	if m.connecting {
		m.abortedGen = gen
	}

	if err != nil {
		m.opts.Log.Warn("connection lost: %v", err)
	} else {
		m.opts.Log.Info("connection closed")
	}

	m.transport = nil
	if m.ready {
		m.ready = false
		m.notifyReady(false)
	}
	m.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the reconnect timer if none is pending.
// Multiple close/error events during one outage collapse into a single
// scheduled attempt.
func (m *Manager) scheduleReconnectLocked() {
	if m.closed || m.reconnect != nil {
		return
	}
	m.opts.Log.Debug("reconnecting in %s", m.opts.ReconnectDelay)
	var h *task.Handle
	h = task.Schedule(m.opts.ReconnectDelay, func() {
		m.mu.Lock()
		// A Connect call may have superseded this timer while the callback
		// was already in flight; it must not clear the newer handle's slot
		// or trigger a duplicate attempt.
		superseded := m.reconnect != h
		if !superseded {
			m.reconnect = nil
		}
		m.mu.Unlock()

		if superseded {
			return
		}
		m.Connect()
	})
	m.reconnect = h
}

// scheduleResync arms the deferred snapshot request, superseding a pending
// one so back-to-back command results collapse into a single refresh.
func (m *Manager) scheduleResync() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.resync.Cancel()
	m.resync = task.Schedule(m.opts.ResyncDelay, func() {
		m.mu.Lock()
		m.resync = nil
		m.requestSnapshotLocked()
		m.mu.Unlock()
	})
}

// flushLocked drains the queue in FIFO order. A message that fails to send is
// pushed back to the front so order is preserved and nothing is lost.
func (m *Manager) flushLocked() error {
	for len(m.queue) > 0 {
		data := m.queue[0]
		m.queue = m.queue[1:]
		if err := m.transport.Send(data); err != nil {
			m.queue = append([][]byte{data}, m.queue...)
			return err
		}
	}
	return nil
}

// enqueueLocked appends to the outbound queue, dropping the oldest entry with
// a warning once the bound is hit.
func (m *Manager) enqueueLocked(data []byte) {
	if m.opts.QueueLimit > 0 && len(m.queue) >= m.opts.QueueLimit {
		m.queue = m.queue[1:]
		m.dropped++
		m.opts.Log.Warn("outbound queue full (%d), dropped oldest message (%d dropped total)",
			m.opts.QueueLimit, m.dropped)
	}
	m.queue = append(m.queue, data)
}

func (m *Manager) requestSnapshotLocked() {
	m.seq++
	data := protocol.StatusRequest(m.seq)

	if m.ready && m.transport != nil {
		if err := m.transport.Send(data); err == nil {
			return
		}
	}
	m.enqueueLocked(data)
}

func (m *Manager) notifyReady(ready bool) {
	if m.opts.OnReady != nil {
		// Run outside the lock path's critical work; the callback must not
		// call back into the manager synchronously.
		go m.opts.OnReady(ready)
	}
}
