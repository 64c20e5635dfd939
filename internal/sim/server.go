package sim

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tilewatch/internal/logger"
	"tilewatch/internal/task"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local demo tool, any origin may connect
	},
}

// ServerOptions configures the simulator server.
type ServerOptions struct {
	Addr              string
	Tiles             int
	Spares            int
	HeartbeatInterval time.Duration
	Log               logger.Logger
}

// Server hosts the simulated controller: a gin HTTP server exposing /ws,
// broadcasting heartbeat snapshots to every connected client and answering
// their commands.
type Server struct {
	opts  ServerOptions
	board *Board
	log   logger.Logger

	mu      sync.Mutex
	clients map[*client]bool
}

// client is one connected operator console. Gorilla permits one concurrent
// writer per connection, hence the per-client write mutex.
type client struct {
	writeMu sync.Mutex
	ws      *websocket.Conn
}

func (c *client) send(msg map[string]interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// NewServer creates a simulator server.
func NewServer(opts ServerOptions) *Server {
	if opts.Tiles <= 0 {
		opts.Tiles = 16
	}
	if opts.Spares < 0 || opts.Spares >= opts.Tiles {
		opts.Spares = 3
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 500 * time.Millisecond
	}
	if opts.Log == nil {
		opts.Log = logger.Noop()
	}

	return &Server{
		opts:    opts,
		board:   NewBoard(opts.Tiles, opts.Spares),
		log:     opts.Log,
		clients: make(map[*client]bool),
	}
}

// Board exposes the simulated board, for tests and scenario seeding.
func (s *Server) Board() *Board {
	return s.board
}

// Run starts the heartbeat loop and serves until the listener fails.
func (s *Server) Run() error {
	go s.heartbeatLoop()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws", s.handleWS)

	s.log.Info("simulator listening on %s (%d tiles, %d spares)",
		s.opts.Addr, s.opts.Tiles, s.opts.Spares)
	return r.Run(s.opts.Addr)
}

// heartbeatLoop ticks the board physics and broadcasts a snapshot to every
// client on each interval.
func (s *Server) heartbeatLoop() {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.board.Tick()
		s.broadcast(s.board.Snapshot(0))
	}
}

func (s *Server) broadcast(msg map[string]interface{}) {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := c.send(msg); err != nil {
			s.drop(c)
		}
	}
}

func (s *Server) handleWS(gc *gin.Context) {
	ws, err := upgrader.Upgrade(gc.Writer, gc.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed: %v", err)
		return
	}

	c := &client{ws: ws}
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
	s.log.Info("client connected")

	defer func() {
		s.drop(c)
		s.log.Info("client disconnected")
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // malformed frames are ignored
		}
		s.handleMessage(c, msg)
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	if s.clients[c] {
		delete(s.clients, c)
		c.ws.Close()
	}
	s.mu.Unlock()
}

// handleMessage answers one client message the way the controller does.
func (s *Server) handleMessage(c *client, msg map[string]interface{}) {
	switch msgType(msg) {
	case "status_request":
		seq, _ := msg["seq"].(float64)
		if err := c.send(s.board.Snapshot(int64(seq))); err != nil {
			s.drop(c)
		}

	case "fault_event":
		node, _ := msg["node_id"].(string)
		faultType, _ := msg["fault_type"].(string)
		severity, _ := msg["severity"].(string)
		if err := s.board.InjectFault(node, faultType, severity); err != nil {
			s.log.Warn("fault_event ignored: %v", err)
			return
		}
		s.broadcast(map[string]interface{}{
			"type":    "fault_report",
			"node_id": node,
			"detail":  faultType,
		})

	case "run_scenario":
		name, _ := msg["scenario"].(string)
		if err := s.board.ApplyScenario(name); err != nil {
			s.log.Warn("run_scenario ignored: %v", err)
			return
		}
		s.broadcast(map[string]interface{}{
			"type": "log",
			"text": "scenario applied: " + name,
		})

	case "cmd_reconfigure":
		s.handleReconfigure(c, msg)

	case "select_component":
		node, _ := msg["node_id"].(string)
		s.log.Debug("operator selected %s", node)

	default:
		// Unknown client messages are ignored, mirroring the real
		// controller's tolerance.
	}
}

// handleReconfigure acks immediately with an estimate, then reports the
// result after the simulated reconfiguration time.
func (s *Server) handleReconfigure(c *client, msg map[string]interface{}) {
	cmdID, _ := msg["cmd_id"].(string)
	if cmdID == "" {
		return
	}
	action, _ := msg["action"].(string)
	target, _ := msg["target_node"].(string)
	spare, _ := msg["spare_id"].(string)

	estimated := 50 + rand.Int63n(200)
	if err := c.send(map[string]interface{}{
		"type":         "cmd_ack",
		"cmd_id":       cmdID,
		"estimated_ms": estimated,
	}); err != nil {
		s.drop(c)
		return
	}

	task.Schedule(time.Duration(estimated)*time.Millisecond, func() {
		status := "success"
		var err error
		switch action {
		case "fast_swap":
			err = s.board.FastSwap(target, spare)
		case "partial_reconfig":
			err = s.board.ClearFault(target)
		case "isolate":
			err = s.board.InjectFault(target, "isolated", "critical")
		default:
			status = "noop"
		}
		if err != nil {
			s.log.Warn("reconfigure %s failed: %v", cmdID, err)
			status = "failed"
		}

		if err := c.send(map[string]interface{}{
			"type":        "cmd_result",
			"cmd_id":      cmdID,
			"status":      status,
			"duration_ms": estimated,
		}); err != nil {
			s.drop(c)
		}
	})
}

func msgType(msg map[string]interface{}) string {
	if t, ok := msg["type"].(string); ok && t != "" {
		return t
	}
	t, _ := msg["msg_type"].(string)
	return t
}
