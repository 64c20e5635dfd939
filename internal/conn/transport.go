package conn

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tilewatch/internal/errors"
)

// Transport is one live connection to the controller. Implementations deliver
// inbound frames and the eventual close through the callbacks passed to the
// DialFunc that created them.
type Transport interface {
	// Send transmits one frame. Safe for concurrent use.
	Send(data []byte) error
	// Close tears the connection down. The onClose callback still fires.
	Close() error
}

// DialFunc opens a transport to url. onMessage is invoked once per inbound
// frame; onClose fires exactly once when the connection dies, with the
// triggering error (nil on clean close).
type DialFunc func(url string, onMessage func([]byte), onClose func(error)) (Transport, error)

// dialTimeout bounds how long one connection attempt may take.
const dialTimeout = 10 * time.Second

// DialWebSocket is the production DialFunc, speaking WebSocket text frames
// with one JSON message per frame.
func DialWebSocket(url string, onMessage func([]byte), onClose func(error)) (Transport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	ws, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrTransport,
			"Cannot connect to controller at "+url,
			"Check the controller is running; try 'tilewatch sim' for a local one")
	}

	t := &wsTransport{ws: ws}
	go t.readLoop(onMessage, onClose)
	return t, nil
}

// wsTransport wraps a gorilla websocket connection. Gorilla allows only one
// concurrent writer, hence the write mutex.
type wsTransport struct {
	writeMu sync.Mutex
	ws      *websocket.Conn
	closed  sync.Once
}

func (t *wsTransport) Send(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.WrapWithCode(err, errors.ErrSend,
			"Transmission to controller failed",
			"")
	}
	return nil
}

func (t *wsTransport) Close() error {
	var err error
	t.closed.Do(func() {
		err = t.ws.Close()
	})
	return err
}

// readLoop pumps inbound frames until the connection dies.
func (t *wsTransport) readLoop(onMessage func([]byte), onClose func(error)) {
	for {
		_, data, err := t.ws.ReadMessage()
		if err != nil {
			t.Close()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				onClose(nil)
			} else {
				onClose(err)
			}
			return
		}
		onMessage(data)
	}
}
