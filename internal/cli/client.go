package cli

import (
	"time"

	"tilewatch/internal/conn"
	"tilewatch/internal/errors"
	"tilewatch/internal/protocol"
)

// oneShotTimeout bounds how long the one-shot commands wait for a reply.
const oneShotTimeout = 10 * time.Second

// oneShotClient is a short-lived controller connection for the non-TUI
// commands: connect, send one message, wait for the relevant replies, close.
type oneShotClient struct {
	transport conn.Transport
	inbound   chan protocol.Message
	closed    chan error
}

// dialOneShot connects to the controller without any reconnect policy; a
// one-shot command fails fast instead of retrying.
func dialOneShot(url string) (*oneShotClient, error) {
	c := &oneShotClient{
		inbound: make(chan protocol.Message, 64),
		closed:  make(chan error, 1),
	}

	t, err := conn.DialWebSocket(url, func(raw []byte) {
		msg, err := protocol.Decode(raw)
		if err != nil {
			return
		}
		select {
		case c.inbound <- msg:
		default:
		}
	}, func(closeErr error) {
		c.closed <- closeErr
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrTransport,
			"Cannot connect to controller at "+url,
			"Check the controller is running, or start one with 'tilewatch sim'")
	}

	c.transport = t
	return c, nil
}

func (c *oneShotClient) send(data []byte) error {
	if err := c.transport.Send(data); err != nil {
		return errors.WrapWithCode(err, errors.ErrSend,
			"Failed to send message to controller",
			"Check the connection and retry")
	}
	return nil
}

// await waits until match returns true for an inbound message, the connection
// closes, or the timeout elapses.
func (c *oneShotClient) await(timeout time.Duration, match func(protocol.Message) bool) (protocol.Message, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case msg := <-c.inbound:
			if match(msg) {
				return msg, nil
			}
		case err := <-c.closed:
			return protocol.Message{}, errors.Wrap(err, "Connection closed before the controller replied")
		case <-deadline.C:
			return protocol.Message{}, errors.New(errors.ErrTransport,
				"Timed out waiting for a controller reply",
				"The controller may be overloaded; retry or check its logs")
		}
	}
}

func (c *oneShotClient) close() {
	c.transport.Close()
}
