// Package ws adapts gorilla/websocket connections to the broadcast hub.
package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
)

// ErrPongMissing is returned by Ping when the previous ping was not answered.
var ErrPongMissing = errors.New("pong not received")

const (
	maxMessageSize = 4096
	controlTimeout = time.Second
)

// Conn is a viewer WebSocket connection.
type Conn struct {
	conn  *websocket.Conn
	alive atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewConn wraps an upgraded connection.
func NewConn(c *websocket.Conn) *Conn {
	wc := &Conn{conn: c, done: make(chan struct{})}
	wc.alive.Store(true)
	c.SetReadLimit(maxMessageSize)
	c.SetPongHandler(func(string) error {
		wc.alive.Store(true)
		return nil
	})
	return wc
}

// Send writes one text frame, bounded by the context deadline.
func (c *Conn) Send(ctx context.Context, msg []byte) error {
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return errors.Wrap(err, "failed to set write deadline")
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return errors.Wrap(err, "failed to write message")
	}
	return nil
}

// Ping sends a ping frame. It fails without writing when the pong for the
// previous ping never arrived.
func (c *Conn) Ping(ctx context.Context) error {
	if !c.alive.Swap(false) {
		return ErrPongMissing
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(controlTimeout)
	}
	if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return errors.Wrap(err, "failed to write ping")
	}
	return nil
}

// Close sends a close frame and closes the connection. It is safe to call
// more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(controlTimeout))
		err = c.conn.Close()
		close(c.done)
	})
	return err
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// ReadPump consumes inbound frames so control frames are processed.
// It returns when the peer goes away or the connection is closed.
// Viewers are receive-only, so data frames are discarded.
func (c *Conn) ReadPump() error {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
	}
}
