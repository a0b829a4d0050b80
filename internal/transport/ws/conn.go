package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/realtime"
)

var (
	ErrConnClosed   = errors.New("connection closed")
	ErrSlowConsumer = errors.New("send buffer full")
)

// wsConn is one client socket. Sends are queued and written by a single
// writer goroutine; a full queue closes the connection.
type wsConn struct {
	id     string
	userID string
	conn   *websocket.Conn

	send      chan realtime.Event
	closed    chan struct{}
	closeOnce sync.Once
}

func newWsConn(c *websocket.Conn, userID string, buffer int) *wsConn {
	return &wsConn{
		id:     uuid.NewString(),
		userID: userID,
		conn:   c,
		send:   make(chan realtime.Event, buffer),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) ID() string     { return c.id }
func (c *wsConn) UserID() string { return c.userID }

func (c *wsConn) Send(ev realtime.Event) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- ev:
		return nil
	case <-c.closed:
		return ErrConnClosed
	default:
		c.Close()
		return ErrSlowConsumer
	}
}

// Close is safe to call more than once; the writer drains nothing after it.
func (c *wsConn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

func (c *wsConn) writeLoop(pingEvery, writeWait time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
