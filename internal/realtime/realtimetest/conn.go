// Package realtimetest provides an in-memory realtime.Conn for tests.
package realtimetest

import (
	"errors"
	"sync"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/realtime"
)

var ErrClosed = errors.New("connection closed")

// Conn records every event sent to it.
type Conn struct {
	id     string
	userID string

	mu     sync.Mutex
	events []realtime.Event
	closed bool
	notify chan struct{}
}

func NewConn(id, userID string) *Conn {
	return &Conn{id: id, userID: userID, notify: make(chan struct{}, 1024)}
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) UserID() string { return c.userID }

func (c *Conn) Send(ev realtime.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.events = append(c.events, ev)
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

// Close makes further sends fail, like a dropped socket.
func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Conn) Events() []realtime.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]realtime.Event, len(c.events))
	copy(out, c.events)
	return out
}

// OfType returns the recorded events with the given type.
func (c *Conn) OfType(typ string) []realtime.Event {
	var out []realtime.Event
	for _, ev := range c.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (c *Conn) Reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}
