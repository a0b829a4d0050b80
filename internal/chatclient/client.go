package chatclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/realtime"
)

var ErrClosed = errors.New("chat client closed")

type Options struct {
	SendTimeout   time.Duration
	TypingIdle    time.Duration
	TypingDisplay time.Duration
	WriteWait     time.Duration
	// UpdateBuffer sizes the Updates channel; updates beyond it are dropped.
	UpdateBuffer int
}

func (o *Options) defaults() {
	if o.SendTimeout <= 0 {
		o.SendTimeout = DefaultSendTimeout
	}
	if o.TypingIdle <= 0 {
		o.TypingIdle = DefaultTypingIdle
	}
	if o.TypingDisplay <= 0 {
		o.TypingDisplay = DefaultTypingDisplay
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.UpdateBuffer <= 0 {
		o.UpdateBuffer = 64
	}
}

// Update tells the consumer that something changed. Kind is the server
// event type, or "timeout" when the watchdog failed a send.
type Update struct {
	ConversationID string
	Kind           string
	ID             string
	Err            *realtime.ErrorPayload
}

type room struct {
	timeline  *Timeline
	typers    *TypingIndicator
	debouncer *TypingDebouncer
}

// Client speaks the chat protocol over one websocket for one user.
type Client struct {
	userID string
	opts   Options
	log    *slog.Logger
	conn   *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	rooms   map[string]*room
	pending map[string]string // provisional id -> conversation id

	watchdog *Watchdog
	updates  chan Update

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the chat endpoint, e.g. ws://host/ws, authenticating
// with token. userID is the identity the token resolves to; it decides
// which messages count as own.
func Dial(ctx context.Context, endpoint, token, userID string, opts Options, log *slog.Logger) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial chat: unauthorized")
		}
		return nil, fmt.Errorf("dial chat: %w", err)
	}
	return newClient(conn, userID, opts, log), nil
}

func newClient(conn *websocket.Conn, userID string, opts Options, log *slog.Logger) *Client {
	opts.defaults()
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		userID:  userID,
		opts:    opts,
		log:     log.With(slog.String("component", "chatclient"), slog.String("user_id", userID)),
		conn:    conn,
		rooms:   make(map[string]*room),
		pending: make(map[string]string),
		updates: make(chan Update, opts.UpdateBuffer),
		done:    make(chan struct{}),
	}
	c.watchdog = NewWatchdog(opts.SendTimeout, c.onSendTimeout)
	go c.readLoop()
	return c
}

func (c *Client) Updates() <-chan Update { return c.updates }

func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) publish(u Update) {
	select {
	case c.updates <- u:
	default:
		c.log.Debug("update dropped", slog.String("kind", u.Kind))
	}
}

func (c *Client) write(typ string, payload any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	ev, err := realtime.NewEvent(typ, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	return c.conn.WriteJSON(ev)
}

// roomLocked returns the state for conversationID, creating it on first use.
func (c *Client) roomLocked(conversationID string) *room {
	r, ok := c.rooms[conversationID]
	if ok {
		return r
	}
	payload := realtime.RoomPayload{ConversationID: conversationID}
	r = &room{
		timeline: NewTimeline(),
		typers: NewTypingIndicator(c.opts.TypingDisplay, func() {
			c.publish(Update{ConversationID: conversationID, Kind: realtime.TypeUserTyping})
		}),
		debouncer: NewTypingDebouncer(c.opts.TypingIdle,
			func() { c.sendSignal(realtime.TypeTyping, payload) },
			func() { c.sendSignal(realtime.TypeStopTyping, payload) },
		),
	}
	c.rooms[conversationID] = r
	return r
}

func (c *Client) sendSignal(typ string, payload realtime.RoomPayload) {
	if err := c.write(typ, payload); err != nil {
		c.log.Debug("typing signal not sent", slog.String("type", typ), slog.Any("err", err))
	}
}

func (c *Client) Join(conversationID string) error {
	c.mu.Lock()
	c.roomLocked(conversationID)
	c.mu.Unlock()
	return c.write(realtime.TypeJoinRoom, realtime.RoomPayload{ConversationID: conversationID})
}

func (c *Client) Leave(conversationID string) error {
	c.mu.Lock()
	r, ok := c.rooms[conversationID]
	if ok {
		r.debouncer.Cancel()
		r.typers.Close()
		delete(c.rooms, conversationID)
	}
	c.mu.Unlock()
	return c.write(realtime.TypeLeaveRoom, realtime.RoomPayload{ConversationID: conversationID})
}

// Send shows body as pending right away and asks the server to persist
// it. A resend of a failed message is just another Send.
func (c *Client) Send(conversationID, body string) (string, error) {
	provisionalID := uuid.NewString()

	c.mu.Lock()
	r := c.roomLocked(conversationID)
	r.timeline.LocalSent(provisionalID, c.userID, body, time.Now().UTC())
	c.pending[provisionalID] = conversationID
	debouncer := r.debouncer
	c.mu.Unlock()

	debouncer.Flush()
	c.watchdog.Track(provisionalID)

	err := c.write(realtime.TypeSendMessage, realtime.SendMessagePayload{
		ProvisionalID:  provisionalID,
		ConversationID: conversationID,
		Body:           body,
	})
	if err != nil {
		// the watchdog will fail the bubble
		return provisionalID, fmt.Errorf("send message: %w", err)
	}
	return provisionalID, nil
}

// Keystroke feeds the typing debouncer for conversationID.
func (c *Client) Keystroke(conversationID string) {
	c.mu.Lock()
	d := c.roomLocked(conversationID).debouncer
	c.mu.Unlock()
	d.Keystroke()
}

// LoadHistory merges a fetched batch and marks every message from the
// other party as read, one frame per message.
func (c *Client) LoadHistory(conversationID string, msgs []domain.Message) {
	c.mu.Lock()
	c.roomLocked(conversationID).timeline.HistoryLoaded(msgs)
	c.mu.Unlock()

	for _, m := range msgs {
		if m.AuthorID != c.userID && !m.IsRead {
			c.markRead(conversationID, m.ID)
		}
	}
}

func (c *Client) markRead(conversationID, messageID string) {
	err := c.write(realtime.TypeMarkRead, realtime.MarkReadPayload{ConversationID: conversationID, MessageID: messageID})
	if err != nil {
		c.log.Debug("mark-read not sent", slog.String("message_id", messageID), slog.Any("err", err))
	}
}

// Timeline returns a snapshot of the conversation log.
func (c *Client) Timeline(conversationID string) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[conversationID]
	if !ok {
		return nil
	}
	return r.timeline.Entries()
}

// Typers lists the other users currently shown as typing.
func (c *Client) Typers(conversationID string) []string {
	c.mu.Lock()
	r, ok := c.rooms[conversationID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return r.typers.Typing()
}

func (c *Client) onSendTimeout(provisionalID string) {
	c.mu.Lock()
	conv, ok := c.pending[provisionalID]
	delete(c.pending, provisionalID)
	if ok {
		if r, exists := c.rooms[conv]; exists {
			r.timeline.TimedOut(provisionalID)
		}
	}
	c.mu.Unlock()

	if ok {
		c.log.Warn("send timed out", slog.String("provisional_id", provisionalID))
		c.publish(Update{ConversationID: conv, Kind: realtime.ReasonTimeout, ID: provisionalID})
	}
}

func (c *Client) readLoop() {
	defer c.shutdown()
	for {
		var ev realtime.Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("read loop ended", slog.Any("err", err))
			}
			return
		}
		c.apply(ev)
	}
}

func (c *Client) apply(ev realtime.Event) {
	switch ev.Type {
	case realtime.TypeRoomJoined:
		var p realtime.RoomPayload
		if err := ev.Decode(&p); err != nil {
			c.log.Warn("bad room-joined", slog.Any("err", err))
			return
		}
		c.publish(Update{ConversationID: p.ConversationID, Kind: ev.Type})

	case realtime.TypeMessageConfirmed:
		var p realtime.MessageConfirmedPayload
		if err := ev.Decode(&p); err != nil {
			c.log.Warn("bad message-confirmed", slog.Any("err", err))
			return
		}
		conv := p.Message.ConversationID
		c.watchdog.Resolve(p.ProvisionalID)
		c.mu.Lock()
		delete(c.pending, p.ProvisionalID)
		r := c.roomLocked(conv)
		r.timeline.Confirmed(p.ProvisionalID, p.Message)
		typers := r.typers
		c.mu.Unlock()

		if p.Message.AuthorID != c.userID {
			typers.Hide(p.Message.AuthorID)
			if !p.Message.IsRead {
				c.markRead(conv, p.Message.ID)
			}
		}
		c.publish(Update{ConversationID: conv, Kind: ev.Type, ID: p.Message.ID})

	case realtime.TypeMessageFailed:
		var p realtime.MessageFailedPayload
		if err := ev.Decode(&p); err != nil {
			c.log.Warn("bad message-failed", slog.Any("err", err))
			return
		}
		c.watchdog.Resolve(p.ProvisionalID)
		c.mu.Lock()
		conv, ok := c.pending[p.ProvisionalID]
		delete(c.pending, p.ProvisionalID)
		if ok {
			if r, exists := c.rooms[conv]; exists {
				r.timeline.Failed(p.ProvisionalID, p.Reason)
			}
		}
		c.mu.Unlock()
		c.publish(Update{ConversationID: conv, Kind: ev.Type, ID: p.ProvisionalID})

	case realtime.TypeMessageRead:
		var p realtime.MessageReadPayload
		if err := ev.Decode(&p); err != nil {
			c.log.Warn("bad message-read", slog.Any("err", err))
			return
		}
		c.mu.Lock()
		if r, ok := c.rooms[p.ConversationID]; ok {
			r.timeline.Read(p.MessageID)
		}
		c.mu.Unlock()
		c.publish(Update{ConversationID: p.ConversationID, Kind: ev.Type, ID: p.MessageID})

	case realtime.TypeUserTyping, realtime.TypeUserStopTyping:
		var p realtime.TypingPayload
		if err := ev.Decode(&p); err != nil {
			c.log.Warn("bad typing event", slog.Any("err", err))
			return
		}
		c.mu.Lock()
		r, ok := c.rooms[p.ConversationID]
		c.mu.Unlock()
		if !ok {
			return
		}
		if ev.Type == realtime.TypeUserTyping {
			r.typers.Show(p.UserID)
		} else {
			r.typers.Hide(p.UserID)
		}

	case realtime.TypeError:
		var p realtime.ErrorPayload
		if err := ev.Decode(&p); err != nil {
			c.log.Warn("bad error event", slog.Any("err", err))
			return
		}
		c.log.Debug("server error", slog.String("code", p.Code), slog.String("message", p.Message))
		c.publish(Update{Kind: ev.Type, Err: &p})

	default:
		c.log.Debug("unknown event", slog.String("type", ev.Type))
	}
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.watchdog.Stop()
		c.mu.Lock()
		for _, r := range c.rooms {
			r.debouncer.Cancel()
			r.typers.Close()
		}
		c.mu.Unlock()
		_ = c.conn.Close()
	})
}

// Close sends a normal close frame and tears the connection down.
func (c *Client) Close() error {
	c.writeMu.Lock()
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.shutdown()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}
