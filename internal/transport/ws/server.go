package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/MelvinVerLia/SiLaporRT-sub001/config"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/metrics"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/realtime"
)

// Coordinator is the session coordinator as seen by the socket layer.
type Coordinator interface {
	Join(ctx context.Context, c realtime.Conn, conversationID, userID string) error
	Leave(c realtime.Conn, conversationID string)
	Disconnect(c realtime.Conn)
	Send(ctx context.Context, c realtime.Conn, conversationID, senderID, provisionalID, body string) error
	MarkRead(ctx context.Context, c realtime.Conn, conversationID, messageID string) bool
	Typing(ctx context.Context, c realtime.Conn, conversationID string)
	StopTyping(ctx context.Context, c realtime.Conn, conversationID string)
}

type TokenVerifier interface {
	UserID(token string) (string, error)
}

type Server struct {
	upgrader websocket.Upgrader
	coord    Coordinator
	verifier TokenVerifier
	cfg      config.WebSocket
	log      *slog.Logger
	metrics  *metrics.Metrics

	mu    sync.Mutex
	conns map[*wsConn]struct{}
}

func NewServer(coord Coordinator, verifier TokenVerifier, cfg config.WebSocket, allowedOrigins []string, log *slog.Logger, m *metrics.Metrics) *Server {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 5 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 1 << 16
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 40
	}
	return &Server{
		coord:    coord,
		verifier: verifier,
		cfg:      cfg,
		log:      log,
		metrics:  m,
		conns:    make(map[*wsConn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleWS serves GET /ws?access_token=<jwt>. A bearer Authorization header
// is accepted as well for non-browser clients.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("access_token"))
	if token == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimSpace(auth[7:])
		}
	}
	if token == "" {
		http.Error(w, "missing access_token", http.StatusUnauthorized)
		return
	}
	userID, err := s.verifier.UserID(token)
	if err != nil {
		s.log.InfoContext(r.Context(), "ws auth failed", "err", err)
		http.Error(w, "invalid access_token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.log.WarnContext(r.Context(), "ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn, userID, s.cfg.SendBuffer)
	log := s.log.With("conn", c.ID(), "user", userID)
	s.track(c, true)
	s.metrics.ConnOpened()
	log.DebugContext(r.Context(), "ws connected")

	go c.writeLoop(s.cfg.PingInterval, s.cfg.WriteWait)
	s.readLoop(r.Context(), c, log)

	s.coord.Disconnect(c)
	c.Close()
	s.track(c, false)
	s.metrics.ConnClosed()
	log.DebugContext(r.Context(), "ws disconnected")
}

func (s *Server) track(c *wsConn, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if open {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

// CloseAll drops every open socket. Hijacked connections are not covered
// by http.Server.Shutdown, so register this with RegisterOnShutdown.
func (s *Server) CloseAll() {
	s.mu.Lock()
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(s.cfg.WriteWait))
		c.Close()
	}
}

// OpenConns is the number of live sockets.
func (s *Server) OpenConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) readLoop(ctx context.Context, c *wsConn, log *slog.Logger) {
	limiter := rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst)
	readWait := 2 * s.cfg.PingInterval

	c.conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.DebugContext(ctx, "ws read failed", "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readWait))

		if !limiter.Allow() {
			s.metrics.FrameDropped()
			log.WarnContext(ctx, "ws frame dropped: rate limited")
			s.rejectSend(c, data)
			continue
		}

		var ev realtime.Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
			s.sendError(c, realtime.CodeBadRequest, "malformed frame")
			continue
		}
		s.handle(ctx, c, ev, log)
	}
}

// rejectSend answers a dropped send-message with message-failed so the
// sender's bubble does not stay pending. Other dropped frames get nothing.
func (s *Server) rejectSend(c *wsConn, data []byte) {
	var ev realtime.Event
	if err := json.Unmarshal(data, &ev); err != nil || ev.Type != realtime.TypeSendMessage {
		return
	}
	var p realtime.SendMessagePayload
	if err := ev.Decode(&p); err != nil || p.ProvisionalID == "" {
		return
	}
	_ = c.Send(realtime.MustEvent(realtime.TypeMessageFailed, realtime.MessageFailedPayload{
		ProvisionalID: p.ProvisionalID,
		Reason:        realtime.ReasonRateLimited,
	}))
}

// handle dispatches one frame. A panic is contained to the frame.
func (s *Server) handle(ctx context.Context, c *wsConn, ev realtime.Event, log *slog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			log.ErrorContext(ctx, "ws frame handler panic", "type", ev.Type, "panic", rec, "stack", string(debug.Stack()))
			s.sendError(c, realtime.CodeInternal, "internal error")
		}
	}()

	switch ev.Type {
	case realtime.TypeJoinRoom:
		var p realtime.RoomPayload
		if !s.decode(c, ev, &p) {
			return
		}
		if err := s.coord.Join(ctx, c, p.ConversationID, c.UserID()); err != nil {
			code, msg := joinErrorCode(err)
			log.InfoContext(ctx, "join failed", "conversation", p.ConversationID, "err", err)
			s.sendError(c, code, msg)
		}

	case realtime.TypeLeaveRoom:
		var p realtime.RoomPayload
		if s.decode(c, ev, &p) {
			s.coord.Leave(c, p.ConversationID)
		}

	case realtime.TypeSendMessage:
		var p realtime.SendMessagePayload
		if !s.decode(c, ev, &p) {
			return
		}
		// failures were already answered with message-failed
		if err := s.coord.Send(ctx, c, p.ConversationID, c.UserID(), p.ProvisionalID, p.Body); err != nil {
			log.DebugContext(ctx, "send failed", "conversation", p.ConversationID, "provisional", p.ProvisionalID, "err", err)
		}

	case realtime.TypeMarkRead:
		var p realtime.MarkReadPayload
		if s.decode(c, ev, &p) {
			s.coord.MarkRead(ctx, c, p.ConversationID, p.MessageID)
		}

	case realtime.TypeTyping:
		var p realtime.RoomPayload
		if s.decode(c, ev, &p) {
			s.coord.Typing(ctx, c, p.ConversationID)
		}

	case realtime.TypeStopTyping:
		var p realtime.RoomPayload
		if s.decode(c, ev, &p) {
			s.coord.StopTyping(ctx, c, p.ConversationID)
		}

	default:
		s.sendError(c, realtime.CodeBadRequest, fmt.Sprintf("unknown event type %q", ev.Type))
	}
}

func (s *Server) decode(c *wsConn, ev realtime.Event, dst any) bool {
	if err := ev.Decode(dst); err != nil {
		s.sendError(c, realtime.CodeBadRequest, "malformed "+ev.Type+" payload")
		return false
	}
	return true
}

func (s *Server) sendError(c *wsConn, code, msg string) {
	_ = c.Send(realtime.MustEvent(realtime.TypeError, realtime.ErrorPayload{Code: code, Message: msg}))
}

func joinErrorCode(err error) (string, string) {
	switch {
	case errors.Is(err, domain.ErrConversationNotFound):
		return realtime.CodeNotFound, "conversation not found"
	case errors.Is(err, domain.ErrNotParticipant):
		return realtime.CodeNotParticipant, "not a participant of this conversation"
	case errors.Is(err, domain.ErrValidation):
		return realtime.CodeBadRequest, err.Error()
	}
	return realtime.CodeInternal, "join failed"
}
