package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/metrics"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/realtime"
)

// TypingSignaler relays ephemeral typing state. The server keeps a typer
// only until its expiry so that leaving or disconnecting mid-burst can
// still emit user-stop-typing; receivers clear their indicator on their own.
type TypingSignaler struct {
	registry *realtime.Registry
	expiry   time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics

	mu     sync.Mutex
	typers map[typingKey]*time.Timer
}

type typingKey struct {
	roomID string
	userID string
}

func NewTypingSignaler(registry *realtime.Registry, expiry time.Duration, log *slog.Logger, m *metrics.Metrics) *TypingSignaler {
	if expiry <= 0 {
		expiry = 3 * time.Second
	}
	return &TypingSignaler{
		registry: registry,
		expiry:   expiry,
		log:      log,
		metrics:  m,
		typers:   make(map[typingKey]*time.Timer),
	}
}

// NotifyTyping tells every connection in the room except the typer's own.
func (s *TypingSignaler) NotifyTyping(roomID, userID string) {
	key := typingKey{roomID, userID}

	s.mu.Lock()
	if t, ok := s.typers[key]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(s.expiry, func() {
		s.mu.Lock()
		if s.typers[key] == timer {
			delete(s.typers, key)
		}
		s.mu.Unlock()
	})
	s.typers[key] = timer
	s.mu.Unlock()

	s.broadcast(realtime.TypeUserTyping, roomID, userID)
}

func (s *TypingSignaler) NotifyStopTyping(roomID, userID string) {
	s.forget(roomID, userID)
	s.broadcast(realtime.TypeUserStopTyping, roomID, userID)
}

// Clear emits user-stop-typing only if userID is still typing in roomID.
func (s *TypingSignaler) Clear(roomID, userID string) {
	if s.forget(roomID, userID) {
		s.broadcast(realtime.TypeUserStopTyping, roomID, userID)
	}
}

// IsTyping reports whether the server still tracks userID as typing.
func (s *TypingSignaler) IsTyping(roomID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.typers[typingKey{roomID, userID}]
	return ok
}

func (s *TypingSignaler) forget(roomID, userID string) bool {
	key := typingKey{roomID, userID}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.typers[key]
	if ok {
		t.Stop()
		delete(s.typers, key)
	}
	return ok
}

func (s *TypingSignaler) broadcast(typ, roomID, userID string) {
	ev := realtime.MustEvent(typ, realtime.TypingPayload{ConversationID: roomID, UserID: userID})
	s.registry.Broadcast(roomID, ev, func(c realtime.Conn) bool { return c.UserID() == userID })
	s.metrics.TypingBroadcast()
	s.log.Debug("typing relayed", "type", typ, "room", roomID, "user", userID)
}
