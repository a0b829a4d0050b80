package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/metrics"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/realtime"
)

type CoordinatorConfig struct {
	MaxBodyLength  int
	PersistTimeout time.Duration
	// PushTitle is the notification title; the body is a preview of the
	// message cut to PushPreview runes.
	PushTitle   string
	PushPreview int
	// ClickURLFormat receives the report id, e.g. "/reports/%s".
	ClickURLFormat string
}

type CoordinatorDeps struct {
	Registry   *realtime.Registry
	Directory  ConversationDirectory
	Store      MessageStore
	Reconciler *Reconciler
	Receipts   *ReadReceiptTracker
	Typing     *TypingSignaler
	Push       PushDispatcher
	Log        *slog.Logger
	Metrics    *metrics.Metrics
}

// SessionCoordinator validates room membership, routes inbound events and
// emits outbound ones to every connection joined to a room.
type SessionCoordinator struct {
	cfg        CoordinatorConfig
	registry   *realtime.Registry
	directory  ConversationDirectory
	store      MessageStore
	reconciler *Reconciler
	receipts   *ReadReceiptTracker
	typing     *TypingSignaler
	push       PushDispatcher
	log        *slog.Logger
	metrics    *metrics.Metrics

	locks   *KeyedMutex
	pushing sync.WaitGroup
}

func NewSessionCoordinator(cfg CoordinatorConfig, deps CoordinatorDeps) *SessionCoordinator {
	if cfg.MaxBodyLength <= 0 {
		cfg.MaxBodyLength = 4000
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	if cfg.PushTitle == "" {
		cfg.PushTitle = "New message"
	}
	if cfg.PushPreview <= 0 {
		cfg.PushPreview = 120
	}
	if cfg.ClickURLFormat == "" {
		cfg.ClickURLFormat = "/reports/%s"
	}
	return &SessionCoordinator{
		cfg:        cfg,
		registry:   deps.Registry,
		directory:  deps.Directory,
		store:      deps.Store,
		reconciler: deps.Reconciler,
		receipts:   deps.Receipts,
		typing:     deps.Typing,
		push:       deps.Push,
		log:        deps.Log,
		metrics:    deps.Metrics,
		locks:      NewKeyedMutex(),
	}
}

// Join registers c in the conversation room after checking that userID is
// one of its participants. Joining a room twice changes nothing.
func (s *SessionCoordinator) Join(ctx context.Context, c realtime.Conn, conversationID, userID string) error {
	if !s.registry.IsMember(c, conversationID) {
		parts, err := s.directory.Participants(ctx, conversationID)
		if err != nil {
			s.metrics.Join("error")
			if errors.Is(err, domain.ErrConversationNotFound) {
				return err
			}
			return fmt.Errorf("%w: participants: %v", domain.ErrStorageUnavailable, err)
		}
		if !parts.Has(userID) {
			s.metrics.Join("rejected")
			s.log.WarnContext(ctx, "join rejected: not a participant",
				"conversation", conversationID, "user", userID, "conn", c.ID())
			return domain.ErrNotParticipant
		}
		if s.registry.Register(c, conversationID) {
			s.metrics.Join("joined")
			s.log.DebugContext(ctx, "joined room", "conversation", conversationID, "user", userID, "conn", c.ID())
		}
	}

	return c.Send(realtime.MustEvent(realtime.TypeRoomJoined, realtime.RoomPayload{ConversationID: conversationID}))
}

func (s *SessionCoordinator) Leave(c realtime.Conn, conversationID string) {
	if !s.registry.Unregister(c, conversationID) {
		return
	}
	s.clearTyping(conversationID, c.UserID())
	s.log.Debug("left room", "conversation", conversationID, "conn", c.ID())
}

// Disconnect forgets c in every room. The transport must call it when the
// socket goes away, otherwise the registry keeps the handle forever.
func (s *SessionCoordinator) Disconnect(c realtime.Conn) {
	for _, roomID := range s.registry.UnregisterAll(c) {
		s.clearTyping(roomID, c.UserID())
	}
}

func (s *SessionCoordinator) clearTyping(roomID, userID string) {
	if !s.registry.HasUser(roomID, userID) {
		s.typing.Clear(roomID, userID)
	}
}

// Send persists a message and broadcasts message-confirmed to the room.
// Every failure is answered with message-failed to c alone, so the sender's
// bubble never stays pending. Participants with no connection in the room
// get a push notification afterwards.
func (s *SessionCoordinator) Send(ctx context.Context, c realtime.Conn, conversationID, senderID, provisionalID, body string) error {
	body = strings.TrimSpace(body)

	parts, err := s.validateSend(ctx, c, conversationID, senderID, provisionalID, body)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			s.metrics.Message("rejected")
			s.log.InfoContext(ctx, "send rejected", "conversation", conversationID, "user", senderID, "err", err)
			s.fail(c, provisionalID, realtime.ReasonValidationFailed)
		} else {
			s.metrics.Message("failed")
			s.log.ErrorContext(ctx, "send: participants lookup failed", "conversation", conversationID, "err", err)
			s.fail(c, provisionalID, realtime.ReasonStorageUnavailable)
		}
		return err
	}

	msg, err := s.persistAndBroadcast(ctx, c, conversationID, senderID, provisionalID, body)
	if err != nil {
		return err
	}
	if msg != nil {
		s.notifyAbsent(ctx, parts, senderID, msg)
	}
	return nil
}

func (s *SessionCoordinator) validateSend(ctx context.Context, c realtime.Conn, conversationID, senderID, provisionalID, body string) (domain.Participants, error) {
	switch {
	case strings.TrimSpace(provisionalID) == "":
		return domain.Participants{}, domain.ErrMissingProvisionalID
	case body == "":
		return domain.Participants{}, domain.ErrEmptyBody
	case utf8.RuneCountInString(body) > s.cfg.MaxBodyLength:
		return domain.Participants{}, domain.ErrBodyTooLong
	case strings.ContainsRune(body, 0) || !utf8.ValidString(body):
		return domain.Participants{}, domain.ErrInvalidBody
	case !s.registry.IsMember(c, conversationID):
		return domain.Participants{}, domain.ErrNotJoined
	}

	parts, err := s.directory.Participants(ctx, conversationID)
	if err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			return parts, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		return parts, fmt.Errorf("%w: participants: %v", domain.ErrStorageUnavailable, err)
	}
	if !parts.Has(senderID) {
		return parts, domain.ErrNotParticipant
	}
	if !parts.Active {
		return parts, domain.ErrConversationClosed
	}
	return parts, nil
}

// persistAndBroadcast holds the conversation lock across persist and
// broadcast so that every member observes messages in persistence order.
// It returns a nil message when the provisional id was already confirmed.
func (s *SessionCoordinator) persistAndBroadcast(ctx context.Context, c realtime.Conn, conversationID, senderID, provisionalID, body string) (*domain.Message, error) {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	if prev, ok := s.reconciler.Lookup(conversationID, senderID, provisionalID); ok {
		s.metrics.Message("duplicate")
		s.log.InfoContext(ctx, "send: provisional id already confirmed",
			"conversation", conversationID, "provisional", provisionalID, "message", prev.ID)
		return nil, c.Send(ConfirmedEvent(provisionalID, prev))
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
	start := time.Now()
	msg, err := s.store.Append(pctx, domain.NewMessage{
		ConversationID: conversationID,
		AuthorID:       senderID,
		Body:           body,
	})
	cancel()
	s.metrics.ObservePersist(time.Since(start).Seconds())
	if err != nil {
		s.metrics.Message("failed")
		s.log.ErrorContext(ctx, "send: persist failed",
			"conversation", conversationID, "provisional", provisionalID, "err", err)
		s.fail(c, provisionalID, realtime.ReasonStorageUnavailable)
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	ev := s.reconciler.Confirm(senderID, provisionalID, *msg)
	n := s.registry.Broadcast(conversationID, ev, nil)
	s.metrics.Message("confirmed")
	s.log.DebugContext(ctx, "message confirmed",
		"conversation", conversationID, "message", msg.ID, "provisional", provisionalID, "delivered", n)
	return msg, nil
}

func (s *SessionCoordinator) fail(c realtime.Conn, provisionalID, reason string) {
	if err := c.Send(FailedEvent(provisionalID, reason)); err != nil {
		s.log.Debug("message-failed not delivered", "conn", c.ID(), "provisional", provisionalID, "err", err)
	}
}

// notifyAbsent pushes to every other participant without a live connection
// in the room. Dispatch runs detached from the sender's connection so a
// closing socket does not cancel it.
func (s *SessionCoordinator) notifyAbsent(ctx context.Context, parts domain.Participants, senderID string, msg *domain.Message) {
	if s.push == nil {
		return
	}
	preview := truncateRunes(msg.Body, s.cfg.PushPreview)
	clickURL := fmt.Sprintf(s.cfg.ClickURLFormat, parts.ReportID)
	detached := context.WithoutCancel(ctx)

	for _, userID := range parts.Others(senderID) {
		if s.registry.HasUser(msg.ConversationID, userID) {
			continue
		}
		s.pushing.Add(1)
		go func(userID string) {
			defer s.pushing.Done()
			s.push.Dispatch(detached, userID, s.cfg.PushTitle, preview, clickURL)
		}(userID)
	}
}

// MarkRead routes a read mark from c; marks from connections outside the
// room are dropped.
func (s *SessionCoordinator) MarkRead(ctx context.Context, c realtime.Conn, conversationID, messageID string) bool {
	if !s.registry.IsMember(c, conversationID) {
		s.stale(ctx, c, "mark-read", conversationID)
		return false
	}
	return s.receipts.MarkRead(ctx, conversationID, messageID, c.UserID())
}

func (s *SessionCoordinator) Typing(ctx context.Context, c realtime.Conn, conversationID string) {
	if !s.registry.IsMember(c, conversationID) {
		s.stale(ctx, c, "typing", conversationID)
		return
	}
	s.typing.NotifyTyping(conversationID, c.UserID())
}

func (s *SessionCoordinator) StopTyping(ctx context.Context, c realtime.Conn, conversationID string) {
	if !s.registry.IsMember(c, conversationID) {
		s.stale(ctx, c, "stop-typing", conversationID)
		return
	}
	s.typing.NotifyStopTyping(conversationID, c.UserID())
}

func (s *SessionCoordinator) stale(ctx context.Context, c realtime.Conn, kind, conversationID string) {
	s.metrics.StaleSignal(kind)
	s.log.DebugContext(ctx, "stale signal dropped",
		"kind", kind, "conversation", conversationID, "conn", c.ID(), "err", domain.ErrStaleSignal)
}

// Wait blocks until in-flight push dispatches finish or ctx ends.
func (s *SessionCoordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pushing.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
