package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/metrics"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/realtime"
)

// ReadReceiptTracker records read-state transitions and tells the room.
type ReadReceiptTracker struct {
	store    MessageStore
	registry *realtime.Registry
	log      *slog.Logger
	metrics  *metrics.Metrics
}

func NewReadReceiptTracker(store MessageStore, registry *realtime.Registry, log *slog.Logger, m *metrics.Metrics) *ReadReceiptTracker {
	return &ReadReceiptTracker{store: store, registry: registry, log: log, metrics: m}
}

// MarkRead reports whether the flag flipped. Foreign messages, own messages
// and storage errors are logged and swallowed; an already-read message is a
// no-op and broadcasts nothing.
func (t *ReadReceiptTracker) MarkRead(ctx context.Context, conversationID, messageID, readerID string) bool {
	res, err := t.store.MarkRead(ctx, conversationID, messageID, readerID)
	switch {
	case errors.Is(err, domain.ErrMessageNotFound):
		t.metrics.StaleSignal("read_foreign")
		t.log.WarnContext(ctx, "mark read: message not in conversation",
			"conversation", conversationID, "message", messageID, "reader", readerID)
		return false
	case err != nil:
		t.log.ErrorContext(ctx, "mark read failed",
			"conversation", conversationID, "message", messageID, "err", err)
		return false
	}

	switch res {
	case domain.ReadOwnMessage:
		t.metrics.StaleSignal("read_own")
		t.log.DebugContext(ctx, "mark read: author cannot read own message",
			"conversation", conversationID, "message", messageID, "reader", readerID)
		return false
	case domain.ReadAlreadyRead:
		return false
	}

	t.registry.Broadcast(conversationID, realtime.MustEvent(realtime.TypeMessageRead, realtime.MessageReadPayload{
		ConversationID: conversationID,
		MessageID:      messageID,
	}), nil)
	t.metrics.ReadReceipt()
	return true
}
