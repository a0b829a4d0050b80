package service

import (
	"context"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
)

// MessageStore is the gateway to durable message storage.
type MessageStore interface {
	// Append persists a message and returns it with its durable id and
	// server created_at.
	Append(ctx context.Context, m domain.NewMessage) (*domain.Message, error)
	// MarkRead flips the read flag unless the reader authored the message.
	// It returns domain.ErrMessageNotFound when messageID does not belong to
	// conversationID.
	MarkRead(ctx context.Context, conversationID, messageID, readerID string) (domain.ReadResult, error)
	// History lists messages ascending by created_at, paginated by cursor.
	History(ctx context.Context, conversationID, after string, limit int) ([]domain.Message, string, error)
}

// ConversationDirectory resolves who may take part in a conversation.
type ConversationDirectory interface {
	Participants(ctx context.Context, conversationID string) (domain.Participants, error)
}

// ConversationRepository adds lazy creation of report conversations.
type ConversationRepository interface {
	ConversationDirectory
	ReportParticipants(ctx context.Context, reportID string) (domain.Participants, error)
	ResolveForReport(ctx context.Context, reportID string) (*domain.Conversation, error)
}

// PushDispatcher delivers best-effort notifications; it never reports errors.
type PushDispatcher interface {
	Dispatch(ctx context.Context, userID, title, body, clickURL string)
}
