package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// ConversationService backs the REST surface: lazy resolution of a report's
// conversation and paginated history for the chat view.
type ConversationService struct {
	repo  ConversationRepository
	store MessageStore
	log   *slog.Logger
}

func NewConversationService(repo ConversationRepository, store MessageStore, log *slog.Logger) *ConversationService {
	return &ConversationService{repo: repo, store: store, log: log}
}

// Resolve returns the conversation bound to reportID, creating it on first
// use. Only the report's citizen or assigned admin may resolve it.
func (s *ConversationService) Resolve(ctx context.Context, reportID, userID string) (*domain.Conversation, error) {
	parts, err := s.repo.ReportParticipants(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !parts.Has(userID) {
		return nil, domain.ErrNotParticipant
	}

	conv, err := s.repo.ResolveForReport(ctx, reportID)
	if err != nil {
		s.log.ErrorContext(ctx, "resolve conversation failed", "report", reportID, "err", err)
		return nil, err
	}
	return conv, nil
}

// History returns one page of messages, oldest first, and the cursor for
// the next page ("" when exhausted).
func (s *ConversationService) History(ctx context.Context, conversationID, userID, after string, limit int) ([]domain.Message, string, error) {
	parts, err := s.repo.Participants(ctx, conversationID)
	if err != nil {
		return nil, "", err
	}
	if !parts.Has(userID) {
		return nil, "", domain.ErrNotParticipant
	}

	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	msgs, next, err := s.store.History(ctx, conversationID, after, limit)
	if err != nil {
		if !errors.Is(err, domain.ErrValidation) {
			s.log.ErrorContext(ctx, "load history failed", "conversation", conversationID, "err", err)
		}
		return nil, "", err
	}
	return msgs, next, nil
}
