package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
)

const (
	conversationParticipantsQuery = `
		SELECT c.id::text, r.id, r.user_id, COALESCE(r.admin_id, ''), r.status <> 'closed'
		FROM conversations c
		JOIN reports r ON r.id = c.report_id
		WHERE c.id = $1`

	reportParticipantsQuery = `
		SELECT COALESCE(c.id::text, ''), r.id, r.user_id, COALESCE(r.admin_id, ''), r.status <> 'closed'
		FROM reports r
		LEFT JOIN conversations c ON c.report_id = r.id
		WHERE r.id = $1`

	// The no-op update makes RETURNING yield the existing row on conflict.
	resolveConversationQuery = `
		INSERT INTO conversations (report_id)
		VALUES ($1)
		ON CONFLICT (report_id) DO UPDATE SET report_id = EXCLUDED.report_id
		RETURNING id::text, report_id, created_at`
)

// ConversationRepository derives participants from the reports table owned
// by the report service.
type ConversationRepository struct {
	db querier
}

func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) Participants(ctx context.Context, conversationID string) (domain.Participants, error) {
	if _, err := uuid.Parse(conversationID); err != nil {
		return domain.Participants{}, domain.ErrConversationNotFound
	}
	p, err := r.scanParticipants(ctx, conversationParticipantsQuery, conversationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, domain.ErrConversationNotFound
	}
	return p, err
}

// ReportParticipants works before the conversation exists; ConversationID is
// empty in that case.
func (r *ConversationRepository) ReportParticipants(ctx context.Context, reportID string) (domain.Participants, error) {
	p, err := r.scanParticipants(ctx, reportParticipantsQuery, reportID)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, domain.ErrReportNotFound
	}
	return p, err
}

func (r *ConversationRepository) scanParticipants(ctx context.Context, sql, arg string) (domain.Participants, error) {
	var p domain.Participants
	err := r.db.QueryRow(ctx, sql, arg).Scan(&p.ConversationID, &p.ReportID, &p.CitizenID, &p.AdminID, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Participants{}, err
		}
		return domain.Participants{}, fmt.Errorf("load participants: %w", mapPgError(err))
	}
	return p, nil
}

// ResolveForReport returns the report's conversation, creating it on first
// call. Concurrent callers get the same row.
func (r *ConversationRepository) ResolveForReport(ctx context.Context, reportID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := r.db.QueryRow(ctx, resolveConversationQuery, reportID).Scan(&c.ID, &c.ReportID, &c.CreatedAt)
	if err != nil {
		fk := mapPgError(err)
		if errors.Is(fk, domain.ErrConversationNotFound) {
			return nil, domain.ErrReportNotFound
		}
		return nil, fmt.Errorf("resolve conversation: %w", fk)
	}
	return &c, nil
}
