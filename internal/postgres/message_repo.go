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
	insertMessageQuery = `
		INSERT INTO messages (conversation_id, author_id, body)
		VALUES ($1, $2, $3)
		RETURNING id::text, conversation_id::text, author_id, body, is_read, created_at`

	// Reads the target row and flips the flag in one statement. The author
	// can never mark their own message. The flip re-checks the live row so a
	// concurrent mark that committed first leaves flipped empty.
	markReadQuery = `
		WITH target AS (
			SELECT id, author_id, is_read
			FROM messages
			WHERE id = $1 AND conversation_id = $2
		), flipped AS (
			UPDATE messages m
			SET is_read = TRUE
			FROM target t
			WHERE m.id = t.id AND t.author_id <> $3 AND NOT m.is_read
			RETURNING m.id
		)
		SELECT t.author_id, t.is_read, EXISTS (SELECT 1 FROM flipped)
		FROM target t`

	historyQuery = `
		SELECT id::text, conversation_id::text, author_id, body, is_read, created_at
		FROM messages
		WHERE conversation_id = $1
		  AND (
		    $2::timestamptz IS NULL
		    OR created_at > $2
		    OR (created_at = $2 AND id > $3::uuid)
		  )
		ORDER BY created_at ASC, id ASC
		LIMIT $4`
)

type MessageRepository struct {
	db querier
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Append(ctx context.Context, m domain.NewMessage) (*domain.Message, error) {
	if _, err := uuid.Parse(m.ConversationID); err != nil {
		return nil, domain.ErrConversationNotFound
	}

	var msg domain.Message
	err := r.db.QueryRow(ctx, insertMessageQuery, m.ConversationID, m.AuthorID, m.Body).
		Scan(&msg.ID, &msg.ConversationID, &msg.AuthorID, &msg.Body, &msg.IsRead, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", mapPgError(err))
	}
	return &msg, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, conversationID, messageID, readerID string) (domain.ReadResult, error) {
	if _, err := uuid.Parse(messageID); err != nil {
		return 0, domain.ErrMessageNotFound
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return 0, domain.ErrMessageNotFound
	}

	var (
		authorID string
		wasRead  bool
		flipped  bool
	)
	err := r.db.QueryRow(ctx, markReadQuery, messageID, conversationID, readerID).Scan(&authorID, &wasRead, &flipped)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrMessageNotFound
		}
		return 0, fmt.Errorf("mark read: %w", mapPgError(err))
	}

	switch {
	case authorID == readerID:
		return domain.ReadOwnMessage, nil
	case wasRead || !flipped:
		return domain.ReadAlreadyRead, nil
	}
	return domain.ReadMarked, nil
}

// History returns up to limit messages after the cursor, oldest first. The
// next cursor is empty once the page came back short.
func (r *MessageRepository) History(ctx context.Context, conversationID, after string, limit int) ([]domain.Message, string, error) {
	if _, err := uuid.Parse(conversationID); err != nil {
		return nil, "", domain.ErrConversationNotFound
	}
	cur, err := DecodeCursor(after, conversationID)
	if err != nil {
		return nil, "", err
	}

	var createdAt, id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.MessageID
	}

	rows, err := r.db.Query(ctx, historyQuery, conversationID, createdAt, id, limit)
	if err != nil {
		return nil, "", fmt.Errorf("query history: %w", mapPgError(err))
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.AuthorID, &m.Body, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, "", err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", mapPgError(err)
	}

	var next string
	if len(out) == limit && limit > 0 {
		last := out[len(out)-1]
		if c, e := EncodeCursor(NewCursor(last)); e == nil {
			next = c
		}
	}
	return out, next, nil
}
