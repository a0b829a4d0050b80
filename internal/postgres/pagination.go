package postgres

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
)

// cursorVersion changes whenever the history ordering changes; older
// cursors are then rejected instead of silently skipping messages.
const cursorVersion = 1

// ErrInvalidCursor is a client error: the cursor did not come from us or
// belongs to another conversation.
var ErrInvalidCursor = fmt.Errorf("%w: invalid cursor", domain.ErrValidation)

// Cursor is the position after the last message of a history page. It is
// bound to the conversation it was issued for.
type Cursor struct {
	Version        int       `json:"v"`
	ConversationID string    `json:"c"`
	CreatedAt      time.Time `json:"t"`
	MessageID      string    `json:"m"`
}

func NewCursor(last domain.Message) Cursor {
	return Cursor{
		Version:        cursorVersion,
		ConversationID: last.ConversationID,
		CreatedAt:      last.CreatedAt.UTC(),
		MessageID:      last.ID,
	}
}

func EncodeCursor(c Cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeCursor returns nil for an empty string, meaning the first page.
func DecodeCursor(s, conversationID string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	switch {
	case c.Version != cursorVersion:
		return nil, fmt.Errorf("%w: version %d", ErrInvalidCursor, c.Version)
	case c.ConversationID != conversationID:
		return nil, fmt.Errorf("%w: issued for another conversation", ErrInvalidCursor)
	case c.MessageID == "" || c.CreatedAt.IsZero():
		return nil, fmt.Errorf("%w: empty position", ErrInvalidCursor)
	}
	return &c, nil
}
