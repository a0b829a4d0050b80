package domain

import "time"

type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversationId"`
	AuthorID       string    `db:"author_id" json:"authorId"`
	Body           string    `db:"body" json:"body"`
	IsRead         bool      `db:"is_read" json:"isRead"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// NewMessage is what the coordinator hands to storage; the durable id and
// created_at are assigned there.
type NewMessage struct {
	ConversationID string
	AuthorID       string
	Body           string
}

// ReadResult tells the receipt tracker what a mark-read did to the row.
type ReadResult int

const (
	ReadMarked      ReadResult = iota // flag flipped false -> true
	ReadAlreadyRead                   // flag was already true, nothing changed
	ReadOwnMessage                    // reader is the author
)
