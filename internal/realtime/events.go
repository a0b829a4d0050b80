package realtime

import (
	"encoding/json"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
)

// Client -> server
const (
	TypeJoinRoom    = "join-room"
	TypeLeaveRoom   = "leave-room"
	TypeSendMessage = "send-message"
	TypeMarkRead    = "mark-read"
	TypeTyping      = "typing"
	TypeStopTyping  = "stop-typing"
)

// Server -> client
const (
	TypeRoomJoined       = "room-joined"
	TypeMessageConfirmed = "message-confirmed"
	TypeMessageFailed    = "message-failed"
	TypeMessageRead      = "message-read"
	TypeUserTyping       = "user-typing"
	TypeUserStopTyping   = "user-stop-typing"
	TypeError            = "error"
)

// Reasons carried by message-failed.
const (
	ReasonStorageUnavailable = "storage_unavailable"
	ReasonValidationFailed   = "validation_failed"
	ReasonRateLimited        = "rate_limited"
	ReasonTimeout            = "timeout" // client watchdog only
)

// Codes carried by error events.
const (
	CodeBadRequest     = "bad_request"
	CodeNotParticipant = "not_participant"
	CodeNotFound       = "not_found"
	CodeInternal       = "internal"
)

// Event is the envelope of every frame in both directions.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals payload into an envelope.
func NewEvent(typ string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Payload: data}, nil
}

// MustEvent is NewEvent for payload types that always marshal.
func MustEvent(typ string, payload any) Event {
	ev, err := NewEvent(typ, payload)
	if err != nil {
		panic(err)
	}
	return ev
}

func (e Event) Decode(dst any) error {
	return json.Unmarshal(e.Payload, dst)
}

type RoomPayload struct {
	ConversationID string `json:"conversationId"`
}

type SendMessagePayload struct {
	ProvisionalID  string `json:"provisionalId"`
	ConversationID string `json:"conversationId"`
	Body           string `json:"body"`
}

type MarkReadPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type MessageConfirmedPayload struct {
	ProvisionalID string         `json:"provisionalId"`
	Message       domain.Message `json:"message"`
}

type MessageFailedPayload struct {
	ProvisionalID string `json:"provisionalId"`
	Reason        string `json:"reason"`
}

type MessageReadPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
