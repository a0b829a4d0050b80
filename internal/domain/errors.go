package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation wraps every error a client caused by sending something
	// the core refuses to persist or broadcast.
	ErrValidation = errors.New("validation failed")

	ErrEmptyBody            = fmt.Errorf("%w: empty message body", ErrValidation)
	ErrBodyTooLong          = fmt.Errorf("%w: message body too long", ErrValidation)
	ErrInvalidBody          = fmt.Errorf("%w: message body is not valid text", ErrValidation)
	ErrMissingProvisionalID = fmt.Errorf("%w: missing provisional id", ErrValidation)
	ErrNotParticipant       = fmt.Errorf("%w: user is not a participant of the conversation", ErrValidation)
	ErrConversationClosed   = fmt.Errorf("%w: conversation is closed", ErrValidation)
	ErrNotJoined            = fmt.Errorf("%w: connection has not joined the room", ErrValidation)

	ErrConversationNotFound = errors.New("conversation not found")
	ErrReportNotFound       = errors.New("report not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrSubscriptionNotFound = errors.New("push subscription not found")

	// ErrStorageUnavailable is returned when the message store could not
	// persist or read. The send path reports it to the sender only.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrStaleSignal marks signals for rooms the connection never joined or
	// for messages outside the conversation. They are dropped, never fatal.
	ErrStaleSignal = errors.New("stale signal")
)
