package service

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/realtime"
)

// Reconciler pairs a sender's provisional id with the durable message that
// replaced it. The pairing is broadcast to the whole room so the sender's
// tabs can swap the provisional entry in place while other members simply
// append. Recent pairings are remembered so a re-submitted provisional id
// never produces a second durable message.
type Reconciler struct {
	recent *lru.Cache[string, domain.Message]
}

func NewReconciler(size int) (*Reconciler, error) {
	if size <= 0 {
		size = 4096
	}
	c, err := lru.New[string, domain.Message](size)
	if err != nil {
		return nil, fmt.Errorf("reconciler cache: %w", err)
	}
	return &Reconciler{recent: c}, nil
}

func reconcileKey(conversationID, senderID, provisionalID string) string {
	return conversationID + "\x00" + senderID + "\x00" + provisionalID
}

// Lookup returns the durable message already confirmed for a provisional id.
func (r *Reconciler) Lookup(conversationID, senderID, provisionalID string) (domain.Message, bool) {
	return r.recent.Get(reconcileKey(conversationID, senderID, provisionalID))
}

// Confirm records the pairing and builds the message-confirmed event.
func (r *Reconciler) Confirm(senderID, provisionalID string, msg domain.Message) realtime.Event {
	r.recent.Add(reconcileKey(msg.ConversationID, senderID, provisionalID), msg)
	return ConfirmedEvent(provisionalID, msg)
}

func ConfirmedEvent(provisionalID string, msg domain.Message) realtime.Event {
	return realtime.MustEvent(realtime.TypeMessageConfirmed, realtime.MessageConfirmedPayload{
		ProvisionalID: provisionalID,
		Message:       msg,
	})
}

func FailedEvent(provisionalID, reason string) realtime.Event {
	return realtime.MustEvent(realtime.TypeMessageFailed, realtime.MessageFailedPayload{
		ProvisionalID: provisionalID,
		Reason:        reason,
	})
}
