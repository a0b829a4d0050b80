// Package chatclient is the client half of the chat protocol: an explicit
// reducer for the optimistic message log, typing debounce and display
// timers, a send watchdog and a websocket client tying them together.
package chatclient

import (
	"sort"
	"time"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/realtime"
)

type State int

const (
	StatePending State = iota
	StateConfirmed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Entry is one bubble. ID is the provisional id until the message is
// confirmed, then the durable id.
type Entry struct {
	ID        string
	AuthorID  string
	Body      string
	CreatedAt time.Time
	IsRead    bool
	State     State
	Reason    string
}

// Timeline folds local sends and server events into one ordered log. It is
// not safe for concurrent use; Client guards it.
type Timeline struct {
	entries []Entry
}

func NewTimeline() *Timeline {
	return &Timeline{}
}

func (t *Timeline) indexOf(id string) int {
	for i := range t.entries {
		if t.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// LocalSent appends a pending bubble keyed by the provisional id.
func (t *Timeline) LocalSent(provisionalID, authorID, body string, at time.Time) {
	if t.indexOf(provisionalID) >= 0 {
		return
	}
	t.entries = append(t.entries, Entry{
		ID:        provisionalID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: at,
		State:     StatePending,
	})
}

// Confirmed swaps the provisional entry for the durable message in place.
// Without a local entry the message is appended once. Order is never
// recomputed here. A confirm also upgrades an entry the watchdog already
// failed.
func (t *Timeline) Confirmed(provisionalID string, msg domain.Message) {
	if i := t.indexOf(provisionalID); i >= 0 && provisionalID != "" {
		if j := t.indexOf(msg.ID); j >= 0 && j != i {
			// durable copy already arrived via history; drop the duplicate
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
		t.entries[i] = fromMessage(msg)
		return
	}
	if t.indexOf(msg.ID) >= 0 {
		return
	}
	t.entries = append(t.entries, fromMessage(msg))
}

// Failed marks a pending entry failed. Confirmed entries stay confirmed.
func (t *Timeline) Failed(provisionalID, reason string) {
	i := t.indexOf(provisionalID)
	if i < 0 || t.entries[i].State != StatePending {
		return
	}
	t.entries[i].State = StateFailed
	t.entries[i].Reason = reason
}

func (t *Timeline) TimedOut(provisionalID string) {
	t.Failed(provisionalID, realtime.ReasonTimeout)
}

func (t *Timeline) Read(messageID string) {
	if i := t.indexOf(messageID); i >= 0 {
		t.entries[i].IsRead = true
	}
}

// HistoryLoaded merges a fetched batch. It is the only input that sorts:
// durable entries ascending by created_at, then local entries that are
// still pending or failed, in their existing order.
func (t *Timeline) HistoryLoaded(msgs []domain.Message) {
	durable := make(map[string]Entry, len(t.entries)+len(msgs))
	var local []Entry
	for _, e := range t.entries {
		if e.State == StateConfirmed {
			durable[e.ID] = e
		} else {
			local = append(local, e)
		}
	}
	for _, m := range msgs {
		e := fromMessage(m)
		if prev, ok := durable[m.ID]; ok && prev.IsRead {
			e.IsRead = true
		}
		durable[m.ID] = e
	}

	out := make([]Entry, 0, len(durable)+len(local))
	for _, e := range durable {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	t.entries = append(out, local...)
}

// Entries returns a copy of the log.
func (t *Timeline) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Timeline) Get(id string) (Entry, bool) {
	if i := t.indexOf(id); i >= 0 {
		return t.entries[i], true
	}
	return Entry{}, false
}

func fromMessage(m domain.Message) Entry {
	return Entry{
		ID:        m.ID,
		AuthorID:  m.AuthorID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
		IsRead:    m.IsRead,
		State:     StateConfirmed,
	}
}
