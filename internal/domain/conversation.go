package domain

import "time"

// Conversation is bound 1:1 to a report. It is created lazily and never
// deleted; it only turns inactive once the report is closed.
type Conversation struct {
	ID        string    `db:"id"`
	ReportID  string    `db:"report_id"`
	CreatedAt time.Time `db:"created_at"`
}

// Participants of a two-party conversation, derived from the report: the
// citizen who filed it and the admin assigned to it (if any).
type Participants struct {
	ConversationID string
	ReportID       string
	CitizenID      string
	AdminID        string
	Active         bool
}

func (p Participants) Has(userID string) bool {
	if userID == "" {
		return false
	}
	return userID == p.CitizenID || userID == p.AdminID
}

// Others returns every participant except userID.
func (p Participants) Others(userID string) []string {
	out := make([]string, 0, 2)
	for _, id := range []string{p.CitizenID, p.AdminID} {
		if id != "" && id != userID {
			out = append(out, id)
		}
	}
	return out
}
