package domain

import (
	"encoding/json"
	"time"
)

// PushSubscription is owned by the user; the core only reads and writes the
// enabled flag and the endpoint descriptor, which stays opaque here.
type PushSubscription struct {
	UserID    string          `json:"userId"`
	Endpoint  json.RawMessage `json:"endpoint"`
	Enabled   bool            `json:"enabled"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// PushPayload is what the browser agent receives.
type PushPayload struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Icon     string `json:"icon,omitempty"`
	ClickURL string `json:"clickUrl"`
}
