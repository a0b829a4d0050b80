package http

import (
	"time"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessagesResponse struct {
	Messages []domain.Message `json:"messages"`
	Next     string           `json:"next,omitempty"`
}

type ConversationResponse struct {
	ID        string    `json:"id"`
	ReportID  string    `json:"reportId"`
	CreatedAt time.Time `json:"createdAt"`
}

type ToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// SubscriptionResponse omits the endpoint keys.
type SubscriptionResponse struct {
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func subscriptionResponse(s *domain.PushSubscription) SubscriptionResponse {
	return SubscriptionResponse{Enabled: s.Enabled, UpdatedAt: s.UpdatedAt}
}
