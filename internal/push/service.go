// Package push delivers best-effort notifications to participants who are
// not connected to a conversation.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/metrics"
)

// ErrEndpointGone is returned by a Provider when the push service reports
// the endpoint as expired. The subscription is then disabled.
var ErrEndpointGone = errors.New("push endpoint gone")

var ErrInvalidEndpoint = fmt.Errorf("%w: push endpoint must be a JSON object", domain.ErrValidation)

type Provider interface {
	Send(ctx context.Context, sub *domain.PushSubscription, payload domain.PushPayload) error
}

type SubscriptionStore interface {
	Get(ctx context.Context, userID string) (*domain.PushSubscription, error)
	Upsert(ctx context.Context, userID string, endpoint json.RawMessage) (*domain.PushSubscription, error)
	SetEnabled(ctx context.Context, userID string, enabled bool) (*domain.PushSubscription, error)
}

type Config struct {
	Icon    string
	Timeout time.Duration
}

type Service struct {
	subs     SubscriptionStore
	provider Provider
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
}

func NewService(subs SubscriptionStore, provider Provider, cfg Config, log *slog.Logger, m *metrics.Metrics) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Service{subs: subs, provider: provider, cfg: cfg, log: log, metrics: m}
}

// Dispatch sends one notification to userID. A missing or disabled
// subscription means no provider call at all. Failures are logged and
// never returned.
func (s *Service) Dispatch(ctx context.Context, userID, title, body, clickURL string) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	sub, err := s.subs.Get(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrSubscriptionNotFound):
		s.metrics.Push(metrics.PushSkipped)
		s.log.DebugContext(ctx, "push skipped: no subscription", "user", userID)
		return
	case err != nil:
		s.metrics.Push(metrics.PushFailed)
		s.log.WarnContext(ctx, "push skipped: subscription lookup failed", "user", userID, "err", err)
		return
	case !sub.Enabled:
		s.metrics.Push(metrics.PushDisabled)
		s.log.DebugContext(ctx, "push skipped: disabled", "user", userID)
		return
	}

	if clickURL == "" {
		clickURL = "/"
	}
	payload := domain.PushPayload{
		Title:    title,
		Body:     body,
		Icon:     s.cfg.Icon,
		ClickURL: clickURL,
	}

	if err := s.provider.Send(ctx, sub, payload); err != nil {
		s.metrics.Push(metrics.PushFailed)
		s.log.WarnContext(ctx, "push delivery failed", "user", userID, "err", err)
		if errors.Is(err, ErrEndpointGone) {
			if _, err := s.subs.SetEnabled(ctx, userID, false); err != nil {
				s.log.WarnContext(ctx, "disable expired subscription failed", "user", userID, "err", err)
			}
		}
		return
	}
	s.metrics.Push(metrics.PushSent)
	s.log.DebugContext(ctx, "push sent", "user", userID)
}

// Subscribe stores the endpoint for userID, replacing any previous device.
func (s *Service) Subscribe(ctx context.Context, userID string, endpoint json.RawMessage) (*domain.PushSubscription, error) {
	trimmed := bytes.TrimSpace(endpoint)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, ErrInvalidEndpoint
	}
	sub, err := s.subs.Upsert(ctx, userID, json.RawMessage(trimmed))
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "push subscription stored", "user", userID)
	return sub, nil
}

// Toggle flips delivery on or off and keeps the endpoint.
func (s *Service) Toggle(ctx context.Context, userID string, enabled bool) (*domain.PushSubscription, error) {
	sub, err := s.subs.SetEnabled(ctx, userID, enabled)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "push subscription toggled", "user", userID, "enabled", enabled)
	return sub, nil
}

func (s *Service) Get(ctx context.Context, userID string) (*domain.PushSubscription, error) {
	return s.subs.Get(ctx, userID)
}
