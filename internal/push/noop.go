package push

import (
	"context"
	"log/slog"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
)

// NoopProvider accepts everything and sends nothing.
type NoopProvider struct {
	log *slog.Logger
}

func NewNoopProvider(log *slog.Logger) *NoopProvider {
	return &NoopProvider{log: log}
}

func (p *NoopProvider) Send(ctx context.Context, sub *domain.PushSubscription, payload domain.PushPayload) error {
	p.log.DebugContext(ctx, "push dropped by noop provider", "user", sub.UserID, "title", payload.Title)
	return nil
}
