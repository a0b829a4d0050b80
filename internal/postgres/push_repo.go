package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
)

const (
	getSubscriptionQuery = `
		SELECT user_id, endpoint::text, enabled, updated_at
		FROM push_subscriptions
		WHERE user_id = $1`

	// A new device replaces the previous endpoint and re-enables delivery.
	upsertSubscriptionQuery = `
		INSERT INTO push_subscriptions (user_id, endpoint, enabled, updated_at)
		VALUES ($1, $2::jsonb, TRUE, now())
		ON CONFLICT (user_id) DO UPDATE
		SET endpoint = EXCLUDED.endpoint, enabled = TRUE, updated_at = now()
		RETURNING user_id, endpoint::text, enabled, updated_at`

	setEnabledQuery = `
		UPDATE push_subscriptions
		SET enabled = $2, updated_at = now()
		WHERE user_id = $1
		RETURNING user_id, endpoint::text, enabled, updated_at`
)

type PushSubscriptionRepository struct {
	db querier
}

func NewPushSubscriptionRepository(db *pgxpool.Pool) *PushSubscriptionRepository {
	return &PushSubscriptionRepository{db: db}
}

func (r *PushSubscriptionRepository) Get(ctx context.Context, userID string) (*domain.PushSubscription, error) {
	return r.one(ctx, getSubscriptionQuery, userID)
}

func (r *PushSubscriptionRepository) Upsert(ctx context.Context, userID string, endpoint json.RawMessage) (*domain.PushSubscription, error) {
	return r.one(ctx, upsertSubscriptionQuery, userID, string(endpoint))
}

// SetEnabled flips the flag and leaves the endpoint untouched.
func (r *PushSubscriptionRepository) SetEnabled(ctx context.Context, userID string, enabled bool) (*domain.PushSubscription, error) {
	return r.one(ctx, setEnabledQuery, userID, enabled)
}

func (r *PushSubscriptionRepository) one(ctx context.Context, sql string, args ...any) (*domain.PushSubscription, error) {
	var (
		s        domain.PushSubscription
		endpoint string
	)
	err := r.db.QueryRow(ctx, sql, args...).Scan(&s.UserID, &endpoint, &s.Enabled, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("push subscription: %w", mapPgError(err))
	}
	s.Endpoint = json.RawMessage(endpoint)
	return &s, nil
}
