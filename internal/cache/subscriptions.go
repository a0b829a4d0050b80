package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
)

// SubscriptionStore is the durable side, normally the postgres repository.
type SubscriptionStore interface {
	Get(ctx context.Context, userID string) (*domain.PushSubscription, error)
	Upsert(ctx context.Context, userID string, endpoint json.RawMessage) (*domain.PushSubscription, error)
	SetEnabled(ctx context.Context, userID string, enabled bool) (*domain.PushSubscription, error)
}

type SubscriptionCache interface {
	Key(userID string) string
	Get(ctx context.Context, key string) (*domain.PushSubscription, error)
	Set(ctx context.Context, key string, sub *domain.PushSubscription, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Subscriptions is a read-through cache in front of a SubscriptionStore.
// Writes go to the store first and then evict the key. Cache failures are
// logged and fall back to the store.
type Subscriptions struct {
	store SubscriptionStore
	cache SubscriptionCache
	ttl   time.Duration
	log   *slog.Logger
}

func NewSubscriptions(store SubscriptionStore, cache SubscriptionCache, ttl time.Duration, log *slog.Logger) *Subscriptions {
	return &Subscriptions{store: store, cache: cache, ttl: ttl, log: log}
}

func (s *Subscriptions) Get(ctx context.Context, userID string) (*domain.PushSubscription, error) {
	key := s.cache.Key(userID)

	sub, err := s.cache.Get(ctx, key)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.log.WarnContext(ctx, "subscription cache read failed", "user", userID, "err", err)
	}

	sub, err = s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, sub, s.ttl); err != nil {
		s.log.WarnContext(ctx, "subscription cache write failed", "user", userID, "err", err)
	}
	return sub, nil
}

func (s *Subscriptions) Upsert(ctx context.Context, userID string, endpoint json.RawMessage) (*domain.PushSubscription, error) {
	sub, err := s.store.Upsert(ctx, userID, endpoint)
	if err != nil {
		return nil, err
	}
	s.evict(ctx, userID)
	return sub, nil
}

func (s *Subscriptions) SetEnabled(ctx context.Context, userID string, enabled bool) (*domain.PushSubscription, error) {
	sub, err := s.store.SetEnabled(ctx, userID, enabled)
	if err != nil {
		return nil, err
	}
	s.evict(ctx, userID)
	return sub, nil
}

func (s *Subscriptions) evict(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, s.cache.Key(userID)); err != nil {
		s.log.WarnContext(ctx, "subscription cache evict failed", "user", userID, "err", err)
	}
}
