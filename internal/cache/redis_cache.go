package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MelvinVerLia/SiLaporRT-sub001/config"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// RedisSubscriptionCache stores push subscriptions as JSON under
// "<prefix>:sub:<userID>".
type RedisSubscriptionCache struct {
	client *redis.Client
	prefix string
}

func NewRedisSubscriptionCache(cfg config.Redis) (*RedisSubscriptionCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisSubscriptionCache{client: client, prefix: cfg.Prefix}, nil
}

func (c *RedisSubscriptionCache) Key(userID string) string {
	return fmt.Sprintf("%s:sub:%s", c.prefix, userID)
}

func (c *RedisSubscriptionCache) Get(ctx context.Context, key string) (*domain.PushSubscription, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var sub domain.PushSubscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return &sub, nil
}

func (c *RedisSubscriptionCache) Set(ctx context.Context, key string, sub *domain.PushSubscription, ttl time.Duration) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisSubscriptionCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

func (c *RedisSubscriptionCache) Close() error {
	return c.client.Close()
}
