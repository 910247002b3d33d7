package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a client from configuration without connecting.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// NewRedisStore uses ttl for intents that carry no expiry of their own.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

func checkoutKey(reservationID int64) string {
	return fmt.Sprintf("checkout:%d", reservationID)
}

func (r *RedisStore) GetCheckout(ctx context.Context, reservationID int64) (*models.CheckoutIntent, error) {
	if r.client == nil {
		return nil, errors.New("redis client is nil")
	}
	val, err := r.client.Get(ctx, checkoutKey(reservationID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout from redis: %w", err)
	}

	var intent models.CheckoutIntent
	if err := json.Unmarshal([]byte(val), &intent); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkout: %w", err)
	}
	return &intent, nil
}

func (r *RedisStore) SetCheckout(ctx context.Context, intent *models.CheckoutIntent) error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	ttl := r.ttl
	if !intent.ExpiresAt.IsZero() {
		ttl = time.Until(intent.ExpiresAt)
	}
	if ttl <= 0 {
		return r.ClearCheckout(ctx, intent.ReservationID)
	}

	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to marshal checkout: %w", err)
	}
	if err := r.client.Set(ctx, checkoutKey(intent.ReservationID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set checkout in redis: %w", err)
	}
	return nil
}

func (r *RedisStore) ClearCheckout(ctx context.Context, reservationID int64) error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	if err := r.client.Del(ctx, checkoutKey(reservationID)).Err(); err != nil {
		return fmt.Errorf("failed to delete checkout from redis: %w", err)
	}
	return nil
}

// CheckRateLimit is a fixed-window counter keyed by key.
func (r *RedisStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errors.New("redis client is nil")
	}
	redisKey := "rate_limit:" + key
	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count <= int64(limit), nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
