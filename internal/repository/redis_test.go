package repository

import (
	"context"
	"testing"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()

	repo := NewRedisStore(client, time.Hour)
	ctx := context.Background()

	t.Run("SetAndGetCheckout", func(t *testing.T) {
		intent := &models.CheckoutIntent{
			ReservationID: 12,
			UserID:        3,
			RedirectURL:   "https://pay.example.com/cs_1",
			SessionID:     "cs_1",
			ExpiresAt:     time.Now().Add(30 * time.Minute).UTC().Truncate(time.Second),
		}
		require.NoError(t, repo.SetCheckout(ctx, intent))

		got, err := repo.GetCheckout(ctx, 12)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, intent.SessionID, got.SessionID)
		assert.True(t, intent.ExpiresAt.Equal(got.ExpiresAt))

		ttl := s.TTL(checkoutKey(12))
		assert.True(t, ttl > 29*time.Minute && ttl <= 30*time.Minute, "ttl %s", ttl)
	})

	t.Run("CheckoutExpires", func(t *testing.T) {
		require.NoError(t, repo.SetCheckout(ctx, &models.CheckoutIntent{
			ReservationID: 13,
			SessionID:     "cs_2",
			ExpiresAt:     time.Now().Add(time.Minute),
		}))
		s.FastForward(2 * time.Minute)

		got, err := repo.GetCheckout(ctx, 13)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ExpiredIntentIsNotStored", func(t *testing.T) {
		require.NoError(t, repo.SetCheckout(ctx, &models.CheckoutIntent{
			ReservationID: 14,
			ExpiresAt:     time.Now().Add(-time.Minute),
		}))
		assert.False(t, s.Exists(checkoutKey(14)))
	})

	t.Run("GetMissingCheckout", func(t *testing.T) {
		got, err := repo.GetCheckout(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ClearCheckout", func(t *testing.T) {
		require.NoError(t, repo.SetCheckout(ctx, &models.CheckoutIntent{ReservationID: 15, SessionID: "cs_3"}))
		require.NoError(t, repo.ClearCheckout(ctx, 15))

		got, _ := repo.GetCheckout(ctx, 15)
		assert.Nil(t, got)
	})

	t.Run("RateLimit", func(t *testing.T) {
		key := "bookings:789"
		limit := 2
		window := time.Second

		allowed, err := repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(window + time.Millisecond)

		allowed, err = repo.CheckRateLimit(ctx, key, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisStore(nil, time.Hour)
		_, err := repo.GetCheckout(ctx, 123)
		assert.ErrorContains(t, err, "redis client is nil")
		_, err = repo.CheckRateLimit(ctx, "k", 1, time.Second)
		assert.Error(t, err)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})

	t.Run("PingDown", func(t *testing.T) {
		down := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
		defer down.Close()
		assert.Error(t, Ping(ctx, down))
	})

	t.Run("Close", func(t *testing.T) {
		assert.NoError(t, Close(nil))
	})
}
