package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	repo := NewMemoryStore(time.Hour)
	now := time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	t.Run("SetAndGetCheckout", func(t *testing.T) {
		intent := &models.CheckoutIntent{ReservationID: 1, SessionID: "cs_1", ExpiresAt: now.Add(time.Minute)}
		require.NoError(t, repo.SetCheckout(ctx, intent))

		got, err := repo.GetCheckout(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, intent, got)
	})

	t.Run("ExpiredCheckout", func(t *testing.T) {
		require.NoError(t, repo.SetCheckout(ctx, &models.CheckoutIntent{ReservationID: 2, ExpiresAt: now}))
		got, err := repo.GetCheckout(ctx, 2)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("DefaultTTL", func(t *testing.T) {
		require.NoError(t, repo.SetCheckout(ctx, &models.CheckoutIntent{ReservationID: 3}))
		got, _ := repo.GetCheckout(ctx, 3)
		assert.NotNil(t, got)
	})

	t.Run("ClearCheckout", func(t *testing.T) {
		require.NoError(t, repo.ClearCheckout(ctx, 1))
		got, _ := repo.GetCheckout(ctx, 1)
		assert.Nil(t, got)
	})

	t.Run("RateLimit", func(t *testing.T) {
		allowed, _ := repo.CheckRateLimit(ctx, "u:456", 2, time.Second)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, "u:456", 2, time.Second)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, "u:456", 2, time.Second)
		assert.False(t, allowed)

		// other keys have their own window
		allowed, _ = repo.CheckRateLimit(ctx, "u:457", 2, time.Second)
		assert.True(t, allowed)

		now = now.Add(time.Second + time.Millisecond)
		allowed, _ = repo.CheckRateLimit(ctx, "u:456", 2, time.Second)
		assert.True(t, allowed)
	})
}

func TestMemoryStore_ConcurrentRateLimit(t *testing.T) {
	repo := NewMemoryStore(time.Hour)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := repo.CheckRateLimit(ctx, "burst", 10, time.Minute)
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}
