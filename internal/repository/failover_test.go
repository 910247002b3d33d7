package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"courtbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetCheckout(ctx context.Context, reservationID int64) (*models.CheckoutIntent, error) {
	args := m.Called(ctx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckoutIntent), args.Error(1)
}

func (m *mockStore) SetCheckout(ctx context.Context, intent *models.CheckoutIntent) error {
	args := m.Called(ctx, intent)
	return args.Error(0)
}

func (m *mockStore) ClearCheckout(ctx context.Context, reservationID int64) error {
	args := m.Called(ctx, reservationID)
	return args.Error(0)
}

func (m *mockStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverStore(t *testing.T) {
	primary := new(mockStore)
	fallback := new(mockStore)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverStore(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		intent := &models.CheckoutIntent{ReservationID: 1}
		primary.On("GetCheckout", ctx, int64(1)).Return(intent, nil).Once()

		got, err := repo.GetCheckout(ctx, 1)
		assert.NoError(t, err)
		assert.Equal(t, intent, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		intent := &models.CheckoutIntent{ReservationID: 2}
		primary.On("GetCheckout", ctx, int64(2)).Return(nil, errors.New("fail")).Once()
		fallback.On("GetCheckout", ctx, int64(2)).Return(intent, nil).Once()

		got, err := repo.GetCheckout(ctx, 2)
		assert.NoError(t, err)
		assert.Equal(t, intent, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("DownSkipsPrimary", func(t *testing.T) {
		fallback.On("CheckRateLimit", ctx, "k:66", 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "k:66", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		fallback.AssertExpectations(t)
		primary.AssertNotCalled(t, "CheckRateLimit", ctx, "k:66", 10, time.Minute)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		intent := &models.CheckoutIntent{ReservationID: 3}
		primary.On("GetCheckout", ctx, int64(3)).Return(intent, nil).Once()

		got, err := repo.GetCheckout(ctx, 3)
		assert.NoError(t, err)
		assert.Equal(t, intent, got)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		primary.On("GetCheckout", ctx, int64(33)).Return(nil, errors.New("still fail")).Once()
		fallback.On("GetCheckout", ctx, int64(33)).Return(nil, nil).Once()

		_, err := repo.GetCheckout(ctx, 33)
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetCheckoutFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		intent := &models.CheckoutIntent{ReservationID: 4}
		primary.On("SetCheckout", ctx, intent).Return(errors.New("fail")).Once()
		fallback.On("SetCheckout", ctx, intent).Return(nil).Once()

		assert.NoError(t, repo.SetCheckout(ctx, intent))
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("ClearCheckoutClearsBoth", func(t *testing.T) {
		repo.isDown.Store(false)
		fallback.On("ClearCheckout", ctx, int64(5)).Return(nil).Once()
		primary.On("ClearCheckout", ctx, int64(5)).Return(nil).Once()

		assert.NoError(t, repo.ClearCheckout(ctx, 5))
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("CheckRateLimitFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("CheckRateLimit", ctx, "k:6", 10, time.Minute).Return(false, errors.New("fail")).Once()
		fallback.On("CheckRateLimit", ctx, "k:6", 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "k:6", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}
