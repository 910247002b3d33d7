package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"courtbook/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStore serves from primary until a call fails, then from fallback.
// The primary is retried at most once per recoveryInterval.
type FailoverStore struct {
	primary   Store
	fallback  Store
	logger    *zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverStore(primary, fallback Store, logger *zerolog.Logger) *FailoverStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStore) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("primary state store failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

// usePrimary reports whether the next call should try the primary.
func (r *FailoverStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) > recoveryInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverStore) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("primary state store recovered")
	}
}

func (r *FailoverStore) GetCheckout(ctx context.Context, reservationID int64) (*models.CheckoutIntent, error) {
	if r.usePrimary() {
		intent, err := r.primary.GetCheckout(ctx, reservationID)
		if err == nil {
			r.recovered()
			return intent, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetCheckout(ctx, reservationID)
}

func (r *FailoverStore) SetCheckout(ctx context.Context, intent *models.CheckoutIntent) error {
	if r.usePrimary() {
		err := r.primary.SetCheckout(ctx, intent)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetCheckout(ctx, intent)
}

func (r *FailoverStore) ClearCheckout(ctx context.Context, reservationID int64) error {
	// clear both so a stale fallback entry can't outlive a recovery
	_ = r.fallback.ClearCheckout(ctx, reservationID)
	if r.usePrimary() {
		err := r.primary.ClearCheckout(ctx, reservationID)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return nil
}

func (r *FailoverStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.recovered()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
