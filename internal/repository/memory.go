package repository

import (
	"context"
	"sync"
	"time"

	"courtbook/internal/models"
)

type MemoryStore struct {
	checkouts  sync.Map
	mu         sync.Mutex
	rateLimits map[string]*rateLimitEntry
	ttl        time.Duration
	now        func() time.Time
}

type checkoutEntry struct {
	intent    models.CheckoutIntent
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		rateLimits: make(map[string]*rateLimitEntry),
		ttl:        ttl,
		now:        time.Now,
	}
}

func (r *MemoryStore) GetCheckout(_ context.Context, reservationID int64) (*models.CheckoutIntent, error) {
	val, ok := r.checkouts.Load(reservationID)
	if !ok {
		return nil, nil
	}
	entry := val.(*checkoutEntry)
	if !r.now().Before(entry.expiresAt) {
		r.checkouts.CompareAndDelete(reservationID, val)
		return nil, nil
	}
	intent := entry.intent
	return &intent, nil
}

func (r *MemoryStore) SetCheckout(_ context.Context, intent *models.CheckoutIntent) error {
	expiresAt := intent.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = r.now().Add(r.ttl)
	}
	r.checkouts.Store(intent.ReservationID, &checkoutEntry{intent: *intent, expiresAt: expiresAt})
	return nil
}

func (r *MemoryStore) ClearCheckout(_ context.Context, reservationID int64) error {
	r.checkouts.Delete(reservationID)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryStore) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
