// Package repository holds short-lived state: cached checkout intents and
// rate-limit counters. Redis is primary, memory is the fallback.
package repository

import "courtbook/internal/domain"

// Store is the combined short-lived state surface.
type Store interface {
	domain.CheckoutCache
	domain.RateLimiter
}
