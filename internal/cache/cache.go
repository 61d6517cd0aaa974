package cache

import (
	"context"
	"time"
)

// Cache holds values that no longer change, such as resolved reservations.
// Pending state must never be cached.
type Cache interface {
	// Get returns the value and whether the key was present and unexpired
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores value under key. A zero expiration uses the cache default.
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration)

	Delete(ctx context.Context, key string)

	Flush(ctx context.Context)
}

// Versioned key namespaces. Bump the version when the cached shape changes.
const (
	PrefixReservation = "reservation:v1"
)

// ReservationKey is the key of a resolved reservation
func ReservationKey(id string) string {
	return PrefixReservation + ":" + id
}

// GetTyped returns the cached value only when it has type T, so a stale
// entry of another shape reads as a miss.
func GetTyped[T any](ctx context.Context, c Cache, key string) (T, bool) {
	var zero T
	if c == nil {
		return zero, false
	}

	v, found := c.Get(ctx, key)
	if !found {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}
