package reservation

import (
	"context"
	"time"

	"github.com/shahin-grc/serialcode/internal/types"
)

// Repository defines the interface for reservation data access
type Repository interface {
	Create(ctx context.Context, reservation *Reservation) error

	// Get returns ErrReservationNotFound when the id is unknown
	Get(ctx context.Context, id string) (*Reservation, error)

	// GetByCode returns the reservation that issued code
	GetByCode(ctx context.Context, code string) (*Reservation, error)

	// Resolve moves a pending reservation to status. Confirmed and cancelled
	// require expires_at > now, expired requires expires_at <= now. Returns
	// false when no pending row matched.
	Resolve(ctx context.Context, id string, status types.ReservationStatus, entityID *string, now time.Time) (bool, error)

	// ListLapsed returns pending reservations with expires_at <= now
	ListLapsed(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)
}
