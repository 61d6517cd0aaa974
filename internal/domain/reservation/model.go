package reservation

import (
	"time"

	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/types"
)

// Reservation holds an issued sequence for a bounded time before it is bound
// to an entity. It is only mutable while pending.
type Reservation struct {
	ID string `json:"reservation_id"`
	serialcode.SequenceKey
	Sequence   int                     `json:"sequence"`
	Code       string                  `json:"code"`
	EntityType string                  `json:"entity_type"`
	EntityID   *string                 `json:"entity_id,omitempty"`
	Status     types.ReservationStatus `json:"status"`
	ExpiresAt  time.Time               `json:"expires_at"`
	CreatedAt  time.Time               `json:"created_at"`
	CreatedBy  string                  `json:"created_by"`
	ResolvedAt *time.Time              `json:"resolved_at,omitempty"`
}

// IsPending reports whether the reservation is still pending at now
func (r *Reservation) IsPending(now time.Time) bool {
	return r.Status == types.ReservationStatusPending && now.Before(r.ExpiresAt)
}

// HasLapsed reports a stored pending reservation whose deadline has passed
func (r *Reservation) HasLapsed(now time.Time) bool {
	return r.Status == types.ReservationStatusPending && !now.Before(r.ExpiresAt)
}

// EffectiveStatus returns the status as observed at now, applying expiry
func (r *Reservation) EffectiveStatus(now time.Time) types.ReservationStatus {
	if r.HasLapsed(now) {
		return types.ReservationStatusExpired
	}
	return r.Status
}

// CheckResolvable returns the error for a confirm or cancel attempt at now,
// or nil if the reservation may transition.
func (r *Reservation) CheckResolvable(now time.Time) error {
	switch r.EffectiveStatus(now) {
	case types.ReservationStatusPending:
		return nil
	case types.ReservationStatusExpired:
		return ierr.NewError("reservation expired").
			WithHintf("Reservation %s expired at %s", r.ID, r.ExpiresAt.Format(time.RFC3339)).
			WithReportableDetails(map[string]any{
				"reservation_id": r.ID,
				"code":           r.Code,
				"expires_at":     r.ExpiresAt,
			}).
			Mark(ierr.ErrReservationExpired)
	default:
		return ierr.NewError("reservation already resolved").
			WithHintf("Reservation %s is already %s", r.ID, r.Status).
			WithReportableDetails(map[string]any{
				"reservation_id": r.ID,
				"code":           r.Code,
				"status":         r.Status,
			}).
			Mark(ierr.ErrReservationAlreadyResolved)
	}
}
