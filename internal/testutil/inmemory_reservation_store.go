package testutil

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/shahin-grc/serialcode/internal/domain/reservation"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/types"
)

// InMemoryReservationStore implements reservation.Repository
type InMemoryReservationStore struct {
	*InMemoryStore[*reservation.Reservation]
}

func NewInMemoryReservationStore() *InMemoryReservationStore {
	return &InMemoryReservationStore{
		InMemoryStore: NewInMemoryStore[*reservation.Reservation](),
	}
}

func copyReservation(r *reservation.Reservation) *reservation.Reservation {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

func reservationNotFound(id string) error {
	return ierr.NewError("reservation not found").
		WithHintf("Reservation %s was not found", id).
		WithReportableDetails(map[string]any{"reservation_id": id}).
		Mark(ierr.ErrReservationNotFound)
}

func (s *InMemoryReservationStore) Create(ctx context.Context, rsv *reservation.Reservation) error {
	if rsv == nil {
		return ierr.NewError("reservation cannot be nil").Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, rsv.ID, copyReservation(rsv))
}

func (s *InMemoryReservationStore) Get(ctx context.Context, id string) (*reservation.Reservation, error) {
	rsv, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, reservationNotFound(id)
	}
	return copyReservation(rsv), nil
}

func (s *InMemoryReservationStore) GetByCode(ctx context.Context, code string) (*reservation.Reservation, error) {
	matches, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, r *reservation.Reservation, _ interface{}) bool {
		return r.Code == code
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ierr.NewError("reservation not found").
			WithReportableDetails(map[string]any{"code": code}).
			Mark(ierr.ErrReservationNotFound)
	}
	return copyReservation(matches[0]), nil
}

func (s *InMemoryReservationStore) Resolve(ctx context.Context, id string, status types.ReservationStatus, entityID *string, now time.Time) (bool, error) {
	resolved := false
	err := s.InMemoryStore.Mutate(ctx, id, func(r *reservation.Reservation) (*reservation.Reservation, error) {
		if r.Status != types.ReservationStatusPending {
			return r, nil
		}
		lapsed := !now.Before(r.ExpiresAt)
		if (status == types.ReservationStatusExpired) != lapsed {
			return r, nil
		}

		cp := copyReservation(r)
		cp.Status = status
		cp.ResolvedAt = lo.ToPtr(now)
		if entityID != nil {
			cp.EntityID = lo.ToPtr(*entityID)
		}
		resolved = true
		return cp, nil
	})
	if err != nil {
		if ierr.IsNotFound(err) {
			return false, reservationNotFound(id)
		}
		return false, err
	}
	return resolved, nil
}

func (s *InMemoryReservationStore) ListLapsed(ctx context.Context, now time.Time, limit int) ([]*reservation.Reservation, error) {
	lapsed, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, r *reservation.Reservation, _ interface{}) bool {
		return r.HasLapsed(now)
	}, func(i, j *reservation.Reservation) bool {
		return i.ExpiresAt.Before(j.ExpiresAt)
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(lapsed) > limit {
		lapsed = lapsed[:limit]
	}
	return lo.Map(lapsed, func(r *reservation.Reservation, _ int) *reservation.Reservation { return copyReservation(r) }), nil
}
