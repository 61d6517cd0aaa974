package reservation

import (
	"testing"
	"time"

	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestReservation_CheckResolvable(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	expires := created.Add(5 * time.Second)

	tests := []struct {
		name    string
		status  types.ReservationStatus
		now     time.Time
		wantErr error
		want    types.ReservationStatus
	}{
		{name: "pending before deadline", status: types.ReservationStatusPending, now: created.Add(time.Second), want: types.ReservationStatusPending},
		{name: "pending at deadline", status: types.ReservationStatusPending, now: expires, wantErr: ierr.ErrReservationExpired, want: types.ReservationStatusExpired},
		{name: "pending after deadline", status: types.ReservationStatusPending, now: created.Add(6 * time.Second), wantErr: ierr.ErrReservationExpired, want: types.ReservationStatusExpired},
		{name: "stored expired", status: types.ReservationStatusExpired, now: created, wantErr: ierr.ErrReservationExpired, want: types.ReservationStatusExpired},
		{name: "confirmed", status: types.ReservationStatusConfirmed, now: created, wantErr: ierr.ErrReservationAlreadyResolved, want: types.ReservationStatusConfirmed},
		{name: "cancelled after deadline", status: types.ReservationStatusCancelled, now: created.Add(time.Hour), wantErr: ierr.ErrReservationAlreadyResolved, want: types.ReservationStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Reservation{
				ID:        "rsv_1",
				Code:      "INC-ACME-1-2025-000042",
				Status:    tt.status,
				CreatedAt: created,
				ExpiresAt: expires,
			}
			assert.Equal(t, tt.want, r.EffectiveStatus(tt.now))
			err := r.CheckResolvable(tt.now)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				assert.True(t, r.IsPending(tt.now))
				return
			}
			assert.True(t, ierr.Is(err, tt.wantErr))
			assert.False(t, r.IsPending(tt.now))
		})
	}
}
