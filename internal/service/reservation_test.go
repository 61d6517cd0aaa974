package service

import (
	"net/http"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shahin-grc/serialcode/internal/api/dto"
	"github.com/shahin-grc/serialcode/internal/cache"
	"github.com/shahin-grc/serialcode/internal/domain/reservation"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/testutil"
	"github.com/shahin-grc/serialcode/internal/types"
	"github.com/stretchr/testify/suite"
)

type ReservationServiceSuite struct {
	testutil.BaseServiceTestSuite
	service     ReservationService
	serialCodes SerialCodeService
	sweeper     *ReservationSweeper
}

func TestReservationService(t *testing.T) {
	suite.Run(t, new(ReservationServiceSuite))
}

func (s *ReservationServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.setupService()
}

func (s *ReservationServiceSuite) setupService() {
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	s.service = NewReservationService(params)
	s.serialCodes = NewSerialCodeService(params)
	s.sweeper = NewReservationSweeper(params, s.service)
}

func reserveIncident(ttlSeconds *int) *dto.ReserveSerialCodeRequest {
	return &dto.ReserveSerialCodeRequest{
		EntityType: "incident",
		TenantCode: "acme",
		Stage:      lo.ToPtr(1),
		TTLSeconds: ttlSeconds,
	}
}

func (s *ReservationServiceSuite) TestReserveAndConfirm() {
	rsv, err := s.service.Reserve(s.GetContext(), reserveIncident(nil))
	s.Require().NoError(err)

	s.Equal("INC-ACME-1-2025-000001", rsv.Code)
	s.Equal(types.ReservationStatusPending, rsv.Status)
	s.Equal(s.GetNow().Add(s.GetConfig().SerialCode.DefaultReservationTTL), rsv.ExpiresAt)
	s.Equal("incident", rsv.EntityType)
	s.Contains(rsv.ID, types.UUID_PREFIX_RESERVATION)

	// the counter moves at reservation time
	s.Equal(1, s.GetStores().CounterRepo.LastIssued(incAcmeKey))

	s.GetClock().Advance(time.Minute)
	record, err := s.service.Confirm(s.GetContext(), rsv.ID, &dto.ConfirmReservationRequest{
		EntityID: "inc-100",
		Metadata: types.Metadata{"severity": "high"},
	})
	s.Require().NoError(err)

	s.Equal(rsv.Code, record.Code)
	s.Equal(types.SerialCodeStatusActive, record.Status)
	s.Equal("inc-100", record.EntityID)
	s.Equal(rsv.ID, lo.FromPtr(record.ReservationID))
	s.Equal("high", record.Metadata["severity"])

	stored, err := s.serialCodes.GetByCode(s.GetContext(), rsv.Code)
	s.Require().NoError(err)
	s.Equal("inc-100", stored.EntityID)

	got, err := s.service.GetReservation(s.GetContext(), rsv.ID)
	s.Require().NoError(err)
	s.Equal(types.ReservationStatusConfirmed, got.Status)
	s.Equal("inc-100", lo.FromPtr(got.EntityID))
	s.Equal(s.GetNow(), lo.FromPtr(got.ResolvedAt))

	s.Equal([]types.SerialCodeAction{
		types.SerialCodeActionReserved,
		types.SerialCodeActionConfirmed,
	}, s.GetPublisher().EventsFor(rsv.Code))
}

func (s *ReservationServiceSuite) TestConfirmTwiceFails() {
	rsv, err := s.service.Reserve(s.GetContext(), reserveIncident(nil))
	s.Require().NoError(err)

	_, err = s.service.Confirm(s.GetContext(), rsv.ID, &dto.ConfirmReservationRequest{EntityID: "a"})
	s.Require().NoError(err)

	_, err = s.service.Confirm(s.GetContext(), rsv.ID, &dto.ConfirmReservationRequest{EntityID: "b"})
	s.True(ierr.Is(err, ierr.ErrReservationAlreadyResolved))
	s.Equal(http.StatusConflict, ierr.HTTPStatusFromErr(err))

	record, err := s.serialCodes.GetByCode(s.GetContext(), rsv.Code)
	s.Require().NoError(err)
	s.Equal("a", record.EntityID)
}

func (s *ReservationServiceSuite) TestConfirmAfterExpiryFails() {
	s.GetStores().CounterRepo.Seed(incAcmeKey, 41)

	rsv, err := s.service.Reserve(s.GetContext(), reserveIncident(lo.ToPtr(5)))
	s.Require().NoError(err)
	s.Equal("INC-ACME-1-2025-000042", rsv.Code)
	s.Equal(s.GetNow().Add(5*time.Second), rsv.ExpiresAt)

	s.GetClock().Advance(6 * time.Second)

	_, err = s.service.Confirm(s.GetContext(), rsv.ID, &dto.ConfirmReservationRequest{EntityID: "inc-42"})
	s.Require().Error(err)
	s.True(ierr.Is(err, ierr.ErrReservationExpired))
	s.Equal(http.StatusGone, ierr.HTTPStatusFromErr(err))

	exists, err := s.serialCodes.Exists(s.GetContext(), "INC-ACME-1-2025-000042")
	s.NoError(err)
	s.False(exists)

	// the failed confirm persisted the expiry
	stored, err := s.GetStores().ReservationRepo.Get(s.GetContext(), rsv.ID)
	s.Require().NoError(err)
	s.Equal(types.ReservationStatusExpired, stored.Status)

	// 42 is burnt for good
	next, err := s.serialCodes.GetNextSequence(s.GetContext(), &dto.NextSequenceRequest{
		Prefix:     "INC",
		TenantCode: "ACME",
		Stage:      lo.ToPtr(1),
	})
	s.Require().NoError(err)
	s.Equal(43, next.NextSequence)
	s.Equal("INC-ACME-1-2025-000043", next.PreviewCode)
}

func (s *ReservationServiceSuite) TestConfirmAtDeadlineFails() {
	rsv, err := s.service.Reserve(s.GetContext(), reserveIncident(lo.ToPtr(5)))
	s.Require().NoError(err)

	s.GetClock().Advance(5 * time.Second)

	_, err = s.service.Confirm(s.GetContext(), rsv.ID, &dto.ConfirmReservationRequest{EntityID: "x"})
	s.True(ierr.Is(err, ierr.ErrReservationExpired))
}

func (s *ReservationServiceSuite) TestCancel() {
	rsv, err := s.service.Reserve(s.GetContext(), reserveIncident(nil))
	s.Require().NoError(err)

	cancelled, err := s.service.Cancel(s.GetContext(), rsv.ID)
	s.Require().NoError(err)
	s.Equal(types.ReservationStatusCancelled, cancelled.Status)

	_, err = s.service.Confirm(s.GetContext(), rsv.ID, &dto.ConfirmReservationRequest{EntityID: "x"})
	s.True(ierr.Is(err, ierr.ErrReservationAlreadyResolved))

	_, err = s.service.Cancel(s.GetContext(), rsv.ID)
	s.True(ierr.Is(err, ierr.ErrReservationAlreadyResolved))

	// a cancelled sequence is never handed out again
	again, err := s.service.Reserve(s.GetContext(), reserveIncident(nil))
	s.Require().NoError(err)
	s.Equal(2, again.Sequence)

	s.Equal([]types.SerialCodeAction{
		types.SerialCodeActionReserved,
		types.SerialCodeActionCancelled,
	}, s.GetPublisher().EventsFor(rsv.Code))
}

func (s *ReservationServiceSuite) TestCancelAfterExpiryFails() {
	rsv, err := s.service.Reserve(s.GetContext(), reserveIncident(lo.ToPtr(1)))
	s.Require().NoError(err)

	s.GetClock().Advance(time.Minute)

	_, err = s.service.Cancel(s.GetContext(), rsv.ID)
	s.True(ierr.Is(err, ierr.ErrReservationExpired))
}

func (s *ReservationServiceSuite) TestGetReservationAppliesLazyExpiry() {
	rsv, err := s.service.Reserve(s.GetContext(), reserveIncident(lo.ToPtr(30)))
	s.Require().NoError(err)

	pending, err := s.service.GetReservation(s.GetContext(), rsv.ID)
	s.Require().NoError(err)
	s.Equal(types.ReservationStatusPending, pending.Status)

	s.GetClock().Advance(time.Minute)

	expired, err := s.service.GetReservation(s.GetContext(), rsv.ID)
	s.Require().NoError(err)
	s.Equal(types.ReservationStatusExpired, expired.Status)

	stored, err := s.GetStores().ReservationRepo.Get(s.GetContext(), rsv.ID)
	s.Require().NoError(err)
	s.Equal(types.ReservationStatusExpired, stored.Status)

	cached, found := cache.GetTyped[*reservation.Reservation](s.GetContext(), s.GetCache(), cache.ReservationKey(rsv.ID))
	s.Require().True(found)
	s.Equal(types.ReservationStatusExpired, cached.Status)

	s.Equal([]types.SerialCodeAction{
		types.SerialCodeActionReserved,
		types.SerialCodeActionExpired,
	}, s.GetPublisher().EventsFor(rsv.Code))
}

func (s *ReservationServiceSuite) TestReserveValidation() {
	tests := []struct {
		name string
		req  *dto.ReserveSerialCodeRequest
	}{
		{"ttl above maximum", reserveIncident(lo.ToPtr(int((25 * time.Hour).Seconds())))},
		{"zero ttl", reserveIncident(lo.ToPtr(0))},
		{"missing tenant", &dto.ReserveSerialCodeRequest{EntityType: "incident"}},
		{"missing entity type", &dto.ReserveSerialCodeRequest{TenantCode: "ACME"}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.Reserve(s.GetContext(), tt.req)
			s.True(ierr.IsValidation(err), "expected validation error, got %v", err)
		})
	}

	s.Zero(s.GetStores().CounterRepo.LastIssued(incAcmeKey))
}

func (s *ReservationServiceSuite) TestUnknownReservation() {
	_, err := s.service.GetReservation(s.GetContext(), "rsv_missing")
	s.True(ierr.Is(err, ierr.ErrReservationNotFound))
	s.Equal(http.StatusNotFound, ierr.HTTPStatusFromErr(err))

	_, err = s.service.Confirm(s.GetContext(), "rsv_missing", &dto.ConfirmReservationRequest{EntityID: "x"})
	s.True(ierr.Is(err, ierr.ErrReservationNotFound))

	_, err = s.service.Cancel(s.GetContext(), "")
	s.True(ierr.IsValidation(err))
}

func (s *ReservationServiceSuite) TestSequencesStayMonotonicAcrossOutcomes() {
	cancelled, err := s.service.Reserve(s.GetContext(), reserveIncident(nil))
	s.Require().NoError(err)
	_, err = s.service.Cancel(s.GetContext(), cancelled.ID)
	s.Require().NoError(err)

	lapsed, err := s.service.Reserve(s.GetContext(), reserveIncident(lo.ToPtr(1)))
	s.Require().NoError(err)
	s.GetClock().Advance(2 * time.Second)

	generated, err := s.serialCodes.Generate(s.GetContext(), generateIncident("inc-1"))
	s.Require().NoError(err)

	s.Equal(1, cancelled.Sequence)
	s.Equal(2, lapsed.Sequence)
	s.Equal(3, generated.Sequence)
}

func (s *ReservationServiceSuite) TestExpireStaleReservations() {
	var short []string
	for i := 0; i < 3; i++ {
		rsv, err := s.service.Reserve(s.GetContext(), reserveIncident(lo.ToPtr(10)))
		s.Require().NoError(err)
		short = append(short, rsv.ID)
	}
	long, err := s.service.Reserve(s.GetContext(), reserveIncident(nil))
	s.Require().NoError(err)

	s.GetClock().Advance(30 * time.Second)

	expired, err := s.service.ExpireStaleReservations(s.GetContext(), 2)
	s.Require().NoError(err)
	s.Equal(2, expired)

	expired, err = s.service.ExpireStaleReservations(s.GetContext(), 10)
	s.Require().NoError(err)
	s.Equal(1, expired)

	expired, err = s.service.ExpireStaleReservations(s.GetContext(), 10)
	s.Require().NoError(err)
	s.Zero(expired)

	for _, id := range short {
		stored, err := s.GetStores().ReservationRepo.Get(s.GetContext(), id)
		s.Require().NoError(err)
		s.Equal(types.ReservationStatusExpired, stored.Status)
	}

	pending, err := s.GetStores().ReservationRepo.Get(s.GetContext(), long.ID)
	s.Require().NoError(err)
	s.Equal(types.ReservationStatusPending, pending.Status)

	// the untouched reservation can still be confirmed
	_, err = s.service.Confirm(s.GetContext(), long.ID, &dto.ConfirmReservationRequest{EntityID: "late"})
	s.NoError(err)
}

func (s *ReservationServiceSuite) TestSweepOnce() {
	for i := 0; i < 2; i++ {
		_, err := s.service.Reserve(s.GetContext(), reserveIncident(lo.ToPtr(5)))
		s.Require().NoError(err)
	}

	swept, err := s.sweeper.SweepOnce(s.GetContext())
	s.Require().NoError(err)
	s.Zero(swept)

	s.GetClock().Advance(time.Minute)

	swept, err = s.sweeper.SweepOnce(s.GetContext())
	s.Require().NoError(err)
	s.Equal(2, swept)

	expiredEvents := lo.Filter(s.GetPublisher().Events(), func(e *serialcode.LifecycleEvent, _ int) bool {
		return e.Action == types.SerialCodeActionExpired
	})
	s.Len(expiredEvents, 2)
	for _, e := range expiredEvents {
		s.Equal(types.SystemActor, e.Actor)
	}
}

func (s *ReservationServiceSuite) TestSweeperStartStop() {
	s.Require().NoError(s.sweeper.Start(s.GetContext()))
	s.True(ierr.IsInvalidOperation(s.sweeper.Start(s.GetContext())))
	s.Require().NoError(s.sweeper.Stop(s.GetContext()))
	s.NoError(s.sweeper.Stop(s.GetContext()))
}
