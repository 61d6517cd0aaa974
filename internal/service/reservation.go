package service

import (
	"context"
	"time"

	"github.com/shahin-grc/serialcode/internal/api/dto"
	"github.com/shahin-grc/serialcode/internal/cache"
	"github.com/shahin-grc/serialcode/internal/domain/reservation"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/types"
)

// ReservationService implements the two phase reserve and confirm protocol.
// Every transition compares against the clock, the sweeper only tidies up.
type ReservationService interface {
	Reserve(ctx context.Context, req *dto.ReserveSerialCodeRequest) (*dto.ReservationResponse, error)
	Confirm(ctx context.Context, id string, req *dto.ConfirmReservationRequest) (*dto.SerialCodeResponse, error)
	Cancel(ctx context.Context, id string) (*dto.ReservationResponse, error)
	GetReservation(ctx context.Context, id string) (*dto.ReservationResponse, error)

	// ExpireStaleReservations expires at most batchSize lapsed pending
	// reservations and returns how many it moved
	ExpireStaleReservations(ctx context.Context, batchSize int) (int, error)
}

type reservationService struct {
	ServiceParams
	allocator SequenceAllocator
}

func NewReservationService(params ServiceParams) ReservationService {
	return &reservationService{
		ServiceParams: params,
		allocator:     NewSequenceAllocator(params),
	}
}

func (s *reservationService) Reserve(ctx context.Context, req *dto.ReserveSerialCodeRequest) (*dto.ReservationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cfg := s.settings()
	ttl, err := req.TTL(cfg.DefaultReservationTTL, cfg.MaxReservationTTL)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	info, key, err := req.SequenceKey(now)
	if err != nil {
		return nil, err
	}

	// the sequence is consumed here, not at confirmation
	seq, err := s.allocator.IssueNext(ctx, key)
	if err != nil {
		return nil, err
	}

	code, err := serialcode.Format(key, seq)
	if err != nil {
		return nil, err
	}

	rsv := &reservation.Reservation{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_RESERVATION),
		SequenceKey: key,
		Sequence:    seq,
		Code:        code,
		EntityType:  info.EntityType,
		Status:      types.ReservationStatusPending,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
		CreatedBy:   types.GetActor(ctx, req.CreatedBy),
	}

	if err := s.ReservationRepo.Create(ctx, rsv); err != nil {
		s.Logger.Errorw("failed to persist reservation",
			"code", code,
			"sequence", seq,
			"error", err)
		return nil, err
	}

	s.Logger.Infow("reserved serial code",
		"reservation_id", rsv.ID,
		"code", code,
		"expires_at", rsv.ExpiresAt)

	s.publishLifecycleEvent(ctx, types.SerialCodeActionReserved, code, key.TenantCode, &rsv.ID, rsv.CreatedBy, now, types.Metadata{
		"entity_type": rsv.EntityType,
		"expires_at":  rsv.ExpiresAt.Format(time.RFC3339),
	})

	return dto.ToReservationResponse(rsv, now), nil
}

func (s *reservationService) Confirm(ctx context.Context, id string, req *dto.ConfirmReservationRequest) (*dto.SerialCodeResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rsv, err := s.getReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	if err := s.checkResolvable(ctx, rsv, now); err != nil {
		return nil, err
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = types.Metadata{}
	}
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = types.GetUserID(ctx)
	}
	if createdBy == "" {
		createdBy = rsv.CreatedBy
	}

	record := &serialcode.Record{
		Code:          rsv.Code,
		SequenceKey:   rsv.SequenceKey,
		Sequence:      rsv.Sequence,
		EntityType:    rsv.EntityType,
		EntityID:      req.EntityID,
		Status:        types.SerialCodeStatusActive,
		VersionNumber: 1,
		ReservationID: &rsv.ID,
		Metadata:      metadata,
		CreatedAt:     now,
		CreatedBy:     types.GetActor(ctx, createdBy),
		UpdatedAt:     now,
	}

	resolved := true
	err = s.DB.WithTx(ctx, func(txCtx context.Context) error {
		ok, err := s.ReservationRepo.Resolve(txCtx, id, types.ReservationStatusConfirmed, &req.EntityID, now)
		if err != nil {
			return err
		}
		if !ok {
			resolved = false
			return nil
		}
		return s.SerialCodeRepo.Create(txCtx, record)
	})
	if err != nil {
		s.Logger.Errorw("failed to confirm reservation",
			"reservation_id", id,
			"code", rsv.Code,
			"error", err)
		return nil, err
	}
	if !resolved {
		return nil, s.classifyLostTransition(ctx, id, now)
	}

	rsv.Status = types.ReservationStatusConfirmed
	rsv.EntityID = &req.EntityID
	rsv.ResolvedAt = &now
	s.cacheResolved(ctx, rsv)

	s.Logger.Infow("confirmed reservation",
		"reservation_id", id,
		"code", rsv.Code,
		"entity_id", req.EntityID)

	s.publishLifecycleEvent(ctx, types.SerialCodeActionConfirmed, rsv.Code, rsv.TenantCode, &rsv.ID, record.CreatedBy, now, types.Metadata{
		"entity_type": record.EntityType,
		"entity_id":   record.EntityID,
	})

	return dto.ToSerialCodeResponse(record), nil
}

func (s *reservationService) Cancel(ctx context.Context, id string) (*dto.ReservationResponse, error) {
	rsv, err := s.getReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	if err := s.checkResolvable(ctx, rsv, now); err != nil {
		return nil, err
	}

	ok, err := s.ReservationRepo.Resolve(ctx, id, types.ReservationStatusCancelled, nil, now)
	if err != nil {
		s.Logger.Errorw("failed to cancel reservation", "reservation_id", id, "error", err)
		return nil, err
	}
	if !ok {
		return nil, s.classifyLostTransition(ctx, id, now)
	}

	// the sequence is not released: the cancelled code is never issued again
	rsv.Status = types.ReservationStatusCancelled
	rsv.ResolvedAt = &now
	s.cacheResolved(ctx, rsv)

	s.Logger.Infow("cancelled reservation", "reservation_id", id, "code", rsv.Code)

	s.publishLifecycleEvent(ctx, types.SerialCodeActionCancelled, rsv.Code, rsv.TenantCode, &rsv.ID, types.GetActor(ctx, ""), now, nil)

	return dto.ToReservationResponse(rsv, now), nil
}

// GetReservation applies lazy expiry: a lapsed pending reservation is
// persisted as expired on read
func (s *reservationService) GetReservation(ctx context.Context, id string) (*dto.ReservationResponse, error) {
	rsv, err := s.getReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	if rsv.HasLapsed(now) {
		s.expire(ctx, rsv, now)
	}
	return dto.ToReservationResponse(rsv, now), nil
}

func (s *reservationService) ExpireStaleReservations(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = s.settings().SweepBatchSize
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	now := s.Clock.Now()
	lapsed, err := s.ReservationRepo.ListLapsed(ctx, now, batchSize)
	if err != nil {
		s.Logger.Errorw("failed to list lapsed reservations", "error", err)
		return 0, err
	}

	expired := 0
	for _, rsv := range lapsed {
		if s.expire(ctx, rsv, now) {
			expired++
		}
	}

	if expired > 0 {
		s.Logger.Infow("expired stale reservations", "count", expired, "scanned", len(lapsed))
	}
	return expired, nil
}

// getReservation serves resolved reservations from the cache. Pending ones
// always come from the store since they can still change.
func (s *reservationService) getReservation(ctx context.Context, id string) (*reservation.Reservation, error) {
	if id == "" {
		return nil, ierr.NewError("reservation id is required").
			WithHint("Reservation ID is required").
			Mark(ierr.ErrValidation)
	}

	if rsv, found := cache.GetTyped[*reservation.Reservation](ctx, s.Cache, cache.ReservationKey(id)); found {
		cp := *rsv
		return &cp, nil
	}

	rsv, err := withReadRetry(ctx, s.settings(), s.Logger, "get_reservation", func(ctx context.Context) (*reservation.Reservation, error) {
		return s.ReservationRepo.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	if rsv.Status.IsTerminal() {
		s.cacheResolved(ctx, rsv)
	}
	return rsv, nil
}

// checkResolvable returns the terminal state error for rsv at now. A lapsed
// pending reservation is expired on the way.
func (s *reservationService) checkResolvable(ctx context.Context, rsv *reservation.Reservation, now time.Time) error {
	err := rsv.CheckResolvable(now)
	if err != nil && rsv.HasLapsed(now) {
		s.expire(ctx, rsv, now)
	}
	return err
}

// classifyLostTransition explains why a conditional transition matched no
// row: another caller resolved the reservation first or it lapsed meanwhile
func (s *reservationService) classifyLostTransition(ctx context.Context, id string, now time.Time) error {
	current, err := withReadRetry(ctx, s.settings(), s.Logger, "get_reservation", func(ctx context.Context) (*reservation.Reservation, error) {
		return s.ReservationRepo.Get(ctx, id)
	})
	if err != nil {
		return err
	}

	if err := s.checkResolvable(ctx, current, now); err != nil {
		return err
	}
	return ierr.NewError("reservation already resolved").
		WithHintf("Reservation %s was resolved concurrently", id).
		WithReportableDetails(map[string]any{"reservation_id": id}).
		Mark(ierr.ErrReservationAlreadyResolved)
}

// expire persists the expired state. It reports whether this call made the
// transition. Failures are logged since the read path already reports the
// effective status.
func (s *reservationService) expire(ctx context.Context, rsv *reservation.Reservation, now time.Time) bool {
	ok, err := s.ReservationRepo.Resolve(ctx, rsv.ID, types.ReservationStatusExpired, nil, now)
	if err != nil {
		s.Logger.Warnw("failed to expire reservation",
			"reservation_id", rsv.ID,
			"code", rsv.Code,
			"error", err)
		return false
	}
	if !ok {
		return false
	}

	rsv.Status = types.ReservationStatusExpired
	rsv.ResolvedAt = &now
	s.cacheResolved(ctx, rsv)

	s.Logger.Debugw("expired reservation", "reservation_id", rsv.ID, "code", rsv.Code)

	s.publishLifecycleEvent(ctx, types.SerialCodeActionExpired, rsv.Code, rsv.TenantCode, &rsv.ID, types.SystemActor, now, types.Metadata{
		"expires_at": rsv.ExpiresAt.Format(time.RFC3339),
	})
	return true
}

func (s *reservationService) cacheResolved(ctx context.Context, rsv *reservation.Reservation) {
	if s.Cache == nil || !rsv.Status.IsTerminal() {
		return
	}
	cp := *rsv
	s.Cache.Set(ctx, cache.ReservationKey(rsv.ID), &cp, s.settings().ReservationCacheTTL)
}
