package service

import (
	"context"
	"sort"

	"github.com/samber/lo"
	"github.com/shahin-grc/serialcode/internal/api/dto"
	"github.com/shahin-grc/serialcode/internal/domain/reservation"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
)

// TraceabilityService builds the audit artifact proving the full history of a code
type TraceabilityService interface {
	GetTraceabilityReport(ctx context.Context, code string) (*dto.TraceabilityReport, error)
}

type traceabilityService struct {
	ServiceParams
}

func NewTraceabilityService(params ServiceParams) TraceabilityService {
	return &traceabilityService{
		ServiceParams: params,
	}
}

func (s *traceabilityService) GetTraceabilityReport(ctx context.Context, code string) (*dto.TraceabilityReport, error) {
	if _, _, err := serialcode.Parse(code); err != nil {
		return nil, err
	}

	record, err := withReadRetry(ctx, s.settings(), s.Logger, "get_serial_code", func(ctx context.Context) (*serialcode.Record, error) {
		return s.SerialCodeRepo.Get(ctx, code)
	})
	if err != nil {
		return nil, err
	}

	chain, err := s.resolveLineage(ctx, record)
	if err != nil {
		return nil, err
	}

	lineage, err := s.historyItems(ctx, chain)
	if err != nil {
		return nil, err
	}

	origin, err := s.originatingReservation(ctx, chain)
	if err != nil {
		return nil, err
	}

	chainCodes := lo.Map(chain, func(r *serialcode.Record, _ int) string { return r.Code })

	related, err := s.relatedCodes(ctx, record, chainCodes)
	if err != nil {
		return nil, err
	}

	trail, err := withReadRetry(ctx, s.settings(), s.Logger, "list_audit", func(ctx context.Context) ([]*serialcode.AuditEntry, error) {
		return s.AuditRepo.ListByCodes(ctx, chainCodes)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(trail, func(i, j int) bool {
		return trail[i].CreatedAt.Before(trail[j].CreatedAt)
	})

	now := s.Clock.Now()
	report := &dto.TraceabilityReport{
		Code:       code,
		Record:     dto.ToSerialCodeResponse(record),
		LatestCode: chain[len(chain)-1].Code,
		Lineage:    lineage,
		Entity: dto.EntityReference{
			EntityType: record.EntityType,
			EntityID:   record.EntityID,
		},
		AuditTrail:   lo.Ternary(trail == nil, []*serialcode.AuditEntry{}, trail),
		RelatedCodes: related,
		GeneratedAt:  now,
	}
	if origin != nil {
		report.Reservation = dto.ToReservationResponse(origin, now)
	}
	return report, nil
}

// originatingReservation finds the reservation that issued the first version
// of the chain, if the chain started from one
func (s *traceabilityService) originatingReservation(ctx context.Context, chain []*serialcode.Record) (*reservation.Reservation, error) {
	root := chain[0]
	if root.ReservationID == nil || *root.ReservationID == "" {
		return nil, nil
	}

	rsv, err := withReadRetry(ctx, s.settings(), s.Logger, "get_reservation", func(ctx context.Context) (*reservation.Reservation, error) {
		return s.ReservationRepo.Get(ctx, *root.ReservationID)
	})
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Logger.Warnw("originating reservation missing",
				"code", root.Code,
				"reservation_id", *root.ReservationID)
			return nil, nil
		}
		return nil, err
	}
	return rsv, nil
}

// relatedCodes lists codes of the same entity that are not part of this chain
func (s *traceabilityService) relatedCodes(ctx context.Context, record *serialcode.Record, chainCodes []string) ([]string, error) {
	if record.EntityID == "" {
		return []string{}, nil
	}

	records, err := withReadRetry(ctx, s.settings(), s.Logger, "list_by_entity", func(ctx context.Context) ([]*serialcode.Record, error) {
		return s.SerialCodeRepo.ListByEntity(ctx, record.EntityType, record.EntityID)
	})
	if err != nil {
		return nil, err
	}

	inChain := lo.SliceToMap(chainCodes, func(c string) (string, struct{}) { return c, struct{}{} })
	related := lo.FilterMap(records, func(r *serialcode.Record, _ int) (string, bool) {
		_, ok := inChain[r.Code]
		return r.Code, !ok
	})
	sort.Strings(related)
	return related, nil
}
