package testutil

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/types"
)

// InMemorySerialCodeStore implements serialcode.Repository
type InMemorySerialCodeStore struct {
	*InMemoryStore[*serialcode.Record]
}

func NewInMemorySerialCodeStore() *InMemorySerialCodeStore {
	return &InMemorySerialCodeStore{
		InMemoryStore: NewInMemoryStore[*serialcode.Record](),
	}
}

func copyRecord(r *serialcode.Record) *serialcode.Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Metadata != nil {
		cp.Metadata = lo.Assign(types.Metadata{}, r.Metadata)
	}
	return &cp
}

func serialCodeFilterFn(_ context.Context, r *serialcode.Record, filter interface{}) bool {
	if r == nil {
		return false
	}

	f, ok := filter.(*types.SerialCodeFilter)
	if !ok || f == nil {
		return true
	}

	if f.ExcludesVoided() && r.IsVoided() {
		return false
	}
	if f.Status != nil && r.Status != *f.Status {
		return false
	}
	if f.Prefix != "" && r.Prefix != f.Prefix {
		return false
	}
	if f.TenantCode != "" && r.TenantCode != f.TenantCode {
		return false
	}
	if f.Stage != nil && r.Stage != *f.Stage {
		return false
	}
	if f.Year != nil && r.Year != *f.Year {
		return false
	}
	if f.EntityType != "" && r.EntityType != f.EntityType {
		return false
	}
	if f.SequenceFrom != nil && r.Sequence < *f.SequenceFrom {
		return false
	}
	if f.SequenceTo != nil && r.Sequence > *f.SequenceTo {
		return false
	}
	if f.CreatedAfter != nil && r.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && r.CreatedAt.After(*f.CreatedBefore) {
		return false
	}
	return true
}

// newest first, code as the tie breaker
func serialCodeSortFn(i, j *serialcode.Record) bool {
	if !i.CreatedAt.Equal(j.CreatedAt) {
		return i.CreatedAt.After(j.CreatedAt)
	}
	return i.Code > j.Code
}

func (s *InMemorySerialCodeStore) Create(ctx context.Context, record *serialcode.Record) error {
	if record == nil {
		return ierr.NewError("record cannot be nil").Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, record.Code, copyRecord(record))
}

func (s *InMemorySerialCodeStore) Get(ctx context.Context, code string) (*serialcode.Record, error) {
	record, err := s.InMemoryStore.Get(ctx, code)
	if err != nil {
		return nil, ierr.NewError("serial code not found").
			WithHintf("Serial code %s was not found", code).
			WithReportableDetails(map[string]any{"code": code}).
			Mark(ierr.ErrCodeNotFound)
	}
	return copyRecord(record), nil
}

func (s *InMemorySerialCodeStore) Exists(ctx context.Context, code string) (bool, error) {
	return s.InMemoryStore.Exists(ctx, code), nil
}

func (s *InMemorySerialCodeStore) ListByEntity(ctx context.Context, entityType, entityID string) ([]*serialcode.Record, error) {
	records, err := s.InMemoryStore.List(ctx, nil, func(_ context.Context, r *serialcode.Record, _ interface{}) bool {
		return r.EntityType == entityType && r.EntityID == entityID
	}, serialCodeSortFn)
	if err != nil {
		return nil, err
	}
	return lo.Map(records, func(r *serialcode.Record, _ int) *serialcode.Record { return copyRecord(r) }), nil
}

func (s *InMemorySerialCodeStore) List(ctx context.Context, filter *types.SerialCodeFilter) ([]*serialcode.Record, error) {
	if filter == nil {
		filter = types.NewDefaultSerialCodeFilter()
	}
	records, err := s.InMemoryStore.List(ctx, filter, serialCodeFilterFn, serialCodeSortFn)
	if err != nil {
		return nil, err
	}
	return lo.Map(records, func(r *serialcode.Record, _ int) *serialcode.Record { return copyRecord(r) }), nil
}

func (s *InMemorySerialCodeStore) Count(ctx context.Context, filter *types.SerialCodeFilter) (int, error) {
	if filter == nil {
		filter = types.NewDefaultSerialCodeFilter()
	}
	return s.InMemoryStore.Count(ctx, filter, serialCodeFilterFn)
}

func (s *InMemorySerialCodeStore) MarkSuperseded(ctx context.Context, code, supersededBy string, at time.Time) error {
	err := s.InMemoryStore.Mutate(ctx, code, func(r *serialcode.Record) (*serialcode.Record, error) {
		if !r.IsActive() || r.HasSuccessor() {
			return nil, ierr.NewError("serial code already superseded").
				WithHintf("Serial code %s can no longer be superseded", code).
				Mark(ierr.ErrAlreadySuperseded)
		}
		cp := copyRecord(r)
		cp.Status = types.SerialCodeStatusSuperseded
		cp.SupersededByCode = lo.ToPtr(supersededBy)
		cp.UpdatedAt = at
		return cp, nil
	})
	if ierr.IsNotFound(err) {
		return ierr.WithError(err).Mark(ierr.ErrCodeNotFound)
	}
	return err
}

func (s *InMemorySerialCodeStore) Void(ctx context.Context, code, reason string, at time.Time) error {
	err := s.InMemoryStore.Mutate(ctx, code, func(r *serialcode.Record) (*serialcode.Record, error) {
		if r.IsVoided() {
			return nil, ierr.NewError("serial code already voided").
				WithHintf("Serial code %s is already voided", code).
				Mark(ierr.ErrInvalidOperation)
		}
		cp := copyRecord(r)
		cp.Status = types.SerialCodeStatusVoided
		cp.VoidedAt = lo.ToPtr(at)
		cp.VoidReason = lo.ToPtr(reason)
		cp.UpdatedAt = at
		return cp, nil
	})
	if ierr.IsNotFound(err) {
		return ierr.WithError(err).Mark(ierr.ErrCodeNotFound)
	}
	return err
}

// Overwrite replaces a stored record as is, used to simulate out of band edits
func (s *InMemorySerialCodeStore) Overwrite(ctx context.Context, record *serialcode.Record) error {
	return s.InMemoryStore.Update(ctx, record.Code, copyRecord(record))
}
