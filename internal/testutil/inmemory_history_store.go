package testutil

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/types"
)

// InMemoryVersionStore implements serialcode.VersionRepository
type InMemoryVersionStore struct {
	*InMemoryStore[*serialcode.Version]
}

func NewInMemoryVersionStore() *InMemoryVersionStore {
	return &InMemoryVersionStore{
		InMemoryStore: NewInMemoryStore[*serialcode.Version](),
	}
}

func versionKey(code string, version int) string {
	return fmt.Sprintf("%s#%d", code, version)
}

func (s *InMemoryVersionStore) Create(ctx context.Context, v *serialcode.Version) error {
	cp := *v
	if err := s.InMemoryStore.Create(ctx, versionKey(v.SerialCode, v.VersionNumber), &cp); err != nil {
		return ierr.WithError(err).
			WithHintf("Version %d of %s already recorded", v.VersionNumber, v.SerialCode).
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

// ListByCodes orders by version number like the postgres store
func (s *InMemoryVersionStore) ListByCodes(ctx context.Context, codes []string) ([]*serialcode.Version, error) {
	items, err := s.InMemoryStore.List(ctx, codes, codeInFilterFn[*serialcode.Version](func(v *serialcode.Version) string {
		return v.SerialCode
	}), func(a, b *serialcode.Version) bool {
		if a.VersionNumber != b.VersionNumber {
			return a.VersionNumber < b.VersionNumber
		}
		return a.SerialCode < b.SerialCode
	})
	if err != nil {
		return nil, err
	}

	return lo.Map(items, func(v *serialcode.Version, _ int) *serialcode.Version {
		cp := *v
		return &cp
	}), nil
}

// InMemoryAuditStore implements serialcode.AuditRepository
type InMemoryAuditStore struct {
	*InMemoryStore[*serialcode.AuditEntry]
}

func NewInMemoryAuditStore() *InMemoryAuditStore {
	return &InMemoryAuditStore{
		InMemoryStore: NewInMemoryStore[*serialcode.AuditEntry](),
	}
}

// Create ignores an entry whose id is already stored, matching the
// ON CONFLICT DO NOTHING of the postgres store
func (s *InMemoryAuditStore) Create(ctx context.Context, entry *serialcode.AuditEntry) error {
	err := s.InMemoryStore.Create(ctx, entry.ID, copyAuditEntry(entry))
	if ierr.IsAlreadyExists(err) {
		return nil
	}
	return err
}

func (s *InMemoryAuditStore) ListByCodes(ctx context.Context, codes []string) ([]*serialcode.AuditEntry, error) {
	items, err := s.InMemoryStore.List(ctx, codes, codeInFilterFn[*serialcode.AuditEntry](func(e *serialcode.AuditEntry) string {
		return e.Code
	}), func(a, b *serialcode.AuditEntry) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if err != nil {
		return nil, err
	}

	return lo.Map(items, func(e *serialcode.AuditEntry, _ int) *serialcode.AuditEntry {
		return copyAuditEntry(e)
	}), nil
}

func copyAuditEntry(e *serialcode.AuditEntry) *serialcode.AuditEntry {
	cp := *e
	if e.Details != nil {
		cp.Details = lo.Assign(types.Metadata{}, e.Details)
	}
	if e.ReservationID != nil {
		cp.ReservationID = lo.ToPtr(*e.ReservationID)
	}
	return &cp
}

// codeInFilterFn matches items whose code is in the []string filter
func codeInFilterFn[T any](codeOf func(T) string) FilterFunc[T] {
	return func(_ context.Context, item T, filter interface{}) bool {
		codes, ok := filter.([]string)
		if !ok {
			return false
		}
		return lo.Contains(codes, codeOf(item))
	}
}
