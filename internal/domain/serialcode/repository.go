package serialcode

import (
	"context"
	"time"

	"github.com/shahin-grc/serialcode/internal/types"
)

// CounterRepository owns the per key counters
type CounterRepository interface {
	// IssueNext atomically increments the counter for key, creating it on
	// first use, and returns the new value
	IssueNext(ctx context.Context, key SequenceKey) (int, error)

	// PeekNext returns the value IssueNext would return right now without
	// reserving it
	PeekNext(ctx context.Context, key SequenceKey) (int, error)
}

// Repository defines the interface for serial code record access
type Repository interface {
	Create(ctx context.Context, record *Record) error

	// Get returns ErrCodeNotFound when the code is unknown
	Get(ctx context.Context, code string) (*Record, error)

	Exists(ctx context.Context, code string) (bool, error)

	// ListByEntity returns every record bound to an entity, newest first
	ListByEntity(ctx context.Context, entityType, entityID string) ([]*Record, error)

	List(ctx context.Context, filter *types.SerialCodeFilter) ([]*Record, error)

	Count(ctx context.Context, filter *types.SerialCodeFilter) (int, error)

	// MarkSuperseded moves an active record without a successor to superseded.
	// Returns ErrAlreadySuperseded when the record no longer qualifies.
	MarkSuperseded(ctx context.Context, code, supersededBy string, at time.Time) error

	// Void marks a non voided record as voided. Returns ErrInvalidOperation
	// when the record is already voided.
	Void(ctx context.Context, code, reason string, at time.Time) error
}

// VersionRepository stores the append-only supersede history
type VersionRepository interface {
	Create(ctx context.Context, version *Version) error

	ListByCodes(ctx context.Context, codes []string) ([]*Version, error)
}

// AuditRepository stores lifecycle audit entries
type AuditRepository interface {
	// Create is idempotent on the entry id
	Create(ctx context.Context, entry *AuditEntry) error

	// ListByCodes returns entries for the given codes ordered by time
	ListByCodes(ctx context.Context, codes []string) ([]*AuditEntry, error)
}
