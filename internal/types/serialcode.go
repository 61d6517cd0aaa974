package types

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
)

// SerialCodeStatus is the lifecycle state of a confirmed serial code record
type SerialCodeStatus string

const (
	SerialCodeStatusActive     SerialCodeStatus = "active"
	SerialCodeStatusVoided     SerialCodeStatus = "voided"
	SerialCodeStatusSuperseded SerialCodeStatus = "superseded"
)

func (s SerialCodeStatus) Validate() error {
	allowed := []SerialCodeStatus{
		SerialCodeStatusActive,
		SerialCodeStatusVoided,
		SerialCodeStatusSuperseded,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid serial code status").
			WithHintf("status must be one of %v", allowed).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ReservationStatus is the state of a reservation. Every state except
// pending is terminal.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusExpired   ReservationStatus = "expired"
)

func (s ReservationStatus) IsTerminal() bool {
	return s != ReservationStatusPending
}

// SerialCodeAction names a lifecycle transition recorded in the audit trail
type SerialCodeAction string

const (
	SerialCodeActionGenerated  SerialCodeAction = "generated"
	SerialCodeActionReserved   SerialCodeAction = "reserved"
	SerialCodeActionConfirmed  SerialCodeAction = "confirmed"
	SerialCodeActionCancelled  SerialCodeAction = "cancelled"
	SerialCodeActionExpired    SerialCodeAction = "expired"
	SerialCodeActionSuperseded SerialCodeAction = "superseded"
	SerialCodeActionVoided     SerialCodeAction = "voided"
)

const (
	// SerialCodeHardPageLimit caps every search page regardless of configuration
	SerialCodeHardPageLimit = 500
	// SerialCodeDefaultPageLimit is used when the caller does not ask for a size
	SerialCodeDefaultPageLimit = 50
)

// SerialCodeFilter carries the search criteria over confirmed serial codes
type SerialCodeFilter struct {
	Prefix        string            `json:"prefix,omitempty" form:"prefix"`
	TenantCode    string            `json:"tenant_code,omitempty" form:"tenant_code"`
	Stage         *int              `json:"stage,omitempty" form:"stage"`
	Year          *int              `json:"year,omitempty" form:"year"`
	Status        *SerialCodeStatus `json:"status,omitempty" form:"status"`
	EntityType    string            `json:"entity_type,omitempty" form:"entity_type"`
	SequenceFrom  *int              `json:"sequence_from,omitempty" form:"sequence_from"`
	SequenceTo    *int              `json:"sequence_to,omitempty" form:"sequence_to"`
	CreatedAfter  *time.Time        `json:"created_after,omitempty" form:"created_after" time_format:"2006-01-02T15:04:05Z07:00"`
	CreatedBefore *time.Time        `json:"created_before,omitempty" form:"created_before" time_format:"2006-01-02T15:04:05Z07:00"`
	// IncludeVoided widens the default listing, which only shows non-voided codes
	IncludeVoided bool `json:"include_voided,omitempty" form:"include_voided"`
	Limit         *int `json:"limit,omitempty" form:"limit"`
	Offset        *int `json:"offset,omitempty" form:"offset"`
}

// NewDefaultSerialCodeFilter returns a filter with default pagination
func NewDefaultSerialCodeFilter() *SerialCodeFilter {
	return &SerialCodeFilter{
		Limit:  lo.ToPtr(SerialCodeDefaultPageLimit),
		Offset: lo.ToPtr(0),
	}
}

// GetLimit returns the page size clamped to the hard cap
func (f SerialCodeFilter) GetLimit() int {
	if f.Limit == nil || *f.Limit <= 0 {
		return SerialCodeDefaultPageLimit
	}
	if *f.Limit > SerialCodeHardPageLimit {
		return SerialCodeHardPageLimit
	}
	return *f.Limit
}

func (f SerialCodeFilter) GetOffset() int {
	if f.Offset == nil || *f.Offset < 0 {
		return 0
	}
	return *f.Offset
}

// IsUnlimited is always false: serial code scans are bounded by design
func (f SerialCodeFilter) IsUnlimited() bool {
	return false
}

// ExcludesVoided reports whether voided records are hidden from the result
func (f SerialCodeFilter) ExcludesVoided() bool {
	return f.Status == nil && !f.IncludeVoided
}

func (f SerialCodeFilter) Validate() error {
	if f.Limit != nil && (*f.Limit < 1 || *f.Limit > SerialCodeHardPageLimit) {
		return ierr.NewError(fmt.Sprintf("limit must be between 1 and %d", SerialCodeHardPageLimit)).
			WithHintf("Page size must be between 1 and %d", SerialCodeHardPageLimit).
			Mark(ierr.ErrValidation)
	}
	if f.Offset != nil && *f.Offset < 0 {
		return ierr.NewError("offset must be non-negative").
			WithHint("Offset must be non-negative").
			Mark(ierr.ErrValidation)
	}
	if f.Status != nil {
		if err := f.Status.Validate(); err != nil {
			return err
		}
	}
	if f.SequenceFrom != nil && f.SequenceTo != nil && *f.SequenceTo < *f.SequenceFrom {
		return ierr.NewError("sequence_to must not be less than sequence_from").
			WithHint("Invalid sequence range").
			Mark(ierr.ErrValidation)
	}
	if f.CreatedAfter != nil && f.CreatedBefore != nil && f.CreatedBefore.Before(*f.CreatedAfter) {
		return ierr.NewError("created_before must be after created_after").
			WithHint("Invalid creation time range").
			Mark(ierr.ErrValidation)
	}
	return nil
}
