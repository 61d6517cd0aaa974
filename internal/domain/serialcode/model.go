package serialcode

import (
	"time"

	"github.com/shahin-grc/serialcode/internal/types"
)

// Record is a confirmed serial code bound to an owning entity
type Record struct {
	Code string `json:"code"`
	SequenceKey
	Sequence            int                    `json:"sequence"`
	EntityType          string                 `json:"entity_type"`
	EntityID            string                 `json:"entity_id"`
	Status              types.SerialCodeStatus `json:"status"`
	VersionNumber       int                    `json:"version_number"`
	PreviousVersionCode *string                `json:"previous_version_code,omitempty"`
	SupersededByCode    *string                `json:"superseded_by_code,omitempty"`
	ReservationID       *string                `json:"reservation_id,omitempty"`
	Metadata            types.Metadata         `json:"metadata,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
	CreatedBy           string                 `json:"created_by"`
	UpdatedAt           time.Time              `json:"updated_at"`
	VoidedAt            *time.Time             `json:"voided_at,omitempty"`
	VoidReason          *string                `json:"void_reason,omitempty"`
}

func (r *Record) IsActive() bool {
	return r.Status == types.SerialCodeStatusActive
}

func (r *Record) IsVoided() bool {
	return r.Status == types.SerialCodeStatusVoided
}

// HasSuccessor reports whether a newer version already points back at r
func (r *Record) HasSuccessor() bool {
	return r.SupersededByCode != nil && *r.SupersededByCode != ""
}

// Version is an append-only entry describing one supersede transition
type Version struct {
	SerialCode       string    `json:"serial_code"`
	VersionNumber    int       `json:"version_number"`
	ChangeReason     string    `json:"change_reason,omitempty"`
	SupersededByCode *string   `json:"superseded_by_code,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	CreatedBy        string    `json:"created_by"`
}

// HistoryItem is one link of a lineage, oldest first
type HistoryItem struct {
	Code             string                 `json:"code"`
	VersionNumber    int                    `json:"version_number"`
	Status           types.SerialCodeStatus `json:"status"`
	ChangeReason     string                 `json:"change_reason,omitempty"`
	SupersededByCode *string                `json:"superseded_by_code,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	CreatedBy        string                 `json:"created_by"`
}

// AuditEntry records one lifecycle transition of a code or reservation
type AuditEntry struct {
	ID            string                 `json:"id"`
	Action        types.SerialCodeAction `json:"action"`
	Code          string                 `json:"code"`
	ReservationID *string                `json:"reservation_id,omitempty"`
	TenantCode    string                 `json:"tenant_code"`
	Actor         string                 `json:"actor"`
	RequestID     string                 `json:"request_id,omitempty"`
	Details       types.Metadata         `json:"details,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// LifecycleEvent is published for every transition and consumed into the
// audit trail
type LifecycleEvent struct {
	ID            string                 `json:"id"`
	Action        types.SerialCodeAction `json:"action"`
	Code          string                 `json:"code"`
	ReservationID *string                `json:"reservation_id,omitempty"`
	TenantCode    string                 `json:"tenant_code"`
	Actor         string                 `json:"actor"`
	RequestID     string                 `json:"request_id,omitempty"`
	Details       types.Metadata         `json:"details,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// ToAuditEntry converts an event to its persisted form. The event id is
// reused so that redelivery is idempotent.
func (e *LifecycleEvent) ToAuditEntry() *AuditEntry {
	return &AuditEntry{
		ID:            e.ID,
		Action:        e.Action,
		Code:          e.Code,
		ReservationID: e.ReservationID,
		TenantCode:    e.TenantCode,
		Actor:         e.Actor,
		RequestID:     e.RequestID,
		Details:       e.Details,
		CreatedAt:     e.Timestamp,
	}
}
