package dto

import (
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shahin-grc/serialcode/internal/domain/reservation"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/types"
	"github.com/shahin-grc/serialcode/internal/validator"
)

// GenerateSerialCodeRequest asks for a code bound to an existing entity
type GenerateSerialCodeRequest struct {
	EntityType string         `json:"entity_type" validate:"required"`
	TenantCode string         `json:"tenant_code" validate:"required,tenant_code"`
	EntityID   string         `json:"entity_id" validate:"required"`
	Stage      *int           `json:"stage,omitempty" validate:"omitempty,serial_stage"`
	Year       *int           `json:"year,omitempty" validate:"omitempty,min=1000,max=9999"`
	Metadata   types.Metadata `json:"metadata,omitempty"`
	CreatedBy  string         `json:"created_by,omitempty"`
}

// Validate upper-cases the tenant code before checking the request
func (r *GenerateSerialCodeRequest) Validate() error {
	r.TenantCode = normalizeTenant(r.TenantCode)
	r.EntityType = strings.TrimSpace(r.EntityType)
	r.EntityID = strings.TrimSpace(r.EntityID)

	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.Metadata.Validate()
}

// SequenceKey resolves the counter scope for the request at now
func (r *GenerateSerialCodeRequest) SequenceKey(now time.Time) (serialcode.PrefixInfo, serialcode.SequenceKey, error) {
	return resolveKey(r.EntityType, r.TenantCode, r.Stage, r.Year, now)
}

// GenerateBatchRequest carries independent generate requests
type GenerateBatchRequest struct {
	Items []GenerateSerialCodeRequest `json:"items" validate:"required,min=1"`
}

// Validate only checks the envelope. Items are validated one by one so that
// a bad item fails alone.
func (r *GenerateBatchRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// BatchItemError describes why a single batch item failed
type BatchItemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchItemResult is the outcome of one batch item, in request order
type BatchItemResult struct {
	Index   int                 `json:"index"`
	Success bool                `json:"success"`
	Result  *SerialCodeResponse `json:"result,omitempty"`
	Error   *BatchItemError     `json:"error,omitempty"`
}

type GenerateBatchResponse struct {
	Items     []*BatchItemResult `json:"items"`
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
}

// SerialCodeResponse represents a confirmed code in responses
type SerialCodeResponse struct {
	*serialcode.Record
}

func ToSerialCodeResponse(r *serialcode.Record) *SerialCodeResponse {
	if r == nil {
		return nil
	}
	return &SerialCodeResponse{Record: r}
}

func ToSerialCodeResponses(records []*serialcode.Record) []*SerialCodeResponse {
	return lo.Map(records, func(r *serialcode.Record, _ int) *SerialCodeResponse {
		return ToSerialCodeResponse(r)
	})
}

// ListSerialCodesResponse is a bounded page of codes
type ListSerialCodesResponse = types.ListResponse[*SerialCodeResponse]

// PageRequest carries the paging query of the list shortcuts
type PageRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

type ValidateCodeRequest struct {
	Code string `json:"code" validate:"required"`
}

func (r *ValidateCodeRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type ValidateCodeResponse = serialcode.ValidationResult

// ParseCodeResponse lists the components of a well formed code
type ParseCodeResponse struct {
	Code       string `json:"code"`
	Prefix     string `json:"prefix"`
	TenantCode string `json:"tenant_code"`
	Stage      int    `json:"stage"`
	Year       int    `json:"year"`
	Sequence   int    `json:"sequence"`
	EntityType string `json:"entity_type,omitempty"`
}

// NextSequenceRequest selects the key to preview. Either prefix or
// entity_type must be given.
type NextSequenceRequest struct {
	Prefix     string `form:"prefix" json:"prefix,omitempty"`
	EntityType string `form:"entity_type" json:"entity_type,omitempty"`
	TenantCode string `form:"tenant_code" json:"tenant_code" validate:"required,tenant_code"`
	Stage      *int   `form:"stage" json:"stage,omitempty" validate:"omitempty,serial_stage"`
	Year       *int   `form:"year" json:"year,omitempty" validate:"omitempty,min=1000,max=9999"`
}

func (r *NextSequenceRequest) Validate() error {
	r.TenantCode = normalizeTenant(r.TenantCode)
	r.Prefix = strings.ToUpper(strings.TrimSpace(r.Prefix))

	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Prefix == "" && strings.TrimSpace(r.EntityType) == "" {
		return ierr.NewError("prefix or entity_type is required").
			WithHint("Either prefix or entity type is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *NextSequenceRequest) SequenceKey(now time.Time) (serialcode.SequenceKey, error) {
	if r.Prefix != "" {
		stage := 0
		if info, ok := serialcode.EntityTypeForPrefix(r.Prefix); ok {
			if resolved, err := serialcode.ResolvePrefix(info); err == nil {
				stage = resolved.DefaultStage
			}
		}
		if r.Stage != nil {
			stage = *r.Stage
		}
		return serialcode.NewSequenceKey(r.Prefix, r.TenantCode, stage, lo.FromPtrOr(r.Year, now.Year()))
	}
	_, key, err := resolveKey(r.EntityType, r.TenantCode, r.Stage, r.Year, now)
	return key, err
}

// NextSequenceResponse is a non binding preview. Nothing is reserved.
type NextSequenceResponse struct {
	serialcode.SequenceKey
	NextSequence int    `json:"next_sequence"`
	PreviewCode  string `json:"preview_code"`
	Reserved     bool   `json:"reserved"`
}

// CreateVersionRequest supersedes an active code with a fresh one
type CreateVersionRequest struct {
	ChangeReason string         `json:"change_reason,omitempty" validate:"omitempty,max=500"`
	Metadata     types.Metadata `json:"metadata,omitempty"`
	CreatedBy    string         `json:"created_by,omitempty"`
}

func (r *CreateVersionRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.Metadata.Validate()
}

type LatestVersionResponse struct {
	Code          string `json:"code"`
	LatestCode    string `json:"latest_code"`
	VersionNumber int    `json:"version_number"`
}

type VoidSerialCodeRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (r *VoidSerialCodeRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	return validator.ValidateRequest(r)
}

type HistoryResponse struct {
	Code     string                    `json:"code"`
	Versions []*serialcode.HistoryItem `json:"versions"`
}

// EntityReference identifies the entity that owns a lineage
type EntityReference struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// TraceabilityReport is the full history of a code in one read
type TraceabilityReport struct {
	Code         string                    `json:"code"`
	Record       *SerialCodeResponse       `json:"record"`
	LatestCode   string                    `json:"latest_code"`
	Lineage      []*serialcode.HistoryItem `json:"lineage"`
	Entity       EntityReference           `json:"entity"`
	Reservation  *ReservationResponse      `json:"reservation,omitempty"`
	AuditTrail   []*serialcode.AuditEntry  `json:"audit_trail"`
	RelatedCodes []string                  `json:"related_codes"`
	GeneratedAt  time.Time                 `json:"generated_at"`
}

// ReserveSerialCodeRequest holds a code before the owning entity exists
type ReserveSerialCodeRequest struct {
	EntityType string `json:"entity_type" validate:"required"`
	TenantCode string `json:"tenant_code" validate:"required,tenant_code"`
	Stage      *int   `json:"stage,omitempty" validate:"omitempty,serial_stage"`
	Year       *int   `json:"year,omitempty" validate:"omitempty,min=1000,max=9999"`
	TTLSeconds *int   `json:"ttl_seconds,omitempty" validate:"omitempty,min=1"`
	CreatedBy  string `json:"created_by,omitempty"`
}

func (r *ReserveSerialCodeRequest) Validate() error {
	r.TenantCode = normalizeTenant(r.TenantCode)
	r.EntityType = strings.TrimSpace(r.EntityType)
	return validator.ValidateRequest(r)
}

func (r *ReserveSerialCodeRequest) SequenceKey(now time.Time) (serialcode.PrefixInfo, serialcode.SequenceKey, error) {
	return resolveKey(r.EntityType, r.TenantCode, r.Stage, r.Year, now)
}

// TTL returns the requested time to live, falling back to def and capped at max
func (r *ReserveSerialCodeRequest) TTL(def, max time.Duration) (time.Duration, error) {
	if r.TTLSeconds == nil {
		return def, nil
	}
	ttl := time.Duration(*r.TTLSeconds) * time.Second
	if max > 0 && ttl > max {
		return 0, ierr.NewError("ttl exceeds maximum").
			WithHintf("Reservation TTL must not exceed %s", max).
			WithReportableDetails(map[string]any{"ttl_seconds": *r.TTLSeconds}).
			Mark(ierr.ErrValidation)
	}
	return ttl, nil
}

type ConfirmReservationRequest struct {
	EntityID  string         `json:"entity_id" validate:"required"`
	Metadata  types.Metadata `json:"metadata,omitempty"`
	CreatedBy string         `json:"created_by,omitempty"`
}

func (r *ConfirmReservationRequest) Validate() error {
	r.EntityID = strings.TrimSpace(r.EntityID)
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.Metadata.Validate()
}

// ReservationResponse reports the status as observed now, so a lapsed
// pending reservation reads as expired even before the sweeper ran.
type ReservationResponse struct {
	*reservation.Reservation
	Status types.ReservationStatus `json:"status"`
}

func ToReservationResponse(r *reservation.Reservation, now time.Time) *ReservationResponse {
	if r == nil {
		return nil
	}
	return &ReservationResponse{
		Reservation: r,
		Status:      r.EffectiveStatus(now),
	}
}

type ExpireReservationsResponse struct {
	Expired int       `json:"expired"`
	RanAt   time.Time `json:"ran_at"`
}

func normalizeTenant(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

func resolveKey(entityType, tenantCode string, stage, year *int, now time.Time) (serialcode.PrefixInfo, serialcode.SequenceKey, error) {
	info, err := serialcode.ResolvePrefix(entityType)
	if err != nil {
		return serialcode.PrefixInfo{}, serialcode.SequenceKey{}, err
	}
	key, err := serialcode.NewSequenceKey(
		info.Prefix,
		tenantCode,
		lo.FromPtrOr(stage, info.DefaultStage),
		lo.FromPtrOr(year, now.Year()),
	)
	if err != nil {
		return serialcode.PrefixInfo{}, serialcode.SequenceKey{}, err
	}
	return info, key, nil
}
