package service

import (
	"context"
	"strings"

	"github.com/samber/lo"
	"github.com/shahin-grc/serialcode/internal/api/dto"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/types"
	"github.com/sourcegraph/conc/iter"
)

// SerialCodeService covers direct generation, lookup, voiding and search of
// confirmed serial codes
type SerialCodeService interface {
	Generate(ctx context.Context, req *dto.GenerateSerialCodeRequest) (*dto.SerialCodeResponse, error)
	GenerateBatch(ctx context.Context, req *dto.GenerateBatchRequest) (*dto.GenerateBatchResponse, error)

	GetByCode(ctx context.Context, code string) (*dto.SerialCodeResponse, error)
	Exists(ctx context.Context, code string) (bool, error)
	GetByEntity(ctx context.Context, entityType, entityID string) (*dto.SerialCodeResponse, error)
	Void(ctx context.Context, code string, req *dto.VoidSerialCodeRequest) (*dto.SerialCodeResponse, error)

	Search(ctx context.Context, filter *types.SerialCodeFilter) (*dto.ListSerialCodesResponse, error)
	ListByPrefix(ctx context.Context, prefix string, limit, offset int) (*dto.ListSerialCodesResponse, error)
	ListByTenant(ctx context.Context, tenantCode string, limit, offset int) (*dto.ListSerialCodesResponse, error)
	ListByStage(ctx context.Context, stage int, limit, offset int) (*dto.ListSerialCodesResponse, error)

	Validate(ctx context.Context, code string) *dto.ValidateCodeResponse
	Parse(ctx context.Context, code string) (*dto.ParseCodeResponse, error)
	GetNextSequence(ctx context.Context, req *dto.NextSequenceRequest) (*dto.NextSequenceResponse, error)
}

type serialCodeService struct {
	ServiceParams
	allocator SequenceAllocator
}

func NewSerialCodeService(params ServiceParams) SerialCodeService {
	return &serialCodeService{
		ServiceParams: params,
		allocator:     NewSequenceAllocator(params),
	}
}

func (s *serialCodeService) Generate(ctx context.Context, req *dto.GenerateSerialCodeRequest) (*dto.SerialCodeResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	record, err := s.generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return dto.ToSerialCodeResponse(record), nil
}

// generate expects a validated request
func (s *serialCodeService) generate(ctx context.Context, req *dto.GenerateSerialCodeRequest) (*serialcode.Record, error) {
	now := s.Clock.Now()

	info, key, err := req.SequenceKey(now)
	if err != nil {
		return nil, err
	}

	seq, err := s.allocator.IssueNext(ctx, key)
	if err != nil {
		return nil, err
	}

	code, err := serialcode.Format(key, seq)
	if err != nil {
		return nil, err
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = types.Metadata{}
	}

	record := &serialcode.Record{
		Code:          code,
		SequenceKey:   key,
		Sequence:      seq,
		EntityType:    info.EntityType,
		EntityID:      req.EntityID,
		Status:        types.SerialCodeStatusActive,
		VersionNumber: 1,
		Metadata:      metadata,
		CreatedAt:     now,
		CreatedBy:     types.GetActor(ctx, req.CreatedBy),
		UpdatedAt:     now,
	}

	if err := s.SerialCodeRepo.Create(ctx, record); err != nil {
		// the sequence stays consumed, which leaves a gap and never a duplicate
		s.Logger.Errorw("failed to persist generated serial code",
			"code", code,
			"sequence", seq,
			"error", err)
		return nil, err
	}

	s.Logger.Infow("generated serial code",
		"code", code,
		"entity_type", record.EntityType,
		"entity_id", record.EntityID)

	s.publishLifecycleEvent(ctx, types.SerialCodeActionGenerated, code, key.TenantCode, nil, record.CreatedBy, now, types.Metadata{
		"entity_type":    record.EntityType,
		"entity_id":      record.EntityID,
		"version_number": record.VersionNumber,
	})

	return record, nil
}

func (s *serialCodeService) GenerateBatch(ctx context.Context, req *dto.GenerateBatchRequest) (*dto.GenerateBatchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cfg := s.settings()
	if len(req.Items) > cfg.MaxBatchSize {
		return nil, ierr.NewError("batch too large").
			WithHintf("A batch may contain at most %d items", cfg.MaxBatchSize).
			WithReportableDetails(map[string]any{
				"items":          len(req.Items),
				"max_batch_size": cfg.MaxBatchSize,
			}).
			Mark(ierr.ErrValidation)
	}

	// items are independent: one failure never rolls back another
	mapper := iter.Mapper[dto.GenerateSerialCodeRequest, *dto.BatchItemResult]{
		MaxGoroutines: cfg.BatchConcurrency,
	}
	results := mapper.Map(req.Items, func(item *dto.GenerateSerialCodeRequest) *dto.BatchItemResult {
		itemReq := *item
		if err := itemReq.Validate(); err != nil {
			return batchFailure(err)
		}
		record, err := s.generate(ctx, &itemReq)
		if err != nil {
			return batchFailure(err)
		}
		return &dto.BatchItemResult{
			Success: true,
			Result:  dto.ToSerialCodeResponse(record),
		}
	})

	resp := &dto.GenerateBatchResponse{
		Items: results,
		Total: len(results),
	}
	for i, r := range results {
		r.Index = i
		if r.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}

	s.Logger.Infow("generated serial code batch",
		"total", resp.Total,
		"succeeded", resp.Succeeded,
		"failed", resp.Failed)

	return resp, nil
}

func batchFailure(err error) *dto.BatchItemResult {
	return &dto.BatchItemResult{
		Success: false,
		Error: &dto.BatchItemError{
			Code:    ierr.ErrorCode(err),
			Message: err.Error(),
		},
	}
}

func (s *serialCodeService) GetByCode(ctx context.Context, code string) (*dto.SerialCodeResponse, error) {
	if _, _, err := serialcode.Parse(code); err != nil {
		return nil, err
	}

	record, err := s.getRecord(ctx, code)
	if err != nil {
		return nil, err
	}
	return dto.ToSerialCodeResponse(record), nil
}

func (s *serialCodeService) getRecord(ctx context.Context, code string) (*serialcode.Record, error) {
	return withReadRetry(ctx, s.settings(), s.Logger, "get_serial_code", func(ctx context.Context) (*serialcode.Record, error) {
		return s.SerialCodeRepo.Get(ctx, code)
	})
}

// Exists reports false for malformed codes instead of failing
func (s *serialCodeService) Exists(ctx context.Context, code string) (bool, error) {
	if _, _, err := serialcode.Parse(code); err != nil {
		return false, nil
	}

	return withReadRetry(ctx, s.settings(), s.Logger, "serial_code_exists", func(ctx context.Context) (bool, error) {
		return s.SerialCodeRepo.Exists(ctx, code)
	})
}

// GetByEntity returns the current code of an entity: the newest record that
// has not been superseded, active ones before voided ones.
func (s *serialCodeService) GetByEntity(ctx context.Context, entityType, entityID string) (*dto.SerialCodeResponse, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, ierr.NewError("entity_id is required").
			WithHint("Entity ID is required").
			Mark(ierr.ErrValidation)
	}

	info, err := serialcode.ResolvePrefix(entityType)
	if err != nil {
		return nil, err
	}

	records, err := withReadRetry(ctx, s.settings(), s.Logger, "list_by_entity", func(ctx context.Context) ([]*serialcode.Record, error) {
		return s.SerialCodeRepo.ListByEntity(ctx, info.EntityType, entityID)
	})
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, ierr.NewError("no serial code for entity").
			WithHintf("No serial code found for %s %s", info.EntityType, entityID).
			WithReportableDetails(map[string]any{
				"entity_type": info.EntityType,
				"entity_id":   entityID,
			}).
			Mark(ierr.ErrCodeNotFound)
	}

	if r, ok := lo.Find(records, func(r *serialcode.Record) bool { return r.IsActive() }); ok {
		return dto.ToSerialCodeResponse(r), nil
	}
	if r, ok := lo.Find(records, func(r *serialcode.Record) bool { return !r.HasSuccessor() }); ok {
		return dto.ToSerialCodeResponse(r), nil
	}
	return dto.ToSerialCodeResponse(records[0]), nil
}

func (s *serialCodeService) Void(ctx context.Context, code string, req *dto.VoidSerialCodeRequest) (*dto.SerialCodeResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, _, err := serialcode.Parse(code); err != nil {
		return nil, err
	}

	record, err := s.getRecord(ctx, code)
	if err != nil {
		return nil, err
	}
	if record.IsVoided() {
		return nil, alreadyVoided(code)
	}

	now := s.Clock.Now()
	if err := s.SerialCodeRepo.Void(ctx, code, req.Reason, now); err != nil {
		return nil, err
	}

	record.Status = types.SerialCodeStatusVoided
	record.VoidedAt = &now
	record.VoidReason = lo.ToPtr(req.Reason)
	record.UpdatedAt = now

	s.Logger.Infow("voided serial code", "code", code, "reason", req.Reason)

	s.publishLifecycleEvent(ctx, types.SerialCodeActionVoided, code, record.TenantCode, record.ReservationID, types.GetActor(ctx, ""), now, types.Metadata{
		"reason": req.Reason,
	})

	return dto.ToSerialCodeResponse(record), nil
}

func alreadyVoided(code string) error {
	return ierr.NewError("serial code already voided").
		WithHintf("Serial code %s is already voided", code).
		WithReportableDetails(map[string]any{"code": code}).
		Mark(ierr.ErrInvalidOperation)
}

func (s *serialCodeService) Search(ctx context.Context, filter *types.SerialCodeFilter) (*dto.ListSerialCodesResponse, error) {
	if filter == nil {
		filter = types.NewDefaultSerialCodeFilter()
	}

	// oversized pages are clamped rather than rejected
	cfg := s.settings()
	limit := cfg.DefaultPageSize
	if filter.Limit != nil && *filter.Limit > 0 {
		limit = *filter.Limit
	}
	if cfg.MaxPageSize > 0 && limit > cfg.MaxPageSize {
		limit = cfg.MaxPageSize
	}
	if limit > types.SerialCodeHardPageLimit {
		limit = types.SerialCodeHardPageLimit
	}
	if limit <= 0 {
		limit = types.SerialCodeDefaultPageLimit
	}
	filter.Limit = lo.ToPtr(limit)

	filter.Prefix = strings.ToUpper(strings.TrimSpace(filter.Prefix))
	filter.TenantCode = strings.ToUpper(strings.TrimSpace(filter.TenantCode))
	if filter.EntityType != "" {
		info, err := serialcode.ResolvePrefix(filter.EntityType)
		if err != nil {
			return nil, err
		}
		filter.EntityType = info.EntityType
	}

	if err := filter.Validate(); err != nil {
		return nil, err
	}

	records, err := withReadRetry(ctx, s.settings(), s.Logger, "search_serial_codes", func(ctx context.Context) ([]*serialcode.Record, error) {
		return s.SerialCodeRepo.List(ctx, filter)
	})
	if err != nil {
		return nil, err
	}

	total, err := withReadRetry(ctx, s.settings(), s.Logger, "count_serial_codes", func(ctx context.Context) (int, error) {
		return s.SerialCodeRepo.Count(ctx, filter)
	})
	if err != nil {
		return nil, err
	}

	resp := types.NewListResponse(dto.ToSerialCodeResponses(records), total, filter.GetLimit(), filter.GetOffset())
	return &resp, nil
}

func (s *serialCodeService) ListByPrefix(ctx context.Context, prefix string, limit, offset int) (*dto.ListSerialCodesResponse, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if !serialcode.IsValidPrefix(prefix) {
		return nil, ierr.NewError("invalid prefix").
			WithHint("Prefix must be 2-5 uppercase letters with an optional one letter subtype").
			WithReportableDetails(map[string]any{"prefix": prefix}).
			Mark(ierr.ErrValidation)
	}
	filter := pageFilter(limit, offset)
	filter.Prefix = prefix
	return s.Search(ctx, filter)
}

func (s *serialCodeService) ListByTenant(ctx context.Context, tenantCode string, limit, offset int) (*dto.ListSerialCodesResponse, error) {
	tenantCode = strings.ToUpper(strings.TrimSpace(tenantCode))
	if !serialcode.IsValidTenantCode(tenantCode) {
		return nil, ierr.NewError("invalid tenant code").
			WithHint("Tenant code must be 3-6 uppercase alphanumeric characters and not reserved").
			WithReportableDetails(map[string]any{"tenant_code": tenantCode}).
			Mark(ierr.ErrValidation)
	}
	filter := pageFilter(limit, offset)
	filter.TenantCode = tenantCode
	return s.Search(ctx, filter)
}

func (s *serialCodeService) ListByStage(ctx context.Context, stage int, limit, offset int) (*dto.ListSerialCodesResponse, error) {
	if !serialcode.IsValidStage(stage) {
		return nil, ierr.NewError("invalid stage").
			WithHintf("Stage must be between %d and %d", serialcode.MinStage, serialcode.MaxStage).
			WithReportableDetails(map[string]any{"stage": stage}).
			Mark(ierr.ErrValidation)
	}
	filter := pageFilter(limit, offset)
	filter.Stage = lo.ToPtr(stage)
	return s.Search(ctx, filter)
}

func pageFilter(limit, offset int) *types.SerialCodeFilter {
	filter := &types.SerialCodeFilter{}
	if limit > 0 {
		filter.Limit = lo.ToPtr(limit)
	}
	if offset > 0 {
		filter.Offset = lo.ToPtr(offset)
	}
	return filter
}

func (s *serialCodeService) Validate(_ context.Context, code string) *dto.ValidateCodeResponse {
	result := serialcode.Validate(code, s.Clock.Now())
	return &result
}

func (s *serialCodeService) Parse(_ context.Context, code string) (*dto.ParseCodeResponse, error) {
	key, seq, err := serialcode.Parse(code)
	if err != nil {
		return nil, err
	}

	entityType, _ := serialcode.EntityTypeForPrefix(key.Prefix)
	return &dto.ParseCodeResponse{
		Code:       code,
		Prefix:     key.Prefix,
		TenantCode: key.TenantCode,
		Stage:      key.Stage,
		Year:       key.Year,
		Sequence:   seq,
		EntityType: entityType,
	}, nil
}

func (s *serialCodeService) GetNextSequence(ctx context.Context, req *dto.NextSequenceRequest) (*dto.NextSequenceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key, err := req.SequenceKey(s.Clock.Now())
	if err != nil {
		return nil, err
	}

	next, err := s.allocator.PeekNext(ctx, key)
	if err != nil {
		return nil, err
	}
	if next > serialcode.MaxSequence {
		return nil, sequenceExhausted(key)
	}

	preview, err := serialcode.Format(key, next)
	if err != nil {
		return nil, err
	}

	return &dto.NextSequenceResponse{
		SequenceKey:  key,
		NextSequence: next,
		PreviewCode:  preview,
		Reserved:     false,
	}, nil
}
