package service

import (
	"context"

	"github.com/samber/lo"
	"github.com/shahin-grc/serialcode/internal/api/dto"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/types"
)

// VersioningService maintains supersede chains of codes for one entity
type VersioningService interface {
	// CreateNewVersion issues a fresh code under the same key and supersedes code
	CreateNewVersion(ctx context.Context, code string, req *dto.CreateVersionRequest) (*dto.SerialCodeResponse, error)
	GetLatestVersion(ctx context.Context, code string) (*dto.LatestVersionResponse, error)
	GetHistory(ctx context.Context, code string) (*dto.HistoryResponse, error)
}

type versioningService struct {
	ServiceParams
	allocator SequenceAllocator
}

func NewVersioningService(params ServiceParams) VersioningService {
	return &versioningService{
		ServiceParams: params,
		allocator:     NewSequenceAllocator(params),
	}
}

func (s *versioningService) CreateNewVersion(ctx context.Context, code string, req *dto.CreateVersionRequest) (*dto.SerialCodeResponse, error) {
	if req == nil {
		req = &dto.CreateVersionRequest{}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, _, err := serialcode.Parse(code); err != nil {
		return nil, err
	}

	old, err := withReadRetry(ctx, s.settings(), s.Logger, "get_serial_code", func(ctx context.Context) (*serialcode.Record, error) {
		return s.SerialCodeRepo.Get(ctx, code)
	})
	if err != nil {
		return nil, err
	}
	if old.HasSuccessor() {
		return nil, alreadySuperseded(old)
	}
	if !old.IsActive() {
		return nil, ierr.NewError("serial code is not active").
			WithHintf("Serial code %s is %s and cannot be versioned", code, old.Status).
			WithReportableDetails(map[string]any{"code": code, "status": old.Status}).
			Mark(ierr.ErrCodeNotFound)
	}

	seq, err := s.allocator.IssueNext(ctx, old.SequenceKey)
	if err != nil {
		return nil, err
	}
	newCode, err := serialcode.Format(old.SequenceKey, seq)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	actor := types.GetActor(ctx, req.CreatedBy)

	metadata := req.Metadata
	if metadata == nil {
		metadata = lo.Assign(types.Metadata{}, old.Metadata)
	}

	record := &serialcode.Record{
		Code:                newCode,
		SequenceKey:         old.SequenceKey,
		Sequence:            seq,
		EntityType:          old.EntityType,
		EntityID:            old.EntityID,
		Status:              types.SerialCodeStatusActive,
		VersionNumber:       old.VersionNumber + 1,
		PreviousVersionCode: lo.ToPtr(old.Code),
		Metadata:            metadata,
		CreatedAt:           now,
		CreatedBy:           actor,
		UpdatedAt:           now,
	}

	err = s.DB.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.SerialCodeRepo.Create(txCtx, record); err != nil {
			return err
		}
		if err := s.SerialCodeRepo.MarkSuperseded(txCtx, old.Code, newCode, now); err != nil {
			return err
		}
		return s.VersionRepo.Create(txCtx, &serialcode.Version{
			SerialCode:       old.Code,
			VersionNumber:    old.VersionNumber,
			ChangeReason:     req.ChangeReason,
			SupersededByCode: lo.ToPtr(newCode),
			CreatedAt:        now,
			CreatedBy:        actor,
		})
	})
	if err != nil {
		s.Logger.Errorw("failed to create new version",
			"code", code,
			"new_code", newCode,
			"error", err)
		return nil, err
	}

	s.Logger.Infow("created new serial code version",
		"code", code,
		"new_code", newCode,
		"version_number", record.VersionNumber)

	s.publishLifecycleEvent(ctx, types.SerialCodeActionSuperseded, old.Code, old.TenantCode, old.ReservationID, actor, now, types.Metadata{
		"superseded_by": newCode,
		"change_reason": req.ChangeReason,
	})
	s.publishLifecycleEvent(ctx, types.SerialCodeActionGenerated, newCode, old.TenantCode, nil, actor, now, types.Metadata{
		"entity_type":           record.EntityType,
		"entity_id":             record.EntityID,
		"version_number":        record.VersionNumber,
		"previous_version_code": old.Code,
	})

	return dto.ToSerialCodeResponse(record), nil
}

func alreadySuperseded(r *serialcode.Record) error {
	return ierr.NewError("serial code already superseded").
		WithHintf("Serial code %s was already superseded by %s", r.Code, lo.FromPtr(r.SupersededByCode)).
		WithReportableDetails(map[string]any{
			"code":               r.Code,
			"superseded_by_code": lo.FromPtr(r.SupersededByCode),
		}).
		Mark(ierr.ErrAlreadySuperseded)
}

func (s *versioningService) GetLatestVersion(ctx context.Context, code string) (*dto.LatestVersionResponse, error) {
	start, err := s.startRecord(ctx, code)
	if err != nil {
		return nil, err
	}

	chain, err := s.newLineageWalker().forward(ctx, start)
	if err != nil {
		return nil, err
	}

	latest := chain[len(chain)-1]
	return &dto.LatestVersionResponse{
		Code:          code,
		LatestCode:    latest.Code,
		VersionNumber: latest.VersionNumber,
	}, nil
}

func (s *versioningService) GetHistory(ctx context.Context, code string) (*dto.HistoryResponse, error) {
	start, err := s.startRecord(ctx, code)
	if err != nil {
		return nil, err
	}

	chain, err := s.resolveLineage(ctx, start)
	if err != nil {
		return nil, err
	}

	items, err := s.historyItems(ctx, chain)
	if err != nil {
		return nil, err
	}

	return &dto.HistoryResponse{
		Code:     code,
		Versions: items,
	}, nil
}

func (s *versioningService) startRecord(ctx context.Context, code string) (*serialcode.Record, error) {
	if _, _, err := serialcode.Parse(code); err != nil {
		return nil, err
	}
	return withReadRetry(ctx, s.settings(), s.Logger, "get_serial_code", func(ctx context.Context) (*serialcode.Record, error) {
		return s.SerialCodeRepo.Get(ctx, code)
	})
}

// historyItems joins a chain with its transition entries. The reason a
// version exists is stored on the entry of its predecessor.
func (p ServiceParams) historyItems(ctx context.Context, chain []*serialcode.Record) ([]*serialcode.HistoryItem, error) {
	codes := lo.Map(chain, func(r *serialcode.Record, _ int) string { return r.Code })

	versions, err := withReadRetry(ctx, p.settings(), p.Logger, "list_versions", func(ctx context.Context) ([]*serialcode.Version, error) {
		return p.VersionRepo.ListByCodes(ctx, codes)
	})
	if err != nil {
		return nil, err
	}

	reasonFor := make(map[string]string, len(versions))
	for _, v := range versions {
		if v.SupersededByCode != nil {
			reasonFor[*v.SupersededByCode] = v.ChangeReason
		}
	}

	return lo.Map(chain, func(r *serialcode.Record, _ int) *serialcode.HistoryItem {
		return &serialcode.HistoryItem{
			Code:             r.Code,
			VersionNumber:    r.VersionNumber,
			Status:           r.Status,
			ChangeReason:     reasonFor[r.Code],
			SupersededByCode: r.SupersededByCode,
			CreatedAt:        r.CreatedAt,
			CreatedBy:        r.CreatedBy,
		}
	}), nil
}
