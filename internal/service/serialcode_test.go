package service

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shahin-grc/serialcode/internal/api/dto"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/testutil"
	"github.com/shahin-grc/serialcode/internal/types"
	"github.com/sourcegraph/conc/pool"
	"github.com/stretchr/testify/suite"
)

var incAcmeKey = serialcode.SequenceKey{Prefix: "INC", TenantCode: "ACME", Stage: 1, Year: 2025}

type SerialCodeServiceSuite struct {
	testutil.BaseServiceTestSuite
	service   SerialCodeService
	allocator SequenceAllocator
}

func TestSerialCodeService(t *testing.T) {
	suite.Run(t, new(SerialCodeServiceSuite))
}

func (s *SerialCodeServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	s.service = NewSerialCodeService(params)
	s.allocator = NewSequenceAllocator(params)
}

func newTestServiceParams(s *testutil.BaseServiceTestSuite) ServiceParams {
	stores := s.GetStores()
	return NewServiceParams(
		s.GetLogger(),
		s.GetConfig(),
		s.GetDB(),
		s.GetClock(),
		nil,
		s.GetCache(),
		stores.CounterRepo,
		stores.SerialCodeRepo,
		stores.VersionRepo,
		stores.AuditRepo,
		stores.ReservationRepo,
		s.GetPublisher(),
	)
}

func generateIncident(entityID string) *dto.GenerateSerialCodeRequest {
	return &dto.GenerateSerialCodeRequest{
		EntityType: "incident",
		TenantCode: "acme",
		EntityID:   entityID,
		Stage:      lo.ToPtr(1),
	}
}

func (s *SerialCodeServiceSuite) TestGenerate() {
	resp, err := s.service.Generate(s.GetContext(), generateIncident("inc-1"))
	s.Require().NoError(err)

	s.Equal("INC-ACME-1-2025-000001", resp.Code)
	s.Equal(incAcmeKey, resp.SequenceKey)
	s.Equal(1, resp.Sequence)
	s.Equal("incident", resp.EntityType)
	s.Equal("inc-1", resp.EntityID)
	s.Equal(types.SerialCodeStatusActive, resp.Status)
	s.Equal(1, resp.VersionNumber)
	s.Nil(resp.PreviousVersionCode)
	s.Equal("user_test", resp.CreatedBy)
	s.Equal(s.GetNow(), resp.CreatedAt)

	s.Equal([]types.SerialCodeAction{types.SerialCodeActionGenerated}, s.GetPublisher().EventsFor(resp.Code))
}

func (s *SerialCodeServiceSuite) TestGenerateDefaults() {
	resp, err := s.service.Generate(s.GetContext(), &dto.GenerateSerialCodeRequest{
		EntityType: "assessment_finding",
		TenantCode: "globex",
		EntityID:   "f-9",
		CreatedBy:  "auditor",
	})
	s.Require().NoError(err)

	// registry stage and current year
	s.Equal("ASM-F-GLOBEX-1-2025-000001", resp.Code)
	s.Equal("auditor", resp.CreatedBy)
	s.NotNil(resp.Metadata)
}

func (s *SerialCodeServiceSuite) TestGenerateValidation() {
	tests := []struct {
		name string
		req  *dto.GenerateSerialCodeRequest
	}{
		{
			name: "missing entity id",
			req:  &dto.GenerateSerialCodeRequest{EntityType: "incident", TenantCode: "ACME", Stage: lo.ToPtr(1)},
		},
		{
			name: "reserved tenant",
			req:  &dto.GenerateSerialCodeRequest{EntityType: "incident", TenantCode: "test", EntityID: "x", Stage: lo.ToPtr(1)},
		},
		{
			name: "tenant too long",
			req:  &dto.GenerateSerialCodeRequest{EntityType: "incident", TenantCode: "ACMECORP", EntityID: "x", Stage: lo.ToPtr(1)},
		},
		{
			name: "stage out of range",
			req:  &dto.GenerateSerialCodeRequest{EntityType: "incident", TenantCode: "ACME", EntityID: "x", Stage: lo.ToPtr(12)},
		},
		{
			name: "entity type too short",
			req:  &dto.GenerateSerialCodeRequest{EntityType: "ab", TenantCode: "ACME", EntityID: "x"},
		},
		{
			name: "nested metadata",
			req: &dto.GenerateSerialCodeRequest{
				EntityType: "incident",
				TenantCode: "ACME",
				EntityID:   "x",
				Stage:      lo.ToPtr(1),
				Metadata:   types.Metadata{"nested": map[string]any{"a": 1}},
			},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.Generate(s.GetContext(), tt.req)
			s.Require().Error(err)
			s.True(ierr.IsValidation(err), "expected validation error, got %v", err)
			s.Equal(http.StatusBadRequest, ierr.HTTPStatusFromErr(err))
		})
	}

	s.Zero(s.GetStores().CounterRepo.LastIssued(incAcmeKey))
}

func (s *SerialCodeServiceSuite) TestIssueNextIsUniqueUnderConcurrency() {
	const calls = 1000

	var mu sync.Mutex
	issued := make([]int, 0, calls)

	p := pool.New().WithMaxGoroutines(50)
	for i := 0; i < calls; i++ {
		p.Go(func() {
			seq, err := s.allocator.IssueNext(s.GetContext(), incAcmeKey)
			s.NoError(err)
			mu.Lock()
			issued = append(issued, seq)
			mu.Unlock()
		})
	}
	p.Wait()

	s.Len(lo.Uniq(issued), calls)
	sort.Ints(issued)
	s.Equal(1, issued[0])
	s.Equal(calls, issued[calls-1])
	s.Equal(calls, s.GetStores().CounterRepo.LastIssued(incAcmeKey))
}

func (s *SerialCodeServiceSuite) TestConcurrentGenerateNeverCollides() {
	var mu sync.Mutex
	var sequences []int

	p := pool.New().WithMaxGoroutines(2)
	for i := 0; i < 2; i++ {
		p.Go(func() {
			resp, err := s.service.Generate(s.GetContext(), generateIncident("shared"))
			s.NoError(err)
			if resp != nil {
				mu.Lock()
				sequences = append(sequences, resp.Sequence)
				mu.Unlock()
			}
		})
	}
	p.Wait()

	sort.Ints(sequences)
	s.Equal([]int{1, 2}, sequences)
}

func (s *SerialCodeServiceSuite) TestKeysAreIndependent() {
	acme, err := s.service.Generate(s.GetContext(), generateIncident("a"))
	s.Require().NoError(err)

	other := generateIncident("b")
	other.Stage = lo.ToPtr(2)
	stage2, err := s.service.Generate(s.GetContext(), other)
	s.Require().NoError(err)

	s.Equal(1, acme.Sequence)
	s.Equal(1, stage2.Sequence)
	s.Equal("INC-ACME-2-2025-000001", stage2.Code)
}

func (s *SerialCodeServiceSuite) TestStorageUnavailableIssuesNothing() {
	counters := s.GetStores().CounterRepo
	counters.FailWith(ierr.NewError("connection refused").Mark(ierr.ErrStorageUnavailable))

	_, err := s.service.Generate(s.GetContext(), generateIncident("inc-1"))
	s.Require().Error(err)
	s.True(ierr.IsRetryable(err))
	s.Equal(http.StatusServiceUnavailable, ierr.HTTPStatusFromErr(err))

	count, err := s.GetStores().SerialCodeRepo.Count(s.GetContext(), &types.SerialCodeFilter{IncludeVoided: true})
	s.NoError(err)
	s.Zero(count)

	counters.FailWith(nil)
	resp, err := s.service.Generate(s.GetContext(), generateIncident("inc-1"))
	s.Require().NoError(err)
	s.Equal("INC-ACME-1-2025-000001", resp.Code)
}

func (s *SerialCodeServiceSuite) TestSequenceExhausted() {
	s.GetStores().CounterRepo.Seed(incAcmeKey, serialcode.MaxSequence)

	_, err := s.service.Generate(s.GetContext(), generateIncident("inc-1"))
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))

	// the overflowing value is still consumed
	s.Equal(serialcode.MaxSequence+1, s.GetStores().CounterRepo.LastIssued(incAcmeKey))
}

func (s *SerialCodeServiceSuite) TestGenerateBatchReportsEachItem() {
	resp, err := s.service.GenerateBatch(s.GetContext(), &dto.GenerateBatchRequest{
		Items: []dto.GenerateSerialCodeRequest{
			*generateIncident("a"),
			{EntityType: "incident", TenantCode: "SYS", EntityID: "b", Stage: lo.ToPtr(1)},
			*generateIncident("c"),
		},
	})
	s.Require().NoError(err)

	s.Equal(3, resp.Total)
	s.Equal(2, resp.Succeeded)
	s.Equal(1, resp.Failed)
	s.Require().Len(resp.Items, 3)

	for i, item := range resp.Items {
		s.Equal(i, item.Index)
	}
	s.True(resp.Items[0].Success)
	s.Equal("a", resp.Items[0].Result.EntityID)
	s.False(resp.Items[1].Success)
	s.Nil(resp.Items[1].Result)
	s.Equal(ierr.ErrCodeValidation, resp.Items[1].Error.Code)
	s.True(resp.Items[2].Success)
	s.Equal("c", resp.Items[2].Result.EntityID)

	seqs := []int{resp.Items[0].Result.Sequence, resp.Items[2].Result.Sequence}
	sort.Ints(seqs)
	s.Equal([]int{1, 2}, seqs)
}

func (s *SerialCodeServiceSuite) TestGenerateBatchLimits() {
	_, err := s.service.GenerateBatch(s.GetContext(), &dto.GenerateBatchRequest{})
	s.True(ierr.IsValidation(err))

	items := make([]dto.GenerateSerialCodeRequest, s.GetConfig().SerialCode.MaxBatchSize+1)
	for i := range items {
		items[i] = *generateIncident("x")
	}
	_, err = s.service.GenerateBatch(s.GetContext(), &dto.GenerateBatchRequest{Items: items})
	s.True(ierr.IsValidation(err))
	s.Zero(s.GetStores().CounterRepo.LastIssued(incAcmeKey))
}

func (s *SerialCodeServiceSuite) TestGetByCode() {
	created, err := s.service.Generate(s.GetContext(), generateIncident("inc-1"))
	s.Require().NoError(err)

	found, err := s.service.GetByCode(s.GetContext(), created.Code)
	s.Require().NoError(err)
	s.Equal(created.Code, found.Code)

	_, err = s.service.GetByCode(s.GetContext(), "INC-ACME-1-2025-000999")
	s.True(ierr.Is(err, ierr.ErrCodeNotFound))
	s.Equal(http.StatusNotFound, ierr.HTTPStatusFromErr(err))

	_, err = s.service.GetByCode(s.GetContext(), "not-a-code")
	s.True(ierr.Is(err, ierr.ErrMalformedCode))
	s.Equal(http.StatusBadRequest, ierr.HTTPStatusFromErr(err))
}

func (s *SerialCodeServiceSuite) TestExists() {
	created, err := s.service.Generate(s.GetContext(), generateIncident("inc-1"))
	s.Require().NoError(err)

	ok, err := s.service.Exists(s.GetContext(), created.Code)
	s.NoError(err)
	s.True(ok)

	ok, err = s.service.Exists(s.GetContext(), "INC-ACME-1-2025-000002")
	s.NoError(err)
	s.False(ok)

	ok, err = s.service.Exists(s.GetContext(), "inc-acme")
	s.NoError(err)
	s.False(ok)
}

func (s *SerialCodeServiceSuite) TestGetByEntityPrefersActive() {
	first, err := s.service.Generate(s.GetContext(), generateIncident("inc-7"))
	s.Require().NoError(err)

	s.GetClock().Advance(time.Minute)
	second, err := s.service.Generate(s.GetContext(), generateIncident("inc-7"))
	s.Require().NoError(err)

	_, err = s.service.Void(s.GetContext(), second.Code, &dto.VoidSerialCodeRequest{Reason: "duplicate"})
	s.Require().NoError(err)

	// the newest record is voided, the active one wins
	got, err := s.service.GetByEntity(s.GetContext(), "INC", "inc-7")
	s.Require().NoError(err)
	s.Equal(first.Code, got.Code)

	_, err = s.service.GetByEntity(s.GetContext(), "incident", "missing")
	s.True(ierr.Is(err, ierr.ErrCodeNotFound))

	_, err = s.service.GetByEntity(s.GetContext(), "incident", " ")
	s.True(ierr.IsValidation(err))
}

func (s *SerialCodeServiceSuite) TestVoidIsNonDestructive() {
	created, err := s.service.Generate(s.GetContext(), generateIncident("inc-1"))
	s.Require().NoError(err)

	s.GetClock().Advance(time.Hour)
	voided, err := s.service.Void(s.GetContext(), created.Code, &dto.VoidSerialCodeRequest{Reason: "raised in error"})
	s.Require().NoError(err)
	s.Equal(types.SerialCodeStatusVoided, voided.Status)
	s.Equal("raised in error", lo.FromPtr(voided.VoidReason))
	s.Equal(s.GetNow(), lo.FromPtr(voided.VoidedAt))

	found, err := s.service.GetByCode(s.GetContext(), created.Code)
	s.Require().NoError(err)
	s.Equal(types.SerialCodeStatusVoided, found.Status)

	active, err := s.service.Search(s.GetContext(), &types.SerialCodeFilter{TenantCode: "ACME"})
	s.Require().NoError(err)
	s.Zero(active.Pagination.Total)
	s.Empty(active.Items)

	all, err := s.service.Search(s.GetContext(), &types.SerialCodeFilter{TenantCode: "ACME", IncludeVoided: true})
	s.Require().NoError(err)
	s.Equal(1, all.Pagination.Total)

	byStatus, err := s.service.Search(s.GetContext(), &types.SerialCodeFilter{Status: lo.ToPtr(types.SerialCodeStatusVoided)})
	s.Require().NoError(err)
	s.Equal(1, byStatus.Pagination.Total)

	_, err = s.service.Void(s.GetContext(), created.Code, &dto.VoidSerialCodeRequest{Reason: "again"})
	s.True(ierr.IsInvalidOperation(err))

	_, err = s.service.Void(s.GetContext(), created.Code, &dto.VoidSerialCodeRequest{})
	s.True(ierr.IsValidation(err))

	s.Equal([]types.SerialCodeAction{
		types.SerialCodeActionGenerated,
		types.SerialCodeActionVoided,
	}, s.GetPublisher().EventsFor(created.Code))
}

func (s *SerialCodeServiceSuite) TestLifecycleEventsCarryContext() {
	created, err := s.service.Generate(s.GetContext(), generateIncident("inc-1"))
	s.Require().NoError(err)

	s.GetClock().Advance(time.Hour)
	_, err = s.service.Void(s.GetContext(), created.Code, &dto.VoidSerialCodeRequest{Reason: "raised in error"})
	s.Require().NoError(err)

	events := s.GetPublisher().Events()
	s.Require().Len(events, 2)

	for _, e := range events {
		s.True(strings.HasPrefix(e.ID, types.UUID_PREFIX_EVENT+"_"), e.ID)
		s.Equal(created.Code, e.Code)
		s.Equal("ACME", e.TenantCode)
		s.Equal("user_test", e.Actor)
		s.Equal(types.GetRequestID(s.GetContext()), e.RequestID)
	}
	s.NotEqual(events[0].ID, events[1].ID)

	voided := events[1]
	s.Equal(types.SerialCodeActionVoided, voided.Action)
	s.Equal(s.GetNow(), voided.Timestamp)
	s.Equal("raised in error", voided.Details["reason"])
}

func (s *SerialCodeServiceSuite) TestPublishFailureDoesNotFailOperation() {
	s.GetPublisher().SetConsumer(func(ctx context.Context, event *serialcode.LifecycleEvent) error {
		return ierr.NewError("broker down").Mark(ierr.ErrStorageUnavailable)
	})

	created, err := s.service.Generate(s.GetContext(), generateIncident("inc-1"))
	s.Require().NoError(err)

	found, err := s.service.GetByCode(s.GetContext(), created.Code)
	s.Require().NoError(err)
	s.Equal(types.SerialCodeStatusActive, found.Status)
	s.Equal([]types.SerialCodeAction{types.SerialCodeActionGenerated}, s.GetPublisher().EventsFor(created.Code))
}

func (s *SerialCodeServiceSuite) seedSearchData() {
	for i := 0; i < 3; i++ {
		_, err := s.service.Generate(s.GetContext(), generateIncident("acme-inc"))
		s.Require().NoError(err)
	}
	for i := 0; i < 2; i++ {
		_, err := s.service.Generate(s.GetContext(), &dto.GenerateSerialCodeRequest{
			EntityType: "risk",
			TenantCode: "GLOBEX",
			EntityID:   "risk-1",
		})
		s.Require().NoError(err)
	}
}

func (s *SerialCodeServiceSuite) TestSearch() {
	s.seedSearchData()

	tests := []struct {
		name      string
		filter    *types.SerialCodeFilter
		wantTotal int
		wantItems int
		hasMore   bool
	}{
		{"everything", nil, 5, 5, false},
		{"tenant is case insensitive", &types.SerialCodeFilter{TenantCode: "acme"}, 3, 3, false},
		{"stage", &types.SerialCodeFilter{Stage: lo.ToPtr(2)}, 2, 2, false},
		{"entity type by prefix", &types.SerialCodeFilter{EntityType: "RSK"}, 2, 2, false},
		{"prefix and year", &types.SerialCodeFilter{Prefix: "INC", Year: lo.ToPtr(2025)}, 3, 3, false},
		{"other year", &types.SerialCodeFilter{Year: lo.ToPtr(2024)}, 0, 0, false},
		{"sequence range", &types.SerialCodeFilter{Prefix: "INC", SequenceFrom: lo.ToPtr(2), SequenceTo: lo.ToPtr(3)}, 2, 2, false},
		{"paged", &types.SerialCodeFilter{Limit: lo.ToPtr(2)}, 5, 2, true},
		{"last page", &types.SerialCodeFilter{Limit: lo.ToPtr(2), Offset: lo.ToPtr(4)}, 5, 1, false},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			resp, err := s.service.Search(s.GetContext(), tt.filter)
			s.Require().NoError(err)
			s.Equal(tt.wantTotal, resp.Pagination.Total)
			s.Len(resp.Items, tt.wantItems)
			s.Equal(tt.hasMore, resp.Pagination.HasMore)
		})
	}
}

func (s *SerialCodeServiceSuite) TestSearchOrderingAndCap() {
	s.seedSearchData()

	resp, err := s.service.Search(s.GetContext(), &types.SerialCodeFilter{Prefix: "INC", Limit: lo.ToPtr(1000)})
	s.Require().NoError(err)
	s.Equal(types.SerialCodeHardPageLimit, resp.Pagination.Limit)

	codes := lo.Map(resp.Items, func(r *dto.SerialCodeResponse, _ int) string { return r.Code })
	s.Equal([]string{
		"INC-ACME-1-2025-000003",
		"INC-ACME-1-2025-000002",
		"INC-ACME-1-2025-000001",
	}, codes)

	_, err = s.service.Search(s.GetContext(), &types.SerialCodeFilter{SequenceFrom: lo.ToPtr(5), SequenceTo: lo.ToPtr(1)})
	s.True(ierr.IsValidation(err))
}

func (s *SerialCodeServiceSuite) TestListShortcuts() {
	s.seedSearchData()

	byPrefix, err := s.service.ListByPrefix(s.GetContext(), "rsk", 10, 0)
	s.Require().NoError(err)
	s.Equal(2, byPrefix.Pagination.Total)

	byTenant, err := s.service.ListByTenant(s.GetContext(), "acme", 2, 0)
	s.Require().NoError(err)
	s.Equal(3, byTenant.Pagination.Total)
	s.Len(byTenant.Items, 2)

	byStage, err := s.service.ListByStage(s.GetContext(), 1, 0, 0)
	s.Require().NoError(err)
	s.Equal(3, byStage.Pagination.Total)
	s.Equal(s.GetConfig().SerialCode.DefaultPageSize, byStage.Pagination.Limit)

	_, err = s.service.ListByPrefix(s.GetContext(), "toolong", 10, 0)
	s.True(ierr.IsValidation(err))
	_, err = s.service.ListByTenant(s.GetContext(), "root", 10, 0)
	s.True(ierr.IsValidation(err))
	_, err = s.service.ListByStage(s.GetContext(), 10, 10, 0)
	s.True(ierr.IsValidation(err))
}

func (s *SerialCodeServiceSuite) TestValidateAndParse() {
	result := s.service.Validate(s.GetContext(), "INC-ACME-1-2025-000042")
	s.True(result.IsValid)
	s.Empty(result.Warnings)
	s.Equal(42, result.Sequence)

	old := s.service.Validate(s.GetContext(), "INC-ACME-1-2019-000001")
	s.True(old.IsValid)
	s.Len(old.Warnings, 1)

	bad := s.service.Validate(s.GetContext(), "INC-ACME-1-2025-42")
	s.False(bad.IsValid)
	s.NotEmpty(bad.Reason)

	parsed, err := s.service.Parse(s.GetContext(), "ASM-F-ACME-3-2025-000007")
	s.Require().NoError(err)
	s.Equal("ASM-F", parsed.Prefix)
	s.Equal("ACME", parsed.TenantCode)
	s.Equal(3, parsed.Stage)
	s.Equal(2025, parsed.Year)
	s.Equal(7, parsed.Sequence)
	s.Equal("assessment_finding", parsed.EntityType)

	_, err = s.service.Parse(s.GetContext(), "INC-ACME-1-2025")
	s.True(ierr.Is(err, ierr.ErrMalformedCode))
}

func (s *SerialCodeServiceSuite) TestGetNextSequenceIsOnlyAPreview() {
	req := &dto.NextSequenceRequest{Prefix: "inc", TenantCode: "acme", Stage: lo.ToPtr(1)}

	first, err := s.service.GetNextSequence(s.GetContext(), req)
	s.Require().NoError(err)
	s.Equal(1, first.NextSequence)
	s.Equal("INC-ACME-1-2025-000001", first.PreviewCode)
	s.False(first.Reserved)

	again, err := s.service.GetNextSequence(s.GetContext(), req)
	s.Require().NoError(err)
	s.Equal(1, again.NextSequence)
	s.Zero(s.GetStores().CounterRepo.LastIssued(incAcmeKey))

	// another caller takes the previewed value
	_, err = s.service.Generate(s.GetContext(), generateIncident("inc-1"))
	s.Require().NoError(err)

	after, err := s.service.GetNextSequence(s.GetContext(), &dto.NextSequenceRequest{
		EntityType: "incident",
		TenantCode: "ACME",
		Stage:      lo.ToPtr(1),
		Year:       lo.ToPtr(2025),
	})
	s.Require().NoError(err)
	s.Equal(2, after.NextSequence)

	_, err = s.service.GetNextSequence(s.GetContext(), &dto.NextSequenceRequest{TenantCode: "ACME"})
	s.True(ierr.IsValidation(err))
}
