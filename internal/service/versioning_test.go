package service

import (
	"net/http"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shahin-grc/serialcode/internal/api/dto"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/testutil"
	"github.com/shahin-grc/serialcode/internal/types"
	"github.com/stretchr/testify/suite"
)

type VersioningServiceSuite struct {
	testutil.BaseServiceTestSuite
	service     VersioningService
	serialCodes SerialCodeService
}

func TestVersioningService(t *testing.T) {
	suite.Run(t, new(VersioningServiceSuite))
}

func (s *VersioningServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	s.service = NewVersioningService(params)
	s.serialCodes = NewSerialCodeService(params)
}

// buildChain generates a code and supersedes it until the chain has n versions
func (s *VersioningServiceSuite) buildChain(n int) []string {
	first, err := s.serialCodes.Generate(s.GetContext(), &dto.GenerateSerialCodeRequest{
		EntityType: "incident",
		TenantCode: "ACME",
		EntityID:   "inc-1",
		Stage:      lo.ToPtr(1),
		Metadata:   types.Metadata{"severity": "low"},
	})
	s.Require().NoError(err)

	codes := []string{first.Code}
	for i := 1; i < n; i++ {
		s.GetClock().Advance(time.Hour)
		next, err := s.service.CreateNewVersion(s.GetContext(), codes[i-1], &dto.CreateVersionRequest{
			ChangeReason: "revision",
		})
		s.Require().NoError(err)
		codes = append(codes, next.Code)
	}
	return codes
}

func (s *VersioningServiceSuite) TestCreateNewVersion() {
	codes := s.buildChain(1)
	v1 := codes[0]

	s.GetClock().Advance(time.Hour)
	v2, err := s.service.CreateNewVersion(s.GetContext(), v1, &dto.CreateVersionRequest{
		ChangeReason: "severity reassessed",
	})
	s.Require().NoError(err)

	s.Equal("INC-ACME-1-2025-000002", v2.Code)
	s.Equal(2, v2.VersionNumber)
	s.Equal(v1, lo.FromPtr(v2.PreviousVersionCode))
	s.Equal(types.SerialCodeStatusActive, v2.Status)
	s.Equal("inc-1", v2.EntityID)
	s.Equal("incident", v2.EntityType)
	// metadata carries over when none is supplied
	s.Equal("low", v2.Metadata["severity"])

	old, err := s.serialCodes.GetByCode(s.GetContext(), v1)
	s.Require().NoError(err)
	s.Equal(types.SerialCodeStatusSuperseded, old.Status)
	s.Equal(v2.Code, lo.FromPtr(old.SupersededByCode))

	s.Equal([]types.SerialCodeAction{
		types.SerialCodeActionGenerated,
		types.SerialCodeActionSuperseded,
	}, s.GetPublisher().EventsFor(v1))
	s.Equal([]types.SerialCodeAction{
		types.SerialCodeActionGenerated,
	}, s.GetPublisher().EventsFor(v2.Code))
}

func (s *VersioningServiceSuite) TestCreateNewVersionRejectsSupersededAndVoided() {
	codes := s.buildChain(2)

	_, err := s.service.CreateNewVersion(s.GetContext(), codes[0], nil)
	s.True(ierr.Is(err, ierr.ErrAlreadySuperseded))
	s.Equal(http.StatusConflict, ierr.HTTPStatusFromErr(err))

	_, err = s.serialCodes.Void(s.GetContext(), codes[1], &dto.VoidSerialCodeRequest{Reason: "withdrawn"})
	s.Require().NoError(err)

	_, err = s.service.CreateNewVersion(s.GetContext(), codes[1], nil)
	s.True(ierr.Is(err, ierr.ErrCodeNotFound))

	_, err = s.service.CreateNewVersion(s.GetContext(), "INC-ACME-1-2025-000500", nil)
	s.True(ierr.Is(err, ierr.ErrCodeNotFound))

	_, err = s.service.CreateNewVersion(s.GetContext(), "inc-acme-1", nil)
	s.True(ierr.Is(err, ierr.ErrMalformedCode))

	// failed attempts issue nothing
	s.Equal(2, s.GetStores().CounterRepo.LastIssued(incAcmeKey))
}

func (s *VersioningServiceSuite) TestGetLatestVersionFromAnyLink() {
	codes := s.buildChain(3)

	for _, code := range codes {
		latest, err := s.service.GetLatestVersion(s.GetContext(), code)
		s.Require().NoError(err)
		s.Equal(code, latest.Code)
		s.Equal(codes[2], latest.LatestCode)
		s.Equal(3, latest.VersionNumber)
	}
}

func (s *VersioningServiceSuite) TestGetHistory() {
	codes := s.buildChain(1)

	s.GetClock().Advance(time.Hour)
	v2, err := s.service.CreateNewVersion(s.GetContext(), codes[0], &dto.CreateVersionRequest{ChangeReason: "scope changed"})
	s.Require().NoError(err)
	s.GetClock().Advance(time.Hour)
	v3, err := s.service.CreateNewVersion(s.GetContext(), v2.Code, &dto.CreateVersionRequest{ChangeReason: "owner changed"})
	s.Require().NoError(err)

	for _, code := range []string{codes[0], v2.Code, v3.Code} {
		history, err := s.service.GetHistory(s.GetContext(), code)
		s.Require().NoError(err)
		s.Equal(code, history.Code)
		s.Require().Len(history.Versions, 3)

		s.Equal([]string{codes[0], v2.Code, v3.Code}, lo.Map(history.Versions, func(h *serialcode.HistoryItem, _ int) string { return h.Code }))
		s.Equal([]int{1, 2, 3}, lo.Map(history.Versions, func(h *serialcode.HistoryItem, _ int) int { return h.VersionNumber }))

		s.Empty(history.Versions[0].ChangeReason)
		s.Equal("scope changed", history.Versions[1].ChangeReason)
		s.Equal("owner changed", history.Versions[2].ChangeReason)

		s.Equal(types.SerialCodeStatusSuperseded, history.Versions[0].Status)
		s.Equal(types.SerialCodeStatusActive, history.Versions[2].Status)
		s.Nil(history.Versions[2].SupersededByCode)
	}
}

func (s *VersioningServiceSuite) corrupt(code string, fn func(r *serialcode.Record)) {
	store := s.GetStores().SerialCodeRepo
	record, err := store.Get(s.GetContext(), code)
	s.Require().NoError(err)
	fn(record)
	s.Require().NoError(store.Overwrite(s.GetContext(), record))
}

func (s *VersioningServiceSuite) assertCorrupt(err error) {
	s.Require().Error(err)
	s.True(ierr.Is(err, ierr.ErrCorruptLineage), "expected corrupt lineage, got %v", err)
	s.Equal(http.StatusInternalServerError, ierr.HTTPStatusFromErr(err))
}

func (s *VersioningServiceSuite) TestCorruptLineageCycle() {
	codes := s.buildChain(2)
	s.corrupt(codes[1], func(r *serialcode.Record) {
		r.SupersededByCode = lo.ToPtr(codes[0])
	})

	_, err := s.service.GetLatestVersion(s.GetContext(), codes[0])
	s.assertCorrupt(err)

	_, err = s.service.GetHistory(s.GetContext(), codes[1])
	s.assertCorrupt(err)
}

func (s *VersioningServiceSuite) TestCorruptLineageDanglingLink() {
	codes := s.buildChain(1)
	s.corrupt(codes[0], func(r *serialcode.Record) {
		r.SupersededByCode = lo.ToPtr("INC-ACME-1-2025-999999")
	})

	_, err := s.service.GetLatestVersion(s.GetContext(), codes[0])
	s.assertCorrupt(err)
}

func (s *VersioningServiceSuite) TestCorruptLineageBrokenBackLink() {
	codes := s.buildChain(2)
	s.corrupt(codes[1], func(r *serialcode.Record) {
		r.PreviousVersionCode = lo.ToPtr("INC-ACME-1-2025-000077")
	})

	_, err := s.service.GetLatestVersion(s.GetContext(), codes[0])
	s.assertCorrupt(err)
}

func (s *VersioningServiceSuite) TestCorruptLineageHopLimit() {
	codes := s.buildChain(4)

	cfg := s.GetConfig()
	previous := cfg.SerialCode.MaxLineageHops
	cfg.SerialCode.MaxLineageHops = 2
	defer func() { cfg.SerialCode.MaxLineageHops = previous }()

	_, err := s.service.GetLatestVersion(s.GetContext(), codes[0])
	s.assertCorrupt(err)

	// a walk inside the budget still works
	latest, err := s.service.GetLatestVersion(s.GetContext(), codes[2])
	s.Require().NoError(err)
	s.Equal(codes[3], latest.LatestCode)
}
