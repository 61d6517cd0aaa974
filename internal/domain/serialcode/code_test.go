package serialcode

import (
	"testing"
	"time"

	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		key      SequenceKey
		sequence int
		want     string
		wantErr  error
	}{
		{
			name:     "incident",
			key:      SequenceKey{Prefix: "INC", TenantCode: "ACME", Stage: 1, Year: 2025},
			sequence: 42,
			want:     "INC-ACME-1-2025-000042",
		},
		{
			name:     "subtype prefix",
			key:      SequenceKey{Prefix: "ASM-F", TenantCode: "GRC01", Stage: 1, Year: 2024},
			sequence: 999999,
			want:     "ASM-F-GRC01-1-2024-999999",
		},
		{
			name:     "zero sequence",
			key:      SequenceKey{Prefix: "INC", TenantCode: "ACME", Stage: 1, Year: 2025},
			sequence: 0,
			wantErr:  ierr.ErrValidation,
		},
		{
			name:     "sequence overflow",
			key:      SequenceKey{Prefix: "INC", TenantCode: "ACME", Stage: 1, Year: 2025},
			sequence: MaxSequence + 1,
			wantErr:  ierr.ErrValidation,
		},
		{
			name:     "reserved tenant",
			key:      SequenceKey{Prefix: "INC", TenantCode: "ROOT", Stage: 1, Year: 2025},
			sequence: 1,
			wantErr:  ierr.ErrValidation,
		},
		{
			name:     "empty prefix",
			key:      SequenceKey{TenantCode: "ACME", Stage: 1, Year: 2025},
			sequence: 1,
			wantErr:  ierr.ErrValidation,
		},
		{
			name:     "stage out of range",
			key:      SequenceKey{Prefix: "INC", TenantCode: "ACME", Stage: 10, Year: 2025},
			sequence: 1,
			wantErr:  ierr.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Format(tt.key, tt.sequence)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, ierr.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"INC-ACME-1-2025",
		"INC-ACME-1-2025-42",
		"INC-ACME-1-2025-000000",
		"inc-acme-1-2025-000042",
		" INC-ACME-1-2025-000042",
		"INC-ACME-12-2025-000042",
		"INC-ACME-X-2025-000042",
		"INC-ACME-1-25-000042",
		"INC-SYS-1-2025-000042",
		"I-ACME-1-2025-000042",
		"ASM-FF-ACME-1-2025-000042",
		"A-B-C-ACME-1-2025-000042",
		"INC-ACME-1-2025-0000421",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, _, err := Parse(in)
			require.Error(t, err)
			assert.True(t, ierr.Is(err, ierr.ErrMalformedCode))

			res := Validate(in, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
			assert.False(t, res.IsValid)
			assert.NotEmpty(t, res.Reason)
		})
	}
}

func TestParse_SubtypePrefix(t *testing.T) {
	key, seq, err := Parse("RSK-T-ACME-2-2025-000007")
	require.NoError(t, err)
	assert.Equal(t, SequenceKey{Prefix: "RSK-T", TenantCode: "ACME", Stage: 2, Year: 2025}, key)
	assert.Equal(t, 7, seq)
}

func TestFormatParseRoundTrip(t *testing.T) {
	prefixes := []string{"INC", "ASM-F", "CTL", "SUS-K", "ABCDE", "ABCDE-Z"}
	tenants := []string{"ACME", "GRC", "T0001", "ZZZZZZ"}
	sequences := []int{1, 9, 42, 1000, 123456, MaxSequence}

	for _, p := range prefixes {
		for _, tc := range tenants {
			for stage := MinStage; stage <= MaxStage; stage++ {
				for _, year := range []int{MinYear, 2025, MaxYear} {
					for _, seq := range sequences {
						key := SequenceKey{Prefix: p, TenantCode: tc, Stage: stage, Year: year}
						code, err := Format(key, seq)
						require.NoError(t, err)

						gotKey, gotSeq, err := Parse(code)
						require.NoError(t, err, code)
						require.Equal(t, key, gotKey, code)
						require.Equal(t, seq, gotSeq, code)
					}
				}
			}
		}
	}
}

func TestValidate_Warnings(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	res := Validate("INC-ACME-1-2025-000042", now)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Warnings)
	require.NotNil(t, res.Key)
	assert.Equal(t, "INC", res.Key.Prefix)
	assert.Equal(t, 42, res.Sequence)

	res = Validate("INC-ACME-1-1999-000042", now)
	assert.True(t, res.IsValid)
	assert.Len(t, res.Warnings, 1)

	res = Validate("INC-ACME-1-2027-000042", now)
	assert.True(t, res.IsValid)
	assert.Len(t, res.Warnings, 1)
}

func TestNewSequenceKey_Normalizes(t *testing.T) {
	key, err := NewSequenceKey(" inc ", "acme", 1, 2025)
	require.NoError(t, err)
	assert.Equal(t, "INC", key.Prefix)
	assert.Equal(t, "ACME", key.TenantCode)

	_, err = NewSequenceKey("INC", "AC", 1, 2025)
	assert.True(t, ierr.IsValidation(err))
}

func TestResolvePrefix(t *testing.T) {
	tests := []struct {
		entityType string
		prefix     string
		stage      int
		wantErr    bool
	}{
		{entityType: "incident", prefix: "INC", stage: 0},
		{entityType: "Assessment_Finding", prefix: "ASM-F", stage: 1},
		{entityType: "certification", prefix: "SUS-C", stage: 6},
		{entityType: "INC", prefix: "INC", stage: 0},
		{entityType: "rsk-t", prefix: "RSK-T", stage: 2},
		{entityType: "supplier", prefix: "SUP", stage: 0},
		{entityType: "assessmentquestion", prefix: "ASM-Q", stage: 1},
		{entityType: "riskTreatment", prefix: "RSK-T", stage: 2},
		{entityType: "Action Plan", prefix: "ACT", stage: 0},
		{entityType: "actionplan", prefix: "ACT", stage: 0},
		{entityType: "user", prefix: "USR", stage: 0},
		{entityType: "tenant", prefix: "TEN", stage: 0},
		{entityType: "ab", wantErr: true},
		{entityType: "x1", wantErr: true},
		{entityType: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.entityType, func(t *testing.T) {
			info, err := ResolvePrefix(tt.entityType)
			if tt.wantErr {
				assert.True(t, ierr.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.prefix, info.Prefix)
			assert.Equal(t, tt.stage, info.DefaultStage)
			assert.True(t, IsValidPrefix(info.Prefix))
		})
	}
}

func TestRegistryPrefixesAreWellFormed(t *testing.T) {
	seen := map[string]bool{}
	for _, info := range Registry() {
		assert.True(t, IsValidPrefix(info.Prefix), info.Prefix)
		assert.True(t, IsValidStage(info.DefaultStage))
		assert.False(t, seen[info.Prefix], "duplicate prefix %s", info.Prefix)
		seen[info.Prefix] = true
	}
}
