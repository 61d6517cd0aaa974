package serialcode

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ierr "github.com/shahin-grc/serialcode/internal/errors"
)

const (
	// Separator joins the segments of a canonical code
	Separator = "-"

	// SequenceWidth is the zero-padded width of the sequence segment
	SequenceWidth = 6
	// MaxSequence is the largest sequence a single key can issue
	MaxSequence = 999999

	MinStage = 0
	MaxStage = 9

	MinYear = 1000
	MaxYear = 9999
)

var (
	prefixPattern   = regexp.MustCompile(`^[A-Z]{2,5}(-[A-Z])?$`)
	tenantPattern   = regexp.MustCompile(`^[A-Z0-9]{3,6}$`)
	sequencePattern = regexp.MustCompile(`^[0-9]{6}$`)

	reservedTenantCodes = map[string]struct{}{
		"SYS":  {},
		"ADM":  {},
		"ROOT": {},
		"NULL": {},
		"TEST": {},
	}
)

// SequenceKey scopes one monotonically increasing counter
type SequenceKey struct {
	Prefix     string `json:"prefix" db:"prefix"`
	TenantCode string `json:"tenant_code" db:"tenant_code"`
	Stage      int    `json:"stage" db:"stage"`
	Year       int    `json:"year" db:"year"`
}

// NewSequenceKey normalizes casing and validates every component
func NewSequenceKey(prefix, tenantCode string, stage, year int) (SequenceKey, error) {
	key := SequenceKey{
		Prefix:     strings.ToUpper(strings.TrimSpace(prefix)),
		TenantCode: strings.ToUpper(strings.TrimSpace(tenantCode)),
		Stage:      stage,
		Year:       year,
	}
	if err := key.Validate(); err != nil {
		return SequenceKey{}, err
	}
	return key, nil
}

func (k SequenceKey) Validate() error {
	if k.Prefix == "" {
		return ierr.NewError("prefix is required").
			WithHint("Prefix is required").
			Mark(ierr.ErrValidation)
	}
	if !IsValidPrefix(k.Prefix) {
		return ierr.NewError("invalid prefix").
			WithHint("Prefix must be 2-5 uppercase letters with an optional one letter subtype").
			WithReportableDetails(map[string]any{"prefix": k.Prefix}).
			Mark(ierr.ErrValidation)
	}
	if k.TenantCode == "" {
		return ierr.NewError("tenant code is required").
			WithHint("Tenant code is required").
			Mark(ierr.ErrValidation)
	}
	if !IsValidTenantCode(k.TenantCode) {
		return ierr.NewError("invalid tenant code").
			WithHint("Tenant code must be 3-6 uppercase alphanumeric characters and not reserved").
			WithReportableDetails(map[string]any{"tenant_code": k.TenantCode}).
			Mark(ierr.ErrValidation)
	}
	if !IsValidStage(k.Stage) {
		return ierr.NewError("invalid stage").
			WithHintf("Stage must be between %d and %d", MinStage, MaxStage).
			WithReportableDetails(map[string]any{"stage": k.Stage}).
			Mark(ierr.ErrValidation)
	}
	if k.Year < MinYear || k.Year > MaxYear {
		return ierr.NewError("invalid year").
			WithHint("Year must have four digits").
			WithReportableDetails(map[string]any{"year": k.Year}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (k SequenceKey) String() string {
	return fmt.Sprintf("%s%s%s%s%d%s%04d", k.Prefix, Separator, k.TenantCode, Separator, k.Stage, Separator, k.Year)
}

// IsValidPrefix reports whether p is a well formed code prefix
func IsValidPrefix(p string) bool {
	return prefixPattern.MatchString(p)
}

// IsValidTenantCode reports whether t is a well formed, non reserved tenant code
func IsValidTenantCode(t string) bool {
	if !tenantPattern.MatchString(t) {
		return false
	}
	_, reserved := reservedTenantCodes[t]
	return !reserved
}

func IsValidStage(stage int) bool {
	return stage >= MinStage && stage <= MaxStage
}

// Format renders the canonical code for a key and sequence.
// ex INC-ACME-1-2025-000042
func Format(key SequenceKey, sequence int) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	if sequence < 1 || sequence > MaxSequence {
		return "", ierr.NewError("sequence out of range").
			WithHintf("Sequence must be between 1 and %d", MaxSequence).
			WithReportableDetails(map[string]any{"sequence": sequence}).
			Mark(ierr.ErrValidation)
	}
	return fmt.Sprintf("%s%s%0*d", key.String(), Separator, SequenceWidth, sequence), nil
}

// Parse splits a canonical code into its key and sequence. The prefix may
// itself contain a separator so segments are taken from the right.
func Parse(code string) (SequenceKey, int, error) {
	key, sequence, reason := parse(code)
	if reason != "" {
		return SequenceKey{}, 0, ierr.NewError(fmt.Sprintf("malformed serial code: %s", reason)).
			WithHintf("Serial code is malformed: %s", reason).
			WithReportableDetails(map[string]any{"code": code}).
			Mark(ierr.ErrMalformedCode)
	}
	return key, sequence, nil
}

func parse(code string) (SequenceKey, int, string) {
	if strings.TrimSpace(code) == "" {
		return SequenceKey{}, 0, "code is empty"
	}
	if code != strings.TrimSpace(code) || code != strings.ToUpper(code) {
		return SequenceKey{}, 0, "code must be uppercase without surrounding whitespace"
	}

	parts := strings.Split(code, Separator)
	if len(parts) < 5 || len(parts) > 6 {
		return SequenceKey{}, 0, "expected PREFIX-TENANT-STAGE-YEAR-SEQUENCE"
	}

	n := len(parts)
	prefix := strings.Join(parts[:n-4], Separator)
	tenant, stageStr, yearStr, seqStr := parts[n-4], parts[n-3], parts[n-2], parts[n-1]

	if !IsValidPrefix(prefix) {
		return SequenceKey{}, 0, "invalid prefix"
	}
	if !IsValidTenantCode(tenant) {
		return SequenceKey{}, 0, "invalid tenant code"
	}
	if len(stageStr) != 1 || stageStr[0] < '0' || stageStr[0] > '9' {
		return SequenceKey{}, 0, "invalid stage"
	}
	if len(yearStr) != 4 {
		return SequenceKey{}, 0, "invalid year"
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil || year < MinYear {
		return SequenceKey{}, 0, "invalid year"
	}
	if !sequencePattern.MatchString(seqStr) {
		return SequenceKey{}, 0, "invalid sequence"
	}
	sequence, _ := strconv.Atoi(seqStr)
	if sequence < 1 {
		return SequenceKey{}, 0, "sequence must be positive"
	}

	return SequenceKey{
		Prefix:     prefix,
		TenantCode: tenant,
		Stage:      int(stageStr[0] - '0'),
		Year:       year,
	}, sequence, ""
}

// ValidationResult is the non-failing outcome of Validate
type ValidationResult struct {
	Code     string       `json:"code"`
	IsValid  bool         `json:"is_valid"`
	Reason   string       `json:"reason,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
	Key      *SequenceKey `json:"components,omitempty"`
	Sequence int          `json:"sequence,omitempty"`
}

// Validate checks a code without failing. now is used to flag unusual years.
func Validate(code string, now time.Time) ValidationResult {
	key, sequence, reason := parse(code)
	if reason != "" {
		return ValidationResult{Code: code, IsValid: false, Reason: reason}
	}

	result := ValidationResult{
		Code:     code,
		IsValid:  true,
		Key:      &key,
		Sequence: sequence,
	}
	if key.Year < 2020 || key.Year > now.Year()+1 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("unusual year %d", key.Year))
	}
	return result
}
