package serialcode

import (
	"strings"

	ierr "github.com/shahin-grc/serialcode/internal/errors"
)

// PrefixInfo binds an entity type to its code prefix and default stage
type PrefixInfo struct {
	EntityType   string `json:"entity_type"`
	Prefix       string `json:"prefix"`
	DefaultStage int    `json:"default_stage"`
}

var registry = []PrefixInfo{
	// stage 1: assessment
	{"assessment", "ASM", 1},
	{"assessment_question", "ASM-Q", 1},
	{"assessment_finding", "ASM-F", 1},
	// stage 2: risk
	{"risk", "RSK", 2},
	{"risk_treatment", "RSK-T", 2},
	{"risk_asset", "RSK-A", 2},
	// stage 3: compliance
	{"compliance", "CMP", 3},
	{"compliance_requirement", "CMP-R", 3},
	{"compliance_gap", "CMP-G", 3},
	// stage 4: resilience
	{"resilience", "RES", 4},
	{"recovery_plan", "RES-P", 4},
	{"resilience_test", "RES-T", 4},
	// stage 5: excellence
	{"excellence", "EXC", 5},
	{"benchmark", "EXC-B", 5},
	{"improvement", "EXC-I", 5},
	// stage 6: sustainability
	{"sustainability", "SUS", 6},
	{"kpi", "SUS-K", 6},
	{"certification", "SUS-C", 6},
	// cross stage
	{"control", "CTL", 0},
	{"control_test", "CTL-T", 0},
	{"evidence", "EVD", 0},
	{"evidence_request", "EVD-R", 0},
	{"framework", "FWK", 0},
	{"framework_requirement", "FWK-R", 0},
	{"workflow", "WFL", 0},
	{"workflow_task", "WFL-T", 0},
	{"approval", "APR", 0},
	{"audit", "AUD", 0},
	{"report", "RPT", 0},
	{"attestation", "ATT", 0},
	{"policy", "POL", 0},
	{"user", "USR", 0},
	{"tenant", "TEN", 0},
	{"incident", "INC", 0},
	{"vendor", "VND", 0},
	{"action_plan", "ACT", 0},
}

var (
	byEntityType = make(map[string]PrefixInfo, len(registry))
	byPrefix     = make(map[string]PrefixInfo, len(registry))
)

func init() {
	for _, info := range registry {
		byEntityType[entityTypeKey(info.EntityType)] = info
		byPrefix[info.Prefix] = info
	}
}

// Registry returns a copy of the known entity type registrations
func Registry() []PrefixInfo {
	out := make([]PrefixInfo, len(registry))
	copy(out, registry)
	return out
}

// entityTypeKey folds case and word separators so that "risk_treatment",
// "riskTreatment" and "Risk Treatment" name the same registration
func entityTypeKey(entityType string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(entityType)))
}

// ResolvePrefix maps an entity type to its code prefix. A known prefix
// resolves to itself. Unknown types use their first three letters.
func ResolvePrefix(entityType string) (PrefixInfo, error) {
	normalized := strings.ToLower(strings.TrimSpace(entityType))
	if info, ok := byEntityType[entityTypeKey(normalized)]; ok {
		return info, nil
	}
	if info, ok := byPrefix[strings.ToUpper(normalized)]; ok {
		return info, nil
	}

	letters := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r - 'a' + 'A'
		}
		return -1
	}, normalized)
	if len(letters) < 3 {
		return PrefixInfo{}, ierr.NewError("cannot derive prefix from entity type").
			WithHint("Entity type must contain at least three letters").
			WithReportableDetails(map[string]any{"entity_type": entityType}).
			Mark(ierr.ErrValidation)
	}
	return PrefixInfo{
		EntityType:   normalized,
		Prefix:       letters[:3],
		DefaultStage: 0,
	}, nil
}

// EntityTypeForPrefix returns the registered entity type for a prefix
func EntityTypeForPrefix(prefix string) (string, bool) {
	info, ok := byPrefix[strings.ToUpper(prefix)]
	return info.EntityType, ok
}
