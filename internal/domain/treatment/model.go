package treatment

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/rxpad/rxpad/internal/domain/medication"
	"github.com/rxpad/rxpad/internal/platform/textnorm"
)

// DefaultAutoApplyThreshold is the usage count at which the top suggestion
// is applied without confirmation.
const DefaultAutoApplyThreshold = 10

// Association is one learned treatment: a medication set prescribed for a
// diagnosis, within a (DiagnosisKey, Specialty) bucket. Entries of a bucket
// are unique by CombinationKey.
type Association struct {
	ID             uuid.UUID                                `gorm:"type:text;primaryKey" json:"id"`
	DiagnosisKey   string                                   `gorm:"uniqueIndex:idx_treatment_bucket_combination,priority:1;not null" json:"diagnosis_key"`
	Specialty      string                                   `gorm:"uniqueIndex:idx_treatment_bucket_combination,priority:2;not null;default:''" json:"specialty,omitempty"`
	CombinationKey string                                   `gorm:"uniqueIndex:idx_treatment_bucket_combination,priority:3;not null" json:"combination_key"`
	TreatmentName  *string                                  `json:"treatment_name,omitempty"`
	Medications    datatypes.JSONSlice[medication.Snapshot] `json:"medications"`
	Instructions   *string                                  `json:"instructions,omitempty"`
	UsageCount     int                                      `gorm:"not null;default:0" json:"usage_count"`
	LastUsedAt     time.Time                                `json:"last_used_at"`
	CreatedAt      time.Time                                `json:"created_at"`
	UpdatedAt      time.Time                                `json:"updated_at"`
}

func (Association) TableName() string { return "treatment_associations" }

// LearnInput is one prescription's worth of learning.
type LearnInput struct {
	DiagnosisKey  string                `json:"diagnosis_key"`
	Medications   []medication.Snapshot `json:"medications"`
	Instructions  *string               `json:"instructions,omitempty"`
	Specialty     *string               `json:"specialty,omitempty"`
	TreatmentName *string               `json:"treatment_name,omitempty"`
}

// Suggestion is the ranked learned treatments for a diagnosis and whether
// the top one should be applied without asking.
type Suggestion struct {
	DiagnosisKey string         `json:"diagnosis_key"`
	Suggestions  []*Association `json:"suggestions"`
	AutoApply    bool           `json:"auto_apply"`
	// AutoApplyThreshold is the usage count that makes a suggestion auto-apply.
	AutoApplyThreshold int `json:"auto_apply_threshold"`
}

// Top returns the highest ranked association, or nil.
func (s Suggestion) Top() *Association {
	if len(s.Suggestions) == 0 {
		return nil
	}
	return s.Suggestions[0]
}

// DiagnosisKey identifies a diagnosis for learning: its classification code
// when present, else its normalized name.
func DiagnosisKey(code, name string) string {
	if c := strings.TrimSpace(code); c != "" {
		return c
	}
	return textnorm.Normalize(name)
}

// CombinationKey is the sorted multiset of normalized medication names,
// joined with "|". Blank names are ignored.
func CombinationKey(meds []medication.Snapshot) string {
	names := make([]string, 0, len(meds))
	for _, m := range meds {
		if n := textnorm.Normalize(m.Name); n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func specialtyKey(s *string) string {
	if s == nil {
		return ""
	}
	return textnorm.Normalize(*s)
}

// Models lists the local tables owned by this package.
func Models() []any {
	return []any{&Association{}}
}
