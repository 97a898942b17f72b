package diagnosis

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/rxpad/rxpad/internal/domain/medication"
	"github.com/rxpad/rxpad/internal/platform/textnorm"
)

// Diagnosis is a catalog entry. SuggestedMedications is a curated default
// treatment that takes precedence over anything learned.
type Diagnosis struct {
	ID                   uuid.UUID                                `gorm:"type:text;primaryKey" json:"id"`
	Code                 *string                                  `gorm:"index" json:"code,omitempty"`
	Name                 string                                   `gorm:"not null" json:"name"`
	SearchKey            string                                   `gorm:"uniqueIndex;not null" json:"search_key"`
	Keywords             datatypes.JSONSlice[string]              `json:"keywords"`
	Synonyms             datatypes.JSONSlice[string]              `json:"synonyms"`
	Specialties          datatypes.JSONSlice[string]              `json:"specialties"`
	SpecialtyKeys        datatypes.JSONSlice[string]              `json:"-"`
	SuggestedMedications datatypes.JSONSlice[medication.Snapshot] `json:"suggested_medications"`
	IsCustom             bool                                     `gorm:"index;not null;default:false" json:"is_custom"`
	UsageCount           int                                      `gorm:"index;not null;default:0" json:"usage_count"`
	LastUsedAt           *time.Time                               `gorm:"index" json:"last_used_at,omitempty"`
	CreatedAt            time.Time                                `json:"created_at"`
	UpdatedAt            time.Time                                `json:"updated_at"`
}

func (Diagnosis) TableName() string { return "diagnoses" }

// EntryID implements catalog.Entry.
func (d *Diagnosis) EntryID() uuid.UUID { return d.ID }

// CodeValue returns the classification code or "".
func (d *Diagnosis) CodeValue() string {
	if d.Code == nil {
		return ""
	}
	return strings.TrimSpace(*d.Code)
}

// Derive recomputes the search key and keyword set, and cleans synonyms and
// specialties. Synonyms keep their order; specialties become a set.
func (d *Diagnosis) Derive() {
	d.Name = strings.TrimSpace(d.Name)
	d.SearchKey = textnorm.Normalize(d.Name)
	if d.Code != nil {
		code := strings.TrimSpace(*d.Code)
		if code == "" {
			d.Code = nil
		} else {
			d.Code = &code
		}
	}

	synonyms := make([]string, 0, len(d.Synonyms))
	for _, s := range d.Synonyms {
		if s = strings.TrimSpace(s); s != "" {
			synonyms = append(synonyms, s)
		}
	}
	d.Synonyms = synonyms

	seen := make(map[string]bool, len(d.Specialties))
	specialties := make([]string, 0, len(d.Specialties))
	keys := make([]string, 0, len(d.Specialties))
	for _, s := range d.Specialties {
		k := textnorm.Normalize(s)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		specialties = append(specialties, strings.TrimSpace(s))
		keys = append(keys, k)
	}
	d.Specialties = specialties
	d.SpecialtyKeys = keys

	fields := append([]string{d.Name, d.CodeValue()}, synonyms...)
	d.Keywords = textnorm.Keywords(fields...)
	if d.SuggestedMedications == nil {
		d.SuggestedMedications = []medication.Snapshot{}
	}
}

// HasSpecialty reports whether any of the diagnosis specialties matches
// specialty, ignoring case and accents.
func (d *Diagnosis) HasSpecialty(specialty string) bool {
	want := textnorm.Normalize(specialty)
	if want == "" {
		return false
	}
	for _, s := range d.Specialties {
		if textnorm.Contains(s, want) || textnorm.Contains(want, s) {
			return true
		}
	}
	return false
}

// Keyword is one row of the inverted keyword index.
type Keyword struct {
	Seq         uint64    `gorm:"primaryKey;autoIncrement"`
	Token       string    `gorm:"index:idx_diagnosis_keywords_token;not null"`
	DiagnosisID uuid.UUID `gorm:"type:text;index;not null"`
}

func (Keyword) TableName() string { return "diagnosis_keywords" }

// SortBy orders List results.
type SortBy string

const (
	SortByName    SortBy = "name"
	SortByCode    SortBy = "code"
	SortByUsage   SortBy = "usage"
	SortByRecent  SortBy = "recent"
	SortByCreated SortBy = "created"
)

// Valid reports whether s is a known sort order. Empty means SortByName.
func (s SortBy) Valid() bool {
	switch s {
	case "", SortByName, SortByCode, SortByUsage, SortByRecent, SortByCreated:
		return true
	}
	return false
}

// Filter narrows catalog listings.
type Filter struct {
	Specialty  string
	OnlyCustom bool
	SortBy     SortBy
	SearchText string
}

// Models lists the local tables owned by this package.
func Models() []any {
	return []any{&Diagnosis{}, &Keyword{}}
}
