package medication

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/rxpad/rxpad/internal/platform/textnorm"
)

// Medication is a catalog entry, either seeded or added by the user.
type Medication struct {
	ID           uuid.UUID                   `gorm:"type:text;primaryKey" json:"id"`
	Name         string                      `gorm:"not null" json:"name"`
	GenericName  *string                     `json:"generic_name,omitempty"`
	Strength     *string                     `json:"strength,omitempty"`
	DosageForm   *string                     `json:"dosage_form,omitempty"`
	Packaging    *string                     `json:"packaging,omitempty"`
	Category     *string                     `gorm:"index" json:"category,omitempty"`
	Manufacturer *string                     `json:"manufacturer,omitempty"`
	SearchKey    string                      `gorm:"uniqueIndex;not null" json:"search_key"`
	Keywords     datatypes.JSONSlice[string] `json:"keywords"`
	IsCustom     bool                        `gorm:"index;not null;default:false" json:"is_custom"`
	UsageCount   int                         `gorm:"index;not null;default:0" json:"usage_count"`
	LastUsedAt   *time.Time                  `gorm:"index" json:"last_used_at,omitempty"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

func (Medication) TableName() string { return "medications" }

// EntryID implements catalog.Entry.
func (m *Medication) EntryID() uuid.UUID { return m.ID }

// Derive recomputes the search key and keyword set from the current fields.
// It runs on every create and update so the two never go stale.
func (m *Medication) Derive() {
	m.SearchKey = textnorm.Normalize(m.Name)
	m.Keywords = textnorm.KeywordsPtr(m.Name, m.GenericName, m.Category, m.Manufacturer)
}

// Snapshot returns the denormalized copy embedded in prescriptions,
// diagnoses and learned treatments.
func (m *Medication) Snapshot() Snapshot {
	return Snapshot{
		Name:        m.Name,
		GenericName: m.GenericName,
		Strength:    m.Strength,
		DosageForm:  m.DosageForm,
	}
}

// Keyword is one row of the inverted keyword index.
type Keyword struct {
	Seq          uint64    `gorm:"primaryKey;autoIncrement"`
	Token        string    `gorm:"index:idx_medication_keywords_token;not null"`
	MedicationID uuid.UUID `gorm:"type:text;index;not null"`
}

func (Keyword) TableName() string { return "medication_keywords" }

// Snapshot is a medication as written on a prescription.
type Snapshot struct {
	Name         string  `json:"name"`
	GenericName  *string `json:"generic_name,omitempty"`
	Strength     *string `json:"strength,omitempty"`
	DosageForm   *string `json:"dosage_form,omitempty"`
	Dose         *string `json:"dose,omitempty"`
	Frequency    *string `json:"frequency,omitempty"`
	Duration     *string `json:"duration,omitempty"`
	Instructions *string `json:"instructions,omitempty"`
}

// Draft converts the snapshot into a catalog draft for Upsert.
func (s Snapshot) Draft() *Medication {
	return &Medication{
		Name:        s.Name,
		GenericName: s.GenericName,
		Strength:    s.Strength,
		DosageForm:  s.DosageForm,
	}
}

// SortBy orders List results.
type SortBy string

const (
	SortByName    SortBy = "name"
	SortByUsage   SortBy = "usage"
	SortByRecent  SortBy = "recent"
	SortByCreated SortBy = "created"
)

// Valid reports whether s is a known sort order. Empty means SortByName.
func (s SortBy) Valid() bool {
	switch s {
	case "", SortByName, SortByUsage, SortByRecent, SortByCreated:
		return true
	}
	return false
}

// Filter narrows catalog listings.
type Filter struct {
	Category   string
	OnlyCustom bool
	SortBy     SortBy
	SearchText string
}

// Models lists the local tables owned by this package.
func Models() []any {
	return []any{&Medication{}, &Keyword{}}
}
