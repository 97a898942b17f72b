package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/rxpad/rxpad/internal/platform/textnorm"
)

type Patient struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	SearchKey string    `gorm:"index;not null" json:"search_key"`
	Age       *int      `json:"age,omitempty"`
	// AgeRecordedAt is when Age was last entered; ages project from it.
	AgeRecordedAt  *time.Time `json:"age_recorded_at,omitempty"`
	BirthDate      *time.Time `json:"birth_date,omitempty"`
	Gender         *string    `json:"gender,omitempty"`
	Phone          *string    `json:"phone,omitempty"`
	Email          *string    `json:"email,omitempty"`
	Address        *string    `json:"address,omitempty"`
	Allergies      *string    `json:"allergies,omitempty"`
	MedicalHistory *string    `json:"medical_history,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// DisplayAge is filled on reads from CurrentAge(now).
	DisplayAge *int `gorm:"-" json:"current_age,omitempty"`
}

func (Patient) TableName() string { return "patients" }

// CurrentAge returns the age at now: whole years since BirthDate when set,
// otherwise the stored Age advanced by the whole years elapsed since it was
// recorded. Nil when neither is known.
func (p *Patient) CurrentAge(now time.Time) *int {
	if p.BirthDate != nil {
		age := yearsBetween(*p.BirthDate, now)
		if age < 0 {
			age = 0
		}
		return &age
	}
	if p.Age == nil {
		return nil
	}
	age := *p.Age
	if anchor := p.ageAnchor(); !anchor.IsZero() {
		if elapsed := yearsBetween(anchor, now); elapsed > 0 {
			age += elapsed
		}
	}
	return &age
}

// ageAnchor falls back to UpdatedAt for rows stored without AgeRecordedAt.
func (p *Patient) ageAnchor() time.Time {
	if p.AgeRecordedAt != nil {
		return *p.AgeRecordedAt
	}
	return p.UpdatedAt
}

func yearsBetween(from, to time.Time) int {
	from, to = from.UTC(), to.UTC()
	years := to.Year() - from.Year()
	if to.Month() < from.Month() || (to.Month() == from.Month() && to.Day() < from.Day()) {
		years--
	}
	return years
}

// Snapshot is the patient data copied onto a prescription at issuance.
type Snapshot struct {
	ID   uuid.UUID
	Name string
	Age  *int
}

// SnapshotAt returns the identity and age to print on a prescription issued at now.
func (p *Patient) SnapshotAt(now time.Time) Snapshot {
	return Snapshot{ID: p.ID, Name: p.Name, Age: p.CurrentAge(now)}
}

func (p *Patient) derive() {
	p.SearchKey = textnorm.Normalize(p.Name)
}

// SortBy orders List results.
type SortBy string

const (
	SortByName    SortBy = "name"
	SortByCreated SortBy = "created"
	SortByUpdated SortBy = "updated"
)

// Valid reports whether s is a known sort order. Empty means SortByName.
func (s SortBy) Valid() bool {
	switch s {
	case "", SortByName, SortByCreated, SortByUpdated:
		return true
	}
	return false
}

type Filter struct {
	SearchText string
	SortBy     SortBy
}

// Models lists the local tables owned by this package.
func Models() []any {
	return []any{&Patient{}}
}
