package practice

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PaperSize is a printable page format understood by the prescription renderer.
type PaperSize string

const (
	PaperA4         PaperSize = "A4"
	PaperA5         PaperSize = "A5"
	PaperLetter     PaperSize = "Letter"
	PaperHalfLetter PaperSize = "HalfLetter"
)

func (p PaperSize) Valid() bool {
	switch p {
	case PaperA4, PaperA5, PaperLetter, PaperHalfLetter:
		return true
	}
	return false
}

// Template is a printable prescription layout. Layout is stored opaquely for
// the renderer. At most one template is the default.
type Template struct {
	ID        uuid.UUID      `gorm:"type:text;primaryKey" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	PaperSize PaperSize      `gorm:"not null" json:"paper_size"`
	Layout    datatypes.JSON `json:"layout,omitempty"`
	IsDefault bool           `gorm:"index;not null;default:false" json:"is_default"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Template) TableName() string { return "templates" }

// configRowID is the primary key of the single MedicoConfig row.
const configRowID = 1

// MedicoConfig describes the practitioner running this install. It is a
// single row; AnonymousID is generated once and identifies the install in
// metrics.
type MedicoConfig struct {
	ID            int       `gorm:"primaryKey;autoIncrement:false" json:"-"`
	DoctorName    string    `json:"doctor_name"`
	Specialty     *string   `json:"specialty,omitempty"`
	LicenseNumber *string   `json:"license_number,omitempty"`
	ClinicName    *string   `json:"clinic_name,omitempty"`
	Address       *string   `json:"address,omitempty"`
	Phone         *string   `json:"phone,omitempty"`
	Email         *string   `json:"email,omitempty"`
	AnonymousID   string    `gorm:"not null" json:"anonymous_id"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (MedicoConfig) TableName() string { return "medico_config" }

// SpecialtyValue returns the specialty or "".
func (c *MedicoConfig) SpecialtyValue() string {
	if c == nil || c.Specialty == nil {
		return ""
	}
	return *c.Specialty
}

// Models lists the local tables owned by this package.
func Models() []any {
	return []any{&Template{}, &MedicoConfig{}}
}
