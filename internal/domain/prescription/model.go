package prescription

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/rxpad/rxpad/internal/domain/medication"
)

// Prescription is an issued prescription. Patient data is a snapshot taken
// at issuance. After creation only Correct may change it, and it is never
// deleted.
type Prescription struct {
	ID             uuid.UUID                           `gorm:"type:text;primaryKey" json:"id"`
	Number         int64                               `gorm:"uniqueIndex;not null" json:"number"`
	PatientID      uuid.UUID                           `gorm:"type:text;index;not null" json:"patient_id"`
	PatientName    string                              `gorm:"not null" json:"patient_name"`
	PatientAge     *int                                `json:"patient_age,omitempty"`
	Diagnosis      string                              `gorm:"not null" json:"diagnosis"`
	DiagnosisCode  *string                             `json:"diagnosis_code,omitempty"`
	Medications    datatypes.JSONSlice[MedicationLine] `json:"medications"`
	Instructions   *string                             `json:"instructions,omitempty"`
	TemplateID     *uuid.UUID                          `gorm:"type:text" json:"template_id,omitempty"`
	IssuedAt       time.Time                           `gorm:"index;not null" json:"issued_at"`
	CorrectedAt    *time.Time                          `json:"corrected_at,omitempty"`
	CorrectionNote *string                             `json:"correction_note,omitempty"`
	CreatedAt      time.Time                           `json:"created_at"`
	UpdatedAt      time.Time                           `json:"updated_at"`
}

func (Prescription) TableName() string { return "prescriptions" }

// MedicationLine is one prescribed medication.
type MedicationLine struct {
	medication.Snapshot
	MedicationID *uuid.UUID `json:"medication_id,omitempty"`
	Quantity     *string    `json:"quantity,omitempty"`
}

// Snapshots returns the medication part of each line.
func (p *Prescription) Snapshots() []medication.Snapshot {
	out := make([]medication.Snapshot, 0, len(p.Medications))
	for _, l := range p.Medications {
		out = append(out, l.Snapshot)
	}
	return out
}

// DiagnosisCodeValue returns the diagnosis code or "".
func (p *Prescription) DiagnosisCodeValue() string {
	if p.DiagnosisCode == nil {
		return ""
	}
	return *p.DiagnosisCode
}

// Counter holds the last allocated value of a named sequence.
type Counter struct {
	Name  string `gorm:"primaryKey"`
	Value int64  `gorm:"not null;default:0"`
}

func (Counter) TableName() string { return "counters" }

const numberCounter = "prescription_number"

// CreateInput is what the caller submits to issue a prescription.
type CreateInput struct {
	PatientID     uuid.UUID        `json:"patient_id"`
	Diagnosis     string           `json:"diagnosis"`
	DiagnosisCode *string          `json:"diagnosis_code,omitempty"`
	Medications   []MedicationLine `json:"medications"`
	Instructions  *string          `json:"instructions,omitempty"`
	TemplateID    *uuid.UUID       `json:"template_id,omitempty"`
	// TreatmentName labels the learned treatment, when the user named it.
	TreatmentName *string `json:"treatment_name,omitempty"`
}

// CorrectionInput is an administrative correction. Nil fields are left as
// they are; Note is required.
type CorrectionInput struct {
	Diagnosis     *string          `json:"diagnosis,omitempty"`
	DiagnosisCode *string          `json:"diagnosis_code,omitempty"`
	Medications   []MedicationLine `json:"medications,omitempty"`
	Instructions  *string          `json:"instructions,omitempty"`
	Note          string           `json:"note"`
}

type Filter struct {
	PatientID uuid.UUID
	From      *time.Time
	To        *time.Time
}

// Models lists the local tables owned by this package.
func Models() []any {
	return []any{&Prescription{}, &Counter{}}
}
