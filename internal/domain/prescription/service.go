package prescription

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rxpad/rxpad/internal/domain/diagnosis"
	"github.com/rxpad/rxpad/internal/domain/medication"
	"github.com/rxpad/rxpad/internal/domain/patient"
	"github.com/rxpad/rxpad/internal/domain/treatment"
	"github.com/rxpad/rxpad/internal/platform/analytics"
	"github.com/rxpad/rxpad/internal/platform/apierr"
	"github.com/rxpad/rxpad/internal/platform/besteffort"
	"github.com/rxpad/rxpad/internal/platform/db"
)

type PatientSource interface {
	Snapshot(ctx context.Context, id uuid.UUID) (patient.Snapshot, error)
}

type MedicationCatalog interface {
	Upsert(ctx context.Context, draft *medication.Medication) (uuid.UUID, error)
	RecordUsage(ctx context.Context, idOrName string) error
}

type DiagnosisCatalog interface {
	Upsert(ctx context.Context, draft *diagnosis.Diagnosis) (uuid.UUID, error)
}

type Learner interface {
	Learn(ctx context.Context, in treatment.LearnInput) (*treatment.Association, error)
}

type PracticeInfo interface {
	Specialty(ctx context.Context) string
}

// Deps are the collaborators fed after a prescription is issued. Any of the
// follow-up collaborators may be nil.
type Deps struct {
	Patients    PatientSource
	Medications MedicationCatalog
	Diagnoses   DiagnosisCatalog
	Learner     Learner
	Practice    PracticeInfo
	Metrics     analytics.Recorder
}

type Service struct {
	repo   Repository
	tx     db.Transactor
	deps   Deps
	logger zerolog.Logger
	now    func() time.Time

	followUps besteffort.Group
}

func NewService(repo Repository, tx db.Transactor, deps Deps, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		tx:     tx,
		deps:   deps,
		logger: logger.With().Str("component", "prescription").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func cleanLines(lines []MedicationLine) ([]MedicationLine, error) {
	out := make([]MedicationLine, 0, len(lines))
	for i, l := range lines {
		l.Name = strings.TrimSpace(l.Name)
		if l.Name == "" {
			return nil, apierr.Validation("medication %d: name is required", i+1)
		}
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil, apierr.Validation("at least one medication is required")
	}
	return out, nil
}

// Create issues a prescription. The record, its number and the patient
// snapshot are written strictly; catalog usage, treatment learning and the
// usage metric follow in the background and never fail the call.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Prescription, error) {
	if s.deps.Patients == nil {
		return nil, errors.New("prescription service has no patient source")
	}
	if in.PatientID == uuid.Nil {
		return nil, apierr.Validation("patient_id is required")
	}
	diag := strings.TrimSpace(in.Diagnosis)
	if diag == "" {
		return nil, apierr.Validation("diagnosis is required")
	}
	lines, err := cleanLines(in.Medications)
	if err != nil {
		return nil, err
	}

	snap, err := s.deps.Patients.Snapshot(ctx, in.PatientID)
	if errors.Is(err, apierr.ErrNotFound) {
		return nil, apierr.Validation("patient %s does not exist", in.PatientID)
	}
	if err != nil {
		return nil, err
	}

	issued := s.now()
	p := &Prescription{
		ID:            uuid.New(),
		PatientID:     snap.ID,
		PatientName:   snap.Name,
		PatientAge:    snap.Age,
		Diagnosis:     diag,
		DiagnosisCode: trimmedOrNil(in.DiagnosisCode),
		Medications:   lines,
		Instructions:  in.Instructions,
		TemplateID:    in.TemplateID,
		IssuedAt:      issued,
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		n, err := s.repo.NextNumber(ctx)
		if err != nil {
			return err
		}
		p.Number = n
		return s.repo.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("number", p.Number).Str("prescription_id", p.ID.String()).Msg("prescription issued")

	issuedCopy := *p
	s.followUps.Go(ctx, s.logger, "prescription follow-up", func(ctx context.Context) error {
		s.followUp(ctx, &issuedCopy, in.TreatmentName)
		return nil
	})
	return p, nil
}

// Wait blocks until every scheduled follow-up has finished.
func (s *Service) Wait() {
	s.followUps.Wait()
}

func (s *Service) followUp(ctx context.Context, p *Prescription, treatmentName *string) {
	if s.deps.Medications != nil {
		for _, line := range p.Medications {
			besteffort.Run(ctx, s.logger, "medication usage", func(ctx context.Context) error {
				if line.MedicationID != nil {
					return s.deps.Medications.RecordUsage(ctx, line.MedicationID.String())
				}
				draft := line.Draft()
				draft.IsCustom = true
				_, err := s.deps.Medications.Upsert(ctx, draft)
				return err
			})
		}
	}

	if s.deps.Diagnoses != nil {
		besteffort.Run(ctx, s.logger, "diagnosis usage", func(ctx context.Context) error {
			_, err := s.deps.Diagnoses.Upsert(ctx, &diagnosis.Diagnosis{
				Code:     p.DiagnosisCode,
				Name:     p.Diagnosis,
				IsCustom: true,
			})
			return err
		})
	}

	if s.deps.Learner != nil {
		besteffort.Run(ctx, s.logger, "treatment learning", func(ctx context.Context) error {
			in := treatment.LearnInput{
				DiagnosisKey:  treatment.DiagnosisKey(p.DiagnosisCodeValue(), p.Diagnosis),
				Medications:   p.Snapshots(),
				Instructions:  p.Instructions,
				TreatmentName: treatmentName,
			}
			if s.deps.Practice != nil {
				if sp := s.deps.Practice.Specialty(ctx); sp != "" {
					in.Specialty = &sp
				}
			}
			_, err := s.deps.Learner.Learn(ctx, in)
			return err
		})
	}

	if s.deps.Metrics != nil {
		besteffort.Run(ctx, s.logger, "prescription metric", func(ctx context.Context) error {
			return s.deps.Metrics.Enqueue(ctx, analytics.Event{
				Type: analytics.TypeUserAction,
				Name: "prescription_created",
				Payload: map[string]any{
					"medication_count": len(p.Medications),
					"has_code":         p.DiagnosisCode != nil,
					"has_template":     p.TemplateID != nil,
				},
			})
		})
	}
}

// Correct applies an administrative correction to an issued prescription.
// The patient snapshot, number and issue time never change.
func (s *Service) Correct(ctx context.Context, id uuid.UUID, in CorrectionInput) (*Prescription, error) {
	note := strings.TrimSpace(in.Note)
	if note == "" {
		return nil, apierr.Validation("a correction note is required")
	}
	var lines []MedicationLine
	if in.Medications != nil {
		var err error
		if lines, err = cleanLines(in.Medications); err != nil {
			return nil, err
		}
	}
	if in.Diagnosis != nil && strings.TrimSpace(*in.Diagnosis) == "" {
		return nil, apierr.Validation("diagnosis cannot be empty")
	}

	var out *Prescription
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if in.Diagnosis != nil {
			p.Diagnosis = strings.TrimSpace(*in.Diagnosis)
		}
		if in.DiagnosisCode != nil {
			p.DiagnosisCode = trimmedOrNil(in.DiagnosisCode)
		}
		if lines != nil {
			p.Medications = lines
		}
		if in.Instructions != nil {
			p.Instructions = in.Instructions
		}
		now := s.now()
		p.CorrectedAt = &now
		p.CorrectionNote = &note
		if err := s.repo.Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("number", out.Number).Msg("prescription corrected")
	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByNumber(ctx context.Context, number int64) (*Prescription, error) {
	return s.repo.GetByNumber(ctx, number)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Prescription, int, error) {
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, 0, apierr.Validation("to must not be before from")
	}
	return s.repo.List(ctx, f, limit, offset)
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
