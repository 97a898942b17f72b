package prescription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rxpad/rxpad/internal/domain/diagnosis"
	"github.com/rxpad/rxpad/internal/domain/medication"
	"github.com/rxpad/rxpad/internal/domain/patient"
	"github.com/rxpad/rxpad/internal/domain/treatment"
	"github.com/rxpad/rxpad/internal/platform/analytics"
	"github.com/rxpad/rxpad/internal/platform/apierr"
	"github.com/rxpad/rxpad/internal/platform/db"
	"github.com/rxpad/rxpad/internal/platform/db/dbtest"
)

type fixture struct {
	svc         *Service
	patients    *patient.Service
	medications *medication.Service
	diagnoses   *diagnosis.Service
	treatments  *treatment.Service
	metrics     *recorder
}

type recorder struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recorder) Enqueue(ctx context.Context, e analytics.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type fixedSpecialty string

func (f fixedSpecialty) Specialty(ctx context.Context) string { return string(f) }

func newFixture(t *testing.T, specialty string) *fixture {
	t.Helper()
	var models []any
	for _, m := range [][]any{Models(), patient.Models(), medication.Models(), diagnosis.Models(), treatment.Models()} {
		models = append(models, m...)
	}
	gdb := dbtest.Open(t, models...)
	tx := db.NewTransactor(gdb)
	log := zerolog.Nop()

	f := &fixture{
		patients:    patient.NewService(patient.NewRepoGorm(gdb), tx, log),
		medications: medication.NewService(medication.NewRepoGorm(gdb), tx, log),
		treatments:  treatment.NewService(treatment.NewRepoGorm(gdb), tx, treatment.Config{}, log),
		metrics:     &recorder{},
	}
	f.diagnoses = diagnosis.NewService(diagnosis.NewRepoGorm(gdb), tx, f.treatments, log)
	f.svc = NewService(NewRepoGorm(gdb), tx, Deps{
		Patients:    f.patients,
		Medications: f.medications,
		Diagnoses:   f.diagnoses,
		Learner:     f.treatments,
		Practice:    fixedSpecialty(specialty),
		Metrics:     f.metrics,
	}, log)
	return f
}

func (f *fixture) newPatient(t *testing.T, name string, age int) *patient.Patient {
	t.Helper()
	p := &patient.Patient{Name: name, Age: &age}
	if err := f.patients.Create(context.Background(), p); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return p
}

func strPtr(s string) *string { return &s }

func line(name string) MedicationLine {
	return MedicationLine{Snapshot: medication.Snapshot{Name: name}}
}

func TestCreate_NumbersAndSnapshots(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	pat := f.newPatient(t, "Ana Pérez", 40)

	first, err := f.svc.Create(ctx, CreateInput{
		PatientID:     pat.ID,
		Diagnosis:     "Faringitis aguda",
		DiagnosisCode: strPtr(" J02.9 "),
		Medications:   []MedicationLine{line("Amoxicilina")},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := f.svc.Create(ctx, CreateInput{
		PatientID:   pat.ID,
		Diagnosis:   "Cefalea",
		Medications: []MedicationLine{line("Paracetamol")},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.svc.Wait()

	if first.Number != 1 || second.Number != 2 {
		t.Errorf("expected numbers 1 and 2, got %d and %d", first.Number, second.Number)
	}
	if first.PatientName != "Ana Pérez" || first.PatientAge == nil || *first.PatientAge != 40 {
		t.Errorf("unexpected patient snapshot %q %v", first.PatientName, first.PatientAge)
	}
	if first.DiagnosisCodeValue() != "J02.9" {
		t.Errorf("expected trimmed code, got %q", first.DiagnosisCodeValue())
	}

	pat.Name = "Ana Pérez de López"
	if err := f.patients.Update(ctx, pat); err != nil {
		t.Fatalf("update patient: %v", err)
	}
	got, err := f.svc.GetByNumber(ctx, 1)
	if err != nil {
		t.Fatalf("get by number: %v", err)
	}
	if got.PatientName != "Ana Pérez" {
		t.Errorf("issued prescription must keep its snapshot, got %q", got.PatientName)
	}
}

func TestCreate_FeedsCatalogLearningAndMetrics(t *testing.T) {
	f := newFixture(t, "Otorrinolaringología")
	ctx := context.Background()
	pat := f.newPatient(t, "Luis", 12)

	for i := 0; i < 2; i++ {
		_, err := f.svc.Create(ctx, CreateInput{
			PatientID:     pat.ID,
			Diagnosis:     "Faringitis aguda",
			DiagnosisCode: strPtr("J02.9"),
			Medications:   []MedicationLine{line("Amoxicilina"), line("Ibuprofeno")},
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		f.svc.Wait()
	}

	meds, err := f.medications.Search(ctx, "amoxi", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(meds) != 1 || meds[0].UsageCount != 2 || !meds[0].IsCustom {
		t.Fatalf("expected learned custom medication used twice, got %+v", meds)
	}

	diags, err := f.diagnoses.Search(ctx, "J02", 5)
	if err != nil {
		t.Fatalf("search diagnoses: %v", err)
	}
	if len(diags) != 1 || diags[0].UsageCount != 2 {
		t.Fatalf("expected diagnosis used twice, got %+v", diags)
	}

	sugg, err := f.treatments.GetSuggestions(ctx, "J02.9", "Otorrinolaringología")
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	if len(sugg) != 1 || sugg[0].UsageCount != 2 {
		t.Fatalf("expected one learned combination used twice, got %+v", sugg)
	}

	if len(f.metrics.events) != 2 || f.metrics.events[0].Name != "prescription_created" {
		t.Errorf("expected 2 prescription metrics, got %+v", f.metrics.events)
	}
}

func TestCreate_RecordsUsageForCatalogLines(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	pat := f.newPatient(t, "Marta", 55)

	m := &medication.Medication{Name: "Losartán", Strength: strPtr("50mg")}
	if err := f.medications.Create(ctx, m); err != nil {
		t.Fatalf("create medication: %v", err)
	}
	l := line("Losartán 50mg")
	l.MedicationID = &m.ID

	if _, err := f.svc.Create(ctx, CreateInput{PatientID: pat.ID, Diagnosis: "Hipertensión", Medications: []MedicationLine{l}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.svc.Wait()

	got, err := f.medications.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UsageCount != 1 {
		t.Errorf("expected usage recorded on the catalog entry, got %d", got.UsageCount)
	}
	if _, total, _ := f.medications.List(ctx, medication.Filter{}, 10, 0); total != 1 {
		t.Errorf("catalog line must not create a second entry, got %d", total)
	}
}

type failingLearner struct{}

func (failingLearner) Learn(ctx context.Context, in treatment.LearnInput) (*treatment.Association, error) {
	return nil, errors.New("disk full")
}

type panickingCatalog struct{}

func (panickingCatalog) Upsert(ctx context.Context, draft *medication.Medication) (uuid.UUID, error) {
	panic("catalog exploded")
}

func (panickingCatalog) RecordUsage(ctx context.Context, idOrName string) error { return nil }

func TestCreate_FollowUpFailuresDoNotFailPrescription(t *testing.T) {
	f := newFixture(t, "")
	f.svc.deps.Learner = failingLearner{}
	f.svc.deps.Medications = panickingCatalog{}
	ctx := context.Background()
	pat := f.newPatient(t, "Pedro", 30)

	p, err := f.svc.Create(ctx, CreateInput{PatientID: pat.ID, Diagnosis: "Lumbalgia", Medications: []MedicationLine{line("Diclofenac")}})
	if err != nil {
		t.Fatalf("create must succeed despite follow-up failures: %v", err)
	}
	f.svc.Wait()

	if _, err := f.svc.Get(ctx, p.ID); err != nil {
		t.Errorf("prescription must be stored: %v", err)
	}
	if len(f.metrics.events) != 1 {
		t.Errorf("remaining follow-ups must still run, got %d metrics", len(f.metrics.events))
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	pat := f.newPatient(t, "Sofía", 8)

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"missing patient", CreateInput{Diagnosis: "Otitis", Medications: []MedicationLine{line("Amoxicilina")}}},
		{"unknown patient", CreateInput{PatientID: uuid.New(), Diagnosis: "Otitis", Medications: []MedicationLine{line("Amoxicilina")}}},
		{"missing diagnosis", CreateInput{PatientID: pat.ID, Diagnosis: "  ", Medications: []MedicationLine{line("Amoxicilina")}}},
		{"no medications", CreateInput{PatientID: pat.ID, Diagnosis: "Otitis"}},
		{"unnamed medication", CreateInput{PatientID: pat.ID, Diagnosis: "Otitis", Medications: []MedicationLine{line(" ")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Create(ctx, tt.in); !errors.Is(err, apierr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
	if _, total, _ := f.svc.List(ctx, Filter{}, 10, 0); total != 0 {
		t.Errorf("rejected input must not be stored, got %d", total)
	}
}

func TestCorrect(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	pat := f.newPatient(t, "Julia", 60)
	p, err := f.svc.Create(ctx, CreateInput{PatientID: pat.ID, Diagnosis: "Gastritis", Medications: []MedicationLine{line("Omeprazol")}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.svc.Wait()

	if _, err := f.svc.Correct(ctx, p.ID, CorrectionInput{Diagnosis: strPtr("Gastritis crónica")}); !errors.Is(err, apierr.ErrValidation) {
		t.Errorf("expected note to be required, got %v", err)
	}

	fixed, err := f.svc.Correct(ctx, p.ID, CorrectionInput{
		Diagnosis:   strPtr("Gastritis crónica"),
		Medications: []MedicationLine{line("Omeprazol"), line("Sucralfato")},
		Note:        "typo in diagnosis",
	})
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if fixed.CorrectedAt == nil || fixed.CorrectionNote == nil {
		t.Error("correction must be stamped")
	}
	got, _ := f.svc.Get(ctx, p.ID)
	if got.Diagnosis != "Gastritis crónica" || len(got.Medications) != 2 {
		t.Errorf("correction not persisted: %+v", got)
	}
	if got.Number != p.Number || got.PatientName != p.PatientName || !got.IssuedAt.Equal(p.IssuedAt) {
		t.Errorf("number, snapshot and issue time must not change")
	}

	if _, err := f.svc.Correct(ctx, uuid.New(), CorrectionInput{Note: "x"}); !errors.Is(err, apierr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestList_FiltersByPatientAndRange(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	a := f.newPatient(t, "A", 20)
	b := f.newPatient(t, "B", 30)

	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	for i, pid := range []uuid.UUID{a.ID, b.ID, a.ID} {
		issued := base.Add(time.Duration(i) * 24 * time.Hour)
		f.svc.now = func() time.Time { return issued }
		if _, err := f.svc.Create(ctx, CreateInput{PatientID: pid, Diagnosis: "Control", Medications: []MedicationLine{line("Vitamina D")}}); err != nil {
			t.Fatalf("create: %v", err)
		}
		f.svc.Wait()
	}

	items, total, err := f.svc.List(ctx, Filter{PatientID: a.ID}, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || items[0].Number != 3 {
		t.Errorf("expected patient A newest first, got total=%d first=%d", total, items[0].Number)
	}

	from := base.Add(12 * time.Hour)
	to := base.Add(36 * time.Hour)
	_, total, err = f.svc.List(ctx, Filter{From: &from, To: &to}, 10, 0)
	if err != nil {
		t.Fatalf("list range: %v", err)
	}
	if total != 1 {
		t.Errorf("expected 1 prescription in range, got %d", total)
	}

	if _, _, err := f.svc.List(ctx, Filter{From: &to, To: &from}, 10, 0); !errors.Is(err, apierr.ErrValidation) {
		t.Errorf("expected validation error for inverted range, got %v", err)
	}
}
