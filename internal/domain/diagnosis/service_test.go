package diagnosis

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rxpad/rxpad/internal/domain/medication"
	"github.com/rxpad/rxpad/internal/domain/treatment"
	"github.com/rxpad/rxpad/internal/platform/apierr"
	"github.com/rxpad/rxpad/internal/platform/db"
	"github.com/rxpad/rxpad/internal/platform/db/dbtest"
)

func strPtr(s string) *string { return &s }

// -- Mock Learner --

type mockLearner struct {
	buckets map[string][]*treatment.Association // key "diagnosis|specialty"
	err     error
	calls   []string
}

func newMockLearner() *mockLearner {
	return &mockLearner{buckets: make(map[string][]*treatment.Association)}
}

func (m *mockLearner) add(key, specialty string, usage int, names ...string) {
	a := &treatment.Association{ID: uuid.New(), DiagnosisKey: key, Specialty: specialty, UsageCount: usage}
	for _, n := range names {
		a.Medications = append(a.Medications, medication.Snapshot{Name: n})
	}
	m.buckets[key+"|"+specialty] = append(m.buckets[key+"|"+specialty], a)
}

func (m *mockLearner) GetScopedSuggestions(_ context.Context, key, specialty string) ([]*treatment.Association, error) {
	m.calls = append(m.calls, key)
	if m.err != nil {
		return nil, m.err
	}
	if items := m.buckets[key+"|"+specialty]; len(items) > 0 {
		return items, nil
	}
	return m.buckets[key+"|"], nil
}

func newTestService(t *testing.T, learner Learner) *Service {
	t.Helper()
	gdb := dbtest.Open(t, Models()...)
	return NewService(NewRepoGorm(gdb), db.NewTransactor(gdb), learner, zerolog.Nop())
}

func seedCatalog(t *testing.T, svc *Service) {
	t.Helper()
	_, err := svc.Seed(context.Background(), []*Diagnosis{
		{Code: strPtr("J02.9"), Name: "Faringitis aguda", Synonyms: []string{"Dolor de garganta", "Angina"}, Specialties: []string{"Medicina General", "Pediatría"}},
		{Code: strPtr("J06.9"), Name: "Infección respiratoria alta", Specialties: []string{"Medicina General"}},
		{Code: strPtr("I10"), Name: "Hipertensión arterial", Synonyms: []string{"Presión alta"}, Specialties: []string{"Cardiología"}},
		{Name: "Faringoamigdalitis", Specialties: []string{"Pediatría", "pediatria"}},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func names(items []*Diagnosis) []string {
	out := make([]string, len(items))
	for i, d := range items {
		out[i] = d.Name
	}
	return out
}

func TestDerive_CleansFields(t *testing.T) {
	d := &Diagnosis{
		Code:        strPtr("  "),
		Name:        "  Otitis Media ",
		Synonyms:    []string{" Dolor de oído ", ""},
		Specialties: []string{"Pediatría", "PEDIATRIA", "ORL"},
	}
	d.Derive()
	if d.Code != nil {
		t.Errorf("expected blank code to be cleared, got %q", *d.Code)
	}
	if d.SearchKey != "otitis media" {
		t.Errorf("unexpected search key %q", d.SearchKey)
	}
	if len(d.Synonyms) != 1 || d.Synonyms[0] != "Dolor de oído" {
		t.Errorf("unexpected synonyms %v", d.Synonyms)
	}
	if len(d.Specialties) != 2 || len(d.SpecialtyKeys) != 2 {
		t.Errorf("expected specialties as a set, got %v / %v", d.Specialties, d.SpecialtyKeys)
	}
	if d.SuggestedMedications == nil {
		t.Error("expected non-nil suggested medications")
	}
}

func TestSearch_PrefixNameAndCode(t *testing.T) {
	svc := newTestService(t, nil)
	seedCatalog(t, svc)
	ctx := context.Background()

	got, err := svc.Search(ctx, "farin", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 prefix matches, got %v", names(got))
	}

	got, err = svc.Search(ctx, "j02", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Faringitis aguda" {
		t.Errorf("expected code prefix match, got %v", names(got))
	}
}

func TestSearch_SynonymKeyword(t *testing.T) {
	svc := newTestService(t, nil)
	seedCatalog(t, svc)

	got, err := svc.Search(context.Background(), "presion", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Hipertensión arterial" {
		t.Errorf("expected synonym match, got %v", names(got))
	}
}

func TestSearch_NoMatchIsEmpty(t *testing.T) {
	svc := newTestService(t, nil)
	seedCatalog(t, svc)

	got, err := svc.Search(context.Background(), "xyz", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestSearchWithSpecialtyPriority(t *testing.T) {
	svc := newTestService(t, nil)
	seedCatalog(t, svc)
	ctx := context.Background()

	if err := svc.RecordUsage(ctx, "J02.9"); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	got, err := svc.SearchWithSpecialtyPriority(ctx, "farin", "Cardiología", 10)
	if err != nil {
		t.Fatalf("SearchWithSpecialtyPriority: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Faringitis aguda" {
		t.Errorf("expected unchanged order without a match, got %v", names(got))
	}

	if err := svc.RecordUsage(ctx, "Faringitis aguda"); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	got, err = svc.SearchWithSpecialtyPriority(ctx, "farin", "pediatria", 10)
	if err != nil {
		t.Fatalf("SearchWithSpecialtyPriority: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %v", names(got))
	}
	for _, d := range got {
		if !d.HasSpecialty("pediatria") {
			t.Errorf("expected pediatric entries only, got %q", d.Name)
		}
	}
}

func TestGetSuggestedTreatment_ExplicitWins(t *testing.T) {
	learner := newMockLearner()
	learner.add("J02.9", "", 50, "Penicilina")
	svc := newTestService(t, learner)

	d := &Diagnosis{
		Code:                 strPtr("J02.9"),
		Name:                 "Faringitis aguda",
		SuggestedMedications: []medication.Snapshot{{Name: "Amoxicilina"}},
	}
	got := svc.GetSuggestedTreatment(context.Background(), d, "")
	if len(got) != 1 || got[0].Name != "Amoxicilina" {
		t.Errorf("expected curated treatment, got %+v", got)
	}
	if len(learner.calls) != 0 {
		t.Errorf("learner must not be consulted, got calls %v", learner.calls)
	}
}

func TestGetSuggestedTreatment_FallsBackToLearned(t *testing.T) {
	learner := newMockLearner()
	learner.add("faringitis aguda", "", 3, "Ibuprofeno", "Amoxicilina")
	learner.add("faringitis aguda", "pediatria", 2, "Paracetamol Jarabe")
	svc := newTestService(t, learner)
	ctx := context.Background()

	d := &Diagnosis{Name: "Faringitis Aguda"}
	got := svc.GetSuggestedTreatment(ctx, d, "pediatria")
	if len(got) != 1 || got[0].Name != "Paracetamol Jarabe" {
		t.Errorf("expected specialty bucket first, got %+v", got)
	}
	got = svc.GetSuggestedTreatment(ctx, d, "cardiologia")
	if len(got) != 2 {
		t.Errorf("expected unscoped fallback, got %+v", got)
	}
}

func TestGetSuggestedTreatment_EmptyAndFailure(t *testing.T) {
	learner := newMockLearner()
	svc := newTestService(t, learner)
	ctx := context.Background()

	if got := svc.GetSuggestedTreatment(ctx, &Diagnosis{Name: "Nada"}, ""); got == nil || len(got) != 0 {
		t.Errorf("expected empty list, got %#v", got)
	}

	learner.err = apierr.Persistence("list treatments", errors.New("database is locked"))
	if got := svc.GetSuggestedTreatment(ctx, &Diagnosis{Name: "Gripe"}, ""); len(got) != 0 {
		t.Errorf("expected failure to yield empty list, got %+v", got)
	}
	if got := svc.GetSuggestedTreatment(ctx, nil, ""); len(got) != 0 {
		t.Errorf("expected empty list for nil diagnosis, got %+v", got)
	}
}

func TestResolve(t *testing.T) {
	svc := newTestService(t, nil)
	seedCatalog(t, svc)
	ctx := context.Background()

	d, err := svc.Resolve(ctx, "i10", "")
	if err != nil || d.ID == uuid.Nil || d.Name != "Hipertensión arterial" {
		t.Errorf("expected catalog entry by code, got %+v %v", d, err)
	}
	d, err = svc.Resolve(ctx, "", "faringoamigdalitis")
	if err != nil || d.ID == uuid.Nil {
		t.Errorf("expected catalog entry by name, got %+v %v", d, err)
	}
	d, err = svc.Resolve(ctx, "Z99", "Algo nuevo")
	if err != nil || d.ID != uuid.Nil || d.CodeValue() != "Z99" || d.Name != "Algo nuevo" {
		t.Errorf("expected transient entry, got %+v %v", d, err)
	}
}

func TestUpsert_InsertsThenIncrements(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	id1, err := svc.Upsert(ctx, &Diagnosis{Name: "Gastroenteritis", IsCustom: true})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	id2, err := svc.Upsert(ctx, &Diagnosis{Name: "GASTROENTERITIS"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected same id, got %s and %s", id1, id2)
	}
	d, _ := svc.Get(ctx, id1)
	if d.UsageCount != 2 {
		t.Errorf("expected usage 2, got %d", d.UsageCount)
	}
}

func TestUpsert_MatchesByCode(t *testing.T) {
	svc := newTestService(t, nil)
	seedCatalog(t, svc)
	ctx := context.Background()

	id, err := svc.Upsert(ctx, &Diagnosis{Code: strPtr("I10"), Name: "HTA esencial"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	d, _ := svc.Get(ctx, id)
	if d.Name != "Hipertensión arterial" || d.UsageCount != 1 {
		t.Errorf("expected existing coded entry, got %+v", d)
	}
}

func TestRecordUsage_UnknownIsNoop(t *testing.T) {
	svc := newTestService(t, nil)
	seedCatalog(t, svc)

	if err := svc.RecordUsage(context.Background(), "zzz"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestList_BySpecialty(t *testing.T) {
	svc := newTestService(t, nil)
	seedCatalog(t, svc)

	got, total, err := svc.List(context.Background(), Filter{Specialty: "PEDIATRÍA", SortBy: SortByName}, 20, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || got[0].Name != "Faringitis aguda" || got[1].Name != "Faringoamigdalitis" {
		t.Errorf("unexpected listing %v (total %d)", names(got), total)
	}

	got, total, err = svc.List(context.Background(), Filter{SortBy: SortByCode}, 20, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 4 || got[0].CodeValue() != "I10" || got[3].Code != nil {
		t.Errorf("unexpected code order %v", names(got))
	}
}

func TestUpdate_AndDelete(t *testing.T) {
	svc := newTestService(t, nil)
	seedCatalog(t, svc)
	ctx := context.Background()

	d, _ := svc.Resolve(ctx, "I10", "")
	upd := &Diagnosis{ID: d.ID, Code: d.Code, Name: d.Name, Synonyms: []string{"HTA"}, Specialties: d.Specialties}
	if err := svc.Update(ctx, upd); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got, _ := svc.Search(ctx, "presion", 10); len(got) != 0 {
		t.Errorf("expected old synonym to be dropped, got %v", names(got))
	}
	if got, _ := svc.Search(ctx, "hta", 10); len(got) != 1 {
		t.Errorf("expected new synonym to match, got %v", names(got))
	}

	if err := svc.Delete(ctx, d.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, d.ID); !errors.Is(err, apierr.ErrNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}
