package seed

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/rxpad/rxpad/internal/domain/diagnosis"
	"github.com/rxpad/rxpad/internal/domain/medication"
	"github.com/rxpad/rxpad/internal/platform/db"
	"github.com/rxpad/rxpad/internal/platform/db/dbtest"
)

const catalogJSON = `{
  "medications": [
    {"name": "Paracetamol", "strength": "500mg", "category": "Analgésicos"},
    {"name": "Ibuprofeno", "strength": "400mg"},
    {"name": "paracetamol"}
  ],
  "diagnoses": [
    {"code": "J02.9", "name": "Faringitis aguda", "synonyms": ["Dolor de garganta"], "specialties": ["Otorrinolaringología"]}
  ]
}`

func newSeeders(t *testing.T) (*medication.Service, *diagnosis.Service) {
	t.Helper()
	gdb := dbtest.Open(t, append(medication.Models(), diagnosis.Models()...)...)
	tx := db.NewTransactor(gdb)
	meds := medication.NewService(medication.NewRepoGorm(gdb), tx, zerolog.Nop())
	diags := diagnosis.NewService(diagnosis.NewRepoGorm(gdb), tx, nil, zerolog.Nop())
	return meds, diags
}

func TestApply_IsRepeatable(t *testing.T) {
	meds, diags := newSeeders(t)
	ctx := context.Background()

	cat, err := Load(strings.NewReader(catalogJSON))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	res, err := Apply(ctx, cat, meds, diags)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Medications != 2 || res.Diagnoses != 1 {
		t.Errorf("expected 2 medications and 1 diagnosis, got %+v", res)
	}

	cat, _ = Load(strings.NewReader(catalogJSON))
	res, err = Apply(ctx, cat, meds, diags)
	if err != nil {
		t.Fatalf("apply again: %v", err)
	}
	if res.Medications != 0 || res.Diagnoses != 0 {
		t.Errorf("second apply must add nothing, got %+v", res)
	}

	found, err := diags.Search(ctx, "garganta", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 || found[0].IsCustom {
		t.Errorf("expected seeded diagnosis via synonym, got %+v", found)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(path, []byte(catalogJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	cat, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if len(cat.Medications) != 3 || len(cat.Diagnoses) != 1 {
		t.Errorf("unexpected catalog %+v", cat)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(strings.NewReader("{")); err == nil {
		t.Error("expected error for malformed json")
	}
}

type failingSeeder struct{}

func (failingSeeder) Seed(ctx context.Context, meds []*medication.Medication) (int, error) {
	return 0, errors.New("disk full")
}

func TestApply_PropagatesErrors(t *testing.T) {
	_, diags := newSeeders(t)
	cat, _ := Load(strings.NewReader(catalogJSON))
	if _, err := Apply(context.Background(), cat, failingSeeder{}, diags); err == nil {
		t.Error("expected seeding error")
	}
}

const catalogYAML = `
medications:
  - name: Amoxicilina
    strength: 500mg
    dosage_form: Cápsulas
diagnoses:
  - code: J01.9
    name: Sinusitis aguda
    synonyms: [Sinusitis]
`

func TestDecode_YAML(t *testing.T) {
	cat, err := Decode(strings.NewReader(catalogYAML), FormatYAML)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cat.Medications) != 1 || cat.Medications[0].DosageForm == nil || *cat.Medications[0].DosageForm != "Cápsulas" {
		t.Errorf("unexpected medications %+v", cat.Medications)
	}
	if len(cat.Diagnoses) != 1 || cat.Diagnoses[0].Code == nil || cat.Diagnoses[0].Synonyms[0] != "Sinusitis" {
		t.Errorf("unexpected diagnoses %+v", cat.Diagnoses)
	}
}

func TestDecode_Workbook(t *testing.T) {
	var tmpl bytes.Buffer
	if err := WriteTemplate(&tmpl); err != nil {
		t.Fatalf("template: %v", err)
	}
	f, err := excelize.OpenReader(&tmpl)
	if err != nil {
		t.Fatalf("reopen template: %v", err)
	}
	defer f.Close()
	f.SetSheetRow(MedicationsSheet, "A2", &[]any{"Loratadina", "", "10mg", "Comprimidos"})
	f.SetSheetRow(MedicationsSheet, "A3", &[]any{""})
	f.SetSheetRow(DiagnosesSheet, "A2", &[]any{"J30.4", "Rinitis alérgica", "Alergia nasal; Rinitis ", "Alergia;ORL"})

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	cat, err := Decode(&buf, FormatWorkbook)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cat.Medications) != 1 {
		t.Fatalf("expected 1 medication, got %+v", cat.Medications)
	}
	med := cat.Medications[0]
	if med.Name != "Loratadina" || med.GenericName != nil || med.Strength == nil || *med.Strength != "10mg" {
		t.Errorf("unexpected medication %+v", med)
	}
	if len(cat.Diagnoses) != 1 {
		t.Fatalf("expected 1 diagnosis, got %+v", cat.Diagnoses)
	}
	d := cat.Diagnoses[0]
	if len(d.Synonyms) != 2 || d.Synonyms[1] != "Rinitis" || len(d.Specialties) != 2 {
		t.Errorf("unexpected diagnosis %+v", d)
	}

	meds, diags := newSeeders(t)
	res, err := Apply(context.Background(), cat, meds, diags)
	if err != nil || res.Medications != 1 || res.Diagnoses != 1 {
		t.Errorf("apply: %+v %v", res, err)
	}
}

func TestDecode_EmptyWorkbook(t *testing.T) {
	var tmpl bytes.Buffer
	if err := WriteTemplate(&tmpl); err != nil {
		t.Fatalf("template: %v", err)
	}
	if _, err := Decode(&tmpl, FormatWorkbook); err == nil {
		t.Error("expected error for a workbook without rows")
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"catalog.json", FormatJSON, false},
		{"catalog.YML", FormatYAML, false},
		{"base/catalog.yaml", FormatYAML, false},
		{"vademecum.xlsx", FormatWorkbook, false},
		{"catalog.csv", "", true},
	}
	for _, tt := range tests {
		got, err := FormatFromPath(tt.path)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("FormatFromPath(%q) = %q, %v", tt.path, got, err)
		}
	}
}
