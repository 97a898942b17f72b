package seed

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rxpad/rxpad/internal/platform/textnorm"
)

// Sheet names and headers of a catalog workbook. Headers are matched after
// normalization, so "Nombre genérico" style casing and accents do not matter.
const (
	MedicationsSheet = "Medications"
	DiagnosesSheet   = "Diagnoses"
)

var (
	MedicationHeaders = []string{"Name", "Generic Name", "Strength", "Dosage Form", "Packaging", "Category", "Manufacturer"}
	DiagnosisHeaders  = []string{"Code", "Name", "Synonyms", "Specialties"}
)

// listSeparator splits multi-valued cells.
const listSeparator = ";"

func readWorkbook(r io.Reader) (*Catalog, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	cat := &Catalog{}
	medRows, err := sheetRows(f, MedicationsSheet)
	if err != nil {
		return nil, err
	}
	for _, row := range medRows {
		name := row.get("name")
		if name == "" {
			continue
		}
		cat.Medications = append(cat.Medications, MedicationEntry{
			Name:         name,
			GenericName:  row.ptr("generic name"),
			Strength:     row.ptr("strength"),
			DosageForm:   row.ptr("dosage form"),
			Packaging:    row.ptr("packaging"),
			Category:     row.ptr("category"),
			Manufacturer: row.ptr("manufacturer"),
		})
	}

	diagRows, err := sheetRows(f, DiagnosesSheet)
	if err != nil {
		return nil, err
	}
	for _, row := range diagRows {
		name := row.get("name")
		if name == "" {
			continue
		}
		cat.Diagnoses = append(cat.Diagnoses, DiagnosisEntry{
			Code:        row.ptr("code"),
			Name:        name,
			Synonyms:    row.list("synonyms"),
			Specialties: row.list("specialties"),
		})
	}

	if len(cat.Medications) == 0 && len(cat.Diagnoses) == 0 {
		return nil, fmt.Errorf("workbook has no %s or %s rows", MedicationsSheet, DiagnosesSheet)
	}
	return cat, nil
}

type workbookRow struct {
	header map[string]int
	cells  []string
}

func (r workbookRow) get(col string) string {
	i, ok := r.header[col]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}

func (r workbookRow) ptr(col string) *string {
	v := r.get(col)
	if v == "" {
		return nil
	}
	return &v
}

func (r workbookRow) list(col string) []string {
	var out []string
	for _, part := range strings.Split(r.get(col), listSeparator) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sheetRows returns the data rows of sheet keyed by normalized header.
// A missing sheet yields no rows.
func sheetRows(f *excelize.File, sheet string) ([]workbookRow, error) {
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read %s rows: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	header := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		header[textnorm.Normalize(h)] = i
	}
	out := make([]workbookRow, 0, len(rows)-1)
	for _, cells := range rows[1:] {
		out = append(out, workbookRow{header: header, cells: cells})
	}
	return out, nil
}

// WriteTemplate writes an empty catalog workbook with both header rows.
func WriteTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", MedicationsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(DiagnosesSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := f.SetSheetRow(MedicationsSheet, "A1", &MedicationHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetSheetRow(DiagnosesSheet, "A1", &DiagnosisHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	_, err := f.WriteTo(w)
	return err
}
