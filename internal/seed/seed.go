// Package seed loads a catalog file of medications and diagnoses into the
// local store. Entries already present by normalized name are skipped, so a
// file can be applied repeatedly.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rxpad/rxpad/internal/domain/diagnosis"
	"github.com/rxpad/rxpad/internal/domain/medication"
)

// Format is a catalog file encoding.
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatWorkbook Format = "xlsx"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".xlsx":
		return FormatWorkbook, nil
	default:
		return "", fmt.Errorf("unsupported catalog extension %q", filepath.Ext(path))
	}
}

// MedicationEntry is one medication row of a catalog file.
type MedicationEntry struct {
	Name         string  `json:"name" yaml:"name"`
	GenericName  *string `json:"generic_name,omitempty" yaml:"generic_name"`
	Strength     *string `json:"strength,omitempty" yaml:"strength"`
	DosageForm   *string `json:"dosage_form,omitempty" yaml:"dosage_form"`
	Packaging    *string `json:"packaging,omitempty" yaml:"packaging"`
	Category     *string `json:"category,omitempty" yaml:"category"`
	Manufacturer *string `json:"manufacturer,omitempty" yaml:"manufacturer"`
}

func (e MedicationEntry) model() *medication.Medication {
	return &medication.Medication{
		Name:         e.Name,
		GenericName:  e.GenericName,
		Strength:     e.Strength,
		DosageForm:   e.DosageForm,
		Packaging:    e.Packaging,
		Category:     e.Category,
		Manufacturer: e.Manufacturer,
	}
}

// DiagnosisEntry is one diagnosis row of a catalog file.
type DiagnosisEntry struct {
	Code        *string  `json:"code,omitempty" yaml:"code"`
	Name        string   `json:"name" yaml:"name"`
	Synonyms    []string `json:"synonyms,omitempty" yaml:"synonyms"`
	Specialties []string `json:"specialties,omitempty" yaml:"specialties"`
}

func (e DiagnosisEntry) model() *diagnosis.Diagnosis {
	return &diagnosis.Diagnosis{
		Code:        e.Code,
		Name:        e.Name,
		Synonyms:    e.Synonyms,
		Specialties: e.Specialties,
	}
}

// Catalog is the seed file layout.
type Catalog struct {
	Medications []MedicationEntry `json:"medications" yaml:"medications"`
	Diagnoses   []DiagnosisEntry  `json:"diagnoses" yaml:"diagnoses"`
}

type MedicationSeeder interface {
	Seed(ctx context.Context, meds []*medication.Medication) (int, error)
}

type DiagnosisSeeder interface {
	Seed(ctx context.Context, items []*diagnosis.Diagnosis) (int, error)
}

// Result counts the entries added.
type Result struct {
	Medications int `json:"medications"`
	Diagnoses   int `json:"diagnoses"`
}

// Load decodes a JSON catalog.
func Load(r io.Reader) (*Catalog, error) {
	return Decode(r, FormatJSON)
}

// Decode reads a catalog in the given format.
func Decode(r io.Reader, format Format) (*Catalog, error) {
	var cat Catalog
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&cat); err != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&cat); err != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
	case FormatWorkbook:
		return readWorkbook(r)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
	return &cat, nil
}

// LoadFile decodes the catalog at path, choosing the format by extension.
func LoadFile(path string) (*Catalog, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Decode(f, format)
}

// Apply seeds medications, then diagnoses.
func Apply(ctx context.Context, cat *Catalog, meds MedicationSeeder, diags DiagnosisSeeder) (Result, error) {
	var res Result
	if len(cat.Medications) > 0 {
		items := make([]*medication.Medication, 0, len(cat.Medications))
		for _, e := range cat.Medications {
			items = append(items, e.model())
		}
		n, err := meds.Seed(ctx, items)
		if err != nil {
			return res, fmt.Errorf("seed medications: %w", err)
		}
		res.Medications = n
	}
	if len(cat.Diagnoses) > 0 {
		items := make([]*diagnosis.Diagnosis, 0, len(cat.Diagnoses))
		for _, e := range cat.Diagnoses {
			items = append(items, e.model())
		}
		n, err := diags.Seed(ctx, items)
		if err != nil {
			return res, fmt.Errorf("seed diagnoses: %w", err)
		}
		res.Diagnoses = n
	}
	return res, nil
}
