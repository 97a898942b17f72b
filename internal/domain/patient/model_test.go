package patient

import (
	"testing"
	"time"
)

func intPtr(i int) *int { return &i }

func TestCurrentAge_ProjectsStoredAge(t *testing.T) {
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	p := &Patient{Age: intPtr(30), UpdatedAt: now.AddDate(-2, 0, 0)}

	got := p.CurrentAge(now)
	if got == nil || *got != 32 {
		t.Errorf("expected 32, got %v", got)
	}
}

func TestCurrentAge_PartialYearDoesNotCount(t *testing.T) {
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	p := &Patient{Age: intPtr(30), UpdatedAt: now.AddDate(-1, 0, 1)}

	if got := p.CurrentAge(now); got == nil || *got != 30 {
		t.Errorf("expected 30, got %v", got)
	}
}

func TestCurrentAge_BirthDateWins(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	birth := time.Date(2000, 3, 2, 0, 0, 0, 0, time.UTC)
	p := &Patient{Age: intPtr(99), BirthDate: &birth, UpdatedAt: now.AddDate(-5, 0, 0)}

	if got := p.CurrentAge(now); got == nil || *got != 25 {
		t.Errorf("expected 25, got %v", got)
	}
}

func TestCurrentAge_Unknown(t *testing.T) {
	p := &Patient{}
	if got := p.CurrentAge(time.Now()); got != nil {
		t.Errorf("expected nil, got %d", *got)
	}
}

func TestSnapshotAt(t *testing.T) {
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	p := &Patient{Name: "Ana Pérez", Age: intPtr(40), UpdatedAt: now.AddDate(-3, 0, 0)}

	snap := p.SnapshotAt(now)
	if snap.Name != "Ana Pérez" || snap.Age == nil || *snap.Age != 43 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestSortBy_Valid(t *testing.T) {
	for _, s := range []SortBy{"", SortByName, SortByCreated, SortByUpdated} {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	for _, s := range []SortBy{"recent", "age"} {
		if s.Valid() {
			t.Errorf("expected %q to be rejected", s)
		}
	}
}
