package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/rxpad/rxpad/internal/platform/textnorm"
)

type item struct {
	id       uuid.UUID
	key      string
	keywords []string
	usage    int
}

func (i *item) EntryID() uuid.UUID { return i.id }

type memIndex struct {
	items []*item
	err   error
}

func newItem(name string, usage int) *item {
	return &item{id: uuid.New(), key: textnorm.Normalize(name), keywords: textnorm.Keywords(name), usage: usage}
}

func (m *memIndex) TopByUsage(_ context.Context, limit int) ([]*item, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := append([]*item(nil), m.items...)
	sort.SliceStable(out, func(a, b int) bool { return out[a].usage > out[b].usage })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memIndex) FindByPrefix(_ context.Context, prefix string, limit int) ([]*item, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*item
	for _, it := range m.items {
		if strings.HasPrefix(it.key, prefix) && len(out) < limit {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memIndex) FindByKeywords(_ context.Context, tokens []string, limit int) ([]*item, error) {
	var out []*item
	for _, it := range m.items {
		for _, kw := range it.keywords {
			if contains(tokens, kw) {
				out = append(out, it)
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestSearch_PrefixAndKeywordFallback(t *testing.T) {
	tablets := newItem("Paracetamol 500mg", 0)
	syrup := newItem("Paracetamol Jarabe", 0)
	idx := &memIndex{items: []*item{tablets, syrup}}
	ctx := context.Background()

	got, err := Search[*item](ctx, idx, "para", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both entries by prefix, got %d", len(got))
	}

	got, _ = Search[*item](ctx, idx, "jarabe", 10)
	if len(got) != 1 || got[0] != syrup {
		t.Fatalf("expected syrup via keyword fallback, got %v", got)
	}

	got, err = Search[*item](ctx, idx, "xyz-nonexistent", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %v", got)
	}
}

func TestSearch_ShortQueryReturnsMostUsed(t *testing.T) {
	a := newItem("Amoxicilina", 3)
	b := newItem("Ibuprofeno", 9)
	c := newItem("Omeprazol", 1)
	idx := &memIndex{items: []*item{a, b, c}}

	for _, q := range []string{"", " ", "I", "á"} {
		got, err := Search[*item](context.Background(), idx, q, 2)
		if err != nil {
			t.Fatalf("Search(%q): %v", q, err)
		}
		if len(got) != 2 || got[0] != b || got[1] != a {
			t.Errorf("Search(%q) expected most used first, got %v", q, got)
		}
	}
}

func TestSearch_NeverExceedsLimit(t *testing.T) {
	var items []*item
	for _, n := range []string{"Amoxicilina 500", "Amoxicilina 875", "Amoxicilina Jarabe", "Clavulanico Amoxicilina", "Ampicilina"} {
		items = append(items, newItem(n, 0))
	}
	idx := &memIndex{items: items}

	got, _ := Search[*item](context.Background(), idx, "amoxicilina", 2)
	if len(got) != 2 {
		t.Fatalf("expected 2, got %d", len(got))
	}

	got, _ = Search[*item](context.Background(), idx, "amoxicilina", 10)
	if len(got) != 4 {
		t.Fatalf("expected 3 prefix + 1 keyword match, got %d", len(got))
	}
	if got[3] != items[3] {
		t.Errorf("expected keyword match appended after prefix matches")
	}
}

func TestSearch_DeduplicatesAgainstPhaseOne(t *testing.T) {
	a := newItem("Loratadina Jarabe", 0)
	b := newItem("Jarabe Tos", 0)
	idx := &memIndex{items: []*item{a, b}}

	got, _ := Search[*item](context.Background(), idx, "jarabe", 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 unique results, got %d", len(got))
	}
	if got[0] != b || got[1] != a {
		t.Errorf("expected prefix match before keyword match")
	}
}

func TestSearch_PropagatesStoreErrors(t *testing.T) {
	boom := errors.New("locked")
	idx := &memIndex{err: boom}
	if _, err := Search[*item](context.Background(), idx, "para", 10); !errors.Is(err, boom) {
		t.Errorf("expected store error, got %v", err)
	}
	if _, err := Search[*item](context.Background(), idx, "", 10); !errors.Is(err, boom) {
		t.Errorf("expected store error, got %v", err)
	}
}

func TestPrioritize(t *testing.T) {
	got := Prioritize([]int{1, 2, 3, 4, 5, 6}, func(i int) bool { return i%2 == 0 })
	want := []int{2, 4, 6, 1, 3, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Prioritize = %v, want %v", got, want)
		}
	}
}

func TestClampLimit(t *testing.T) {
	if ClampLimit(0) != DefaultLimit || ClampLimit(-3) != DefaultLimit {
		t.Error("expected default limit")
	}
	if ClampLimit(1000) != MaxLimit {
		t.Error("expected max limit")
	}
	if PriorityWindow(50) != MaxLimit {
		t.Error("expected window capped at MaxLimit")
	}
}
