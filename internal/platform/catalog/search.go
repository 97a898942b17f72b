// Package catalog implements the two-phase autocomplete search shared by the
// medication and diagnosis catalogs.
//
// Phase 1 matches the normalized query as a prefix of each entry's search key.
// Phase 2, run only when phase 1 leaves room, matches any query token against
// the keyword index. Phase 2 results keep the index scan order; they are not
// re-ranked. Short queries return the most used entries instead.
package catalog

import (
	"context"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rxpad/rxpad/internal/platform/textnorm"
)

const (
	DefaultLimit   = 10
	MaxLimit       = 100
	MinQueryLength = 2
)

// Entry is a catalog record with a stable id.
type Entry interface {
	EntryID() uuid.UUID
}

// Index is the storage side of a searchable catalog.
type Index[T Entry] interface {
	TopByUsage(ctx context.Context, limit int) ([]T, error)
	FindByPrefix(ctx context.Context, prefix string, limit int) ([]T, error)
	FindByKeywords(ctx context.Context, tokens []string, limit int) ([]T, error)
}

// ClampLimit applies DefaultLimit and MaxLimit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Search runs the two-phase search. It never returns more than limit entries
// and an unmatched query yields an empty, non-nil slice.
func Search[T Entry](ctx context.Context, idx Index[T], query string, limit int) ([]T, error) {
	limit = ClampLimit(limit)
	q := textnorm.Normalize(query)

	if utf8.RuneCountInString(q) < MinQueryLength {
		top, err := idx.TopByUsage(ctx, limit)
		if err != nil {
			return nil, err
		}
		return truncate(nonNil(top), limit), nil
	}

	results, err := idx.FindByPrefix(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	results = truncate(nonNil(results), limit)
	if len(results) >= limit {
		return results, nil
	}

	tokens := textnorm.Tokens(q)
	if len(tokens) == 0 {
		return results, nil
	}

	// ask for enough rows to survive de-duplication against phase 1
	extra, err := idx.FindByKeywords(ctx, tokens, limit+len(results))
	if err != nil {
		return nil, err
	}
	return merge(results, extra, limit), nil
}

func merge[T Entry](base, extra []T, limit int) []T {
	seen := make(map[uuid.UUID]bool, len(base)+len(extra))
	for _, e := range base {
		seen[e.EntryID()] = true
	}
	for _, e := range extra {
		if len(base) >= limit {
			break
		}
		if seen[e.EntryID()] {
			continue
		}
		seen[e.EntryID()] = true
		base = append(base, e)
	}
	return base
}

// Prioritize stably moves the items matching match to the front.
func Prioritize[T any](items []T, match func(T) bool) []T {
	out := make([]T, 0, len(items))
	var rest []T
	for _, it := range items {
		if match(it) {
			out = append(out, it)
		} else {
			rest = append(rest, it)
		}
	}
	return append(out, rest...)
}

// PriorityWindow is how many candidates a specialty-priority search looks at
// before truncating to limit.
func PriorityWindow(limit int) int {
	w := ClampLimit(limit) * 3
	if w > MaxLimit {
		w = MaxLimit
	}
	return w
}

func truncate[T any](items []T, limit int) []T {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
