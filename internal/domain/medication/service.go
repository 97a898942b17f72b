package medication

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rxpad/rxpad/internal/platform/apierr"
	"github.com/rxpad/rxpad/internal/platform/catalog"
	"github.com/rxpad/rxpad/internal/platform/db"
	"github.com/rxpad/rxpad/internal/platform/textnorm"
)

type Service struct {
	repo   Repository
	tx     db.Transactor
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		tx:     tx,
		logger: logger.With().Str("service", "medication").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// -- Search --

// Search returns up to limit medications for an autocomplete query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*Medication, error) {
	return catalog.Search[*Medication](ctx, s.repo, query, limit)
}

// SearchWithSpecialtyPriority is Search with entries whose category matches
// specialty moved ahead of the others.
func (s *Service) SearchWithSpecialtyPriority(ctx context.Context, query, specialty string, limit int) ([]*Medication, error) {
	limit = catalog.ClampLimit(limit)
	if textnorm.Normalize(specialty) == "" {
		return s.Search(ctx, query, limit)
	}
	candidates, err := catalog.Search[*Medication](ctx, s.repo, query, catalog.PriorityWindow(limit))
	if err != nil {
		return nil, err
	}
	ranked := catalog.Prioritize(candidates, func(m *Medication) bool {
		return MatchesSpecialty(m, specialty)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// MatchesSpecialty reports whether the medication category and specialty
// overlap, ignoring case and accents.
func MatchesSpecialty(m *Medication, specialty string) bool {
	if m.Category == nil {
		return false
	}
	return textnorm.Contains(*m.Category, specialty) || textnorm.Contains(specialty, *m.Category)
}

// -- Catalog learning --

// Upsert finds the entry with the draft's normalized name and records a use
// of it, or inserts the draft with usage_count=1. The lookup and the write
// share one transaction.
func (s *Service) Upsert(ctx context.Context, draft *Medication) (uuid.UUID, error) {
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		return uuid.Nil, apierr.Validation("name is required")
	}
	key := textnorm.Normalize(name)
	now := s.now()

	var id uuid.UUID
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetBySearchKey(ctx, key)
		switch {
		case err == nil:
			id = existing.ID
			return s.repo.IncrementUsage(ctx, existing.ID, now)
		case errors.Is(err, apierr.ErrNotFound):
			m := *draft
			m.ID = uuid.Nil
			m.Name = name
			m.UsageCount = 1
			m.LastUsedAt = &now
			m.Derive()
			if err := s.repo.Create(ctx, &m); err != nil {
				return err
			}
			id = m.ID
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// RecordUsage increments the usage of the entry identified by an id or a
// name. Names resolve by exact normalized match, then by prefix. Nothing
// resolving is not an error.
func (s *Service) RecordUsage(ctx context.Context, idOrName string) error {
	m, err := s.resolve(ctx, idOrName)
	if err != nil || m == nil {
		return err
	}
	err = s.repo.IncrementUsage(ctx, m.ID, s.now())
	if errors.Is(err, apierr.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Service) resolve(ctx context.Context, idOrName string) (*Medication, error) {
	idOrName = strings.TrimSpace(idOrName)
	if idOrName == "" {
		return nil, nil
	}
	if id, err := uuid.Parse(idOrName); err == nil {
		return s.ignoreNotFound(s.repo.GetByID(ctx, id))
	}

	key := textnorm.Normalize(idOrName)
	m, err := s.ignoreNotFound(s.repo.GetBySearchKey(ctx, key))
	if err != nil || m != nil {
		return m, err
	}
	matches, err := s.repo.FindByPrefix(ctx, key, 1)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return matches[0], nil
}

func (s *Service) ignoreNotFound(m *Medication, err error) (*Medication, error) {
	if errors.Is(err, apierr.ErrNotFound) {
		return nil, nil
	}
	return m, err
}

// -- CRUD --

func (s *Service) Create(ctx context.Context, m *Medication) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return apierr.Validation("name is required")
	}
	if m.UsageCount < 0 {
		return apierr.Validation("usage_count must not be negative")
	}
	m.ID = uuid.Nil
	m.Derive()
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.ensureUniqueKey(ctx, m.SearchKey, uuid.Nil); err != nil {
			return err
		}
		return s.repo.Create(ctx, m)
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return s.repo.GetByID(ctx, id)
}

// Update applies the editable fields of m to the stored entry, keeping
// usage statistics, and re-derives its search data.
func (s *Service) Update(ctx context.Context, m *Medication) error {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		return apierr.Validation("name is required")
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, m.ID)
		if err != nil {
			return err
		}
		existing.Name = name
		existing.GenericName = m.GenericName
		existing.Strength = m.Strength
		existing.DosageForm = m.DosageForm
		existing.Packaging = m.Packaging
		existing.Category = m.Category
		existing.Manufacturer = m.Manufacturer
		existing.IsCustom = m.IsCustom
		existing.Derive()
		if err := s.ensureUniqueKey(ctx, existing.SearchKey, existing.ID); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, existing); err != nil {
			return err
		}
		*m = *existing
		return nil
	})
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Medication, int, error) {
	if !f.SortBy.Valid() {
		return nil, 0, apierr.Validation("invalid sort_by: %s", f.SortBy)
	}
	return s.repo.List(ctx, f, limit, offset)
}

// Seed inserts catalog entries whose normalized name is not present yet and
// returns how many were added.
func (s *Service) Seed(ctx context.Context, meds []*Medication) (int, error) {
	added := 0
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		for _, m := range meds {
			m.Name = strings.TrimSpace(m.Name)
			if m.Name == "" {
				continue
			}
			m.ID = uuid.Nil
			m.IsCustom = false
			m.Derive()
			_, err := s.repo.GetBySearchKey(ctx, m.SearchKey)
			if err == nil {
				continue
			}
			if !errors.Is(err, apierr.ErrNotFound) {
				return err
			}
			if err := s.repo.Create(ctx, m); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int("added", added).Int("submitted", len(meds)).Msg("medication catalog seeded")
	return added, nil
}

func (s *Service) ensureUniqueKey(ctx context.Context, key string, self uuid.UUID) error {
	other, err := s.repo.GetBySearchKey(ctx, key)
	if errors.Is(err, apierr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if other.ID != self {
		return apierr.Validation("medication %q already exists", other.Name)
	}
	return nil
}
