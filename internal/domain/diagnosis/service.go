package diagnosis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rxpad/rxpad/internal/domain/medication"
	"github.com/rxpad/rxpad/internal/domain/treatment"
	"github.com/rxpad/rxpad/internal/platform/apierr"
	"github.com/rxpad/rxpad/internal/platform/catalog"
	"github.com/rxpad/rxpad/internal/platform/db"
	"github.com/rxpad/rxpad/internal/platform/textnorm"
)

// Learner is the part of the treatment learning service the diagnosis
// catalog falls back to.
type Learner interface {
	GetScopedSuggestions(ctx context.Context, diagnosisKey, specialty string) ([]*treatment.Association, error)
}

type Service struct {
	repo    Repository
	tx      db.Transactor
	learner Learner
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, tx db.Transactor, learner Learner, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		tx:      tx,
		learner: learner,
		logger:  logger.With().Str("service", "diagnosis").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// -- Search --

func (s *Service) Search(ctx context.Context, query string, limit int) ([]*Diagnosis, error) {
	return catalog.Search[*Diagnosis](ctx, s.repo, query, limit)
}

// SearchWithSpecialtyPriority is Search with diagnoses tagged with specialty
// moved ahead of the others.
func (s *Service) SearchWithSpecialtyPriority(ctx context.Context, query, specialty string, limit int) ([]*Diagnosis, error) {
	limit = catalog.ClampLimit(limit)
	if textnorm.Normalize(specialty) == "" {
		return s.Search(ctx, query, limit)
	}
	candidates, err := catalog.Search[*Diagnosis](ctx, s.repo, query, catalog.PriorityWindow(limit))
	if err != nil {
		return nil, err
	}
	ranked := catalog.Prioritize(candidates, func(d *Diagnosis) bool {
		return d.HasSpecialty(specialty)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// -- Suggested treatment --

// GetSuggestedTreatment returns the curated medications of d when it has
// any, else the medications of the top learned treatment for d (specialty
// bucket first, then unscoped), else an empty list. Learning lookup failures
// are logged and yield an empty list.
func (s *Service) GetSuggestedTreatment(ctx context.Context, d *Diagnosis, specialty string) []medication.Snapshot {
	if d == nil {
		return []medication.Snapshot{}
	}
	if len(d.SuggestedMedications) > 0 {
		return d.SuggestedMedications
	}
	if s.learner == nil {
		return []medication.Snapshot{}
	}
	key := treatment.DiagnosisKey(d.CodeValue(), d.Name)
	if key == "" {
		return []medication.Snapshot{}
	}
	learned, err := s.learner.GetScopedSuggestions(ctx, key, specialty)
	if err != nil {
		s.logger.Warn().Err(err).Str("diagnosis_key", key).Msg("learned treatment lookup failed")
		return []medication.Snapshot{}
	}
	if len(learned) == 0 || len(learned[0].Medications) == 0 {
		return []medication.Snapshot{}
	}
	return learned[0].Medications
}

// Resolve finds the catalog entry for a code or name. A diagnosis that is
// not in the catalog comes back as an unsaved entry carrying code and name,
// so free-text diagnoses still reach learned treatments.
func (s *Service) Resolve(ctx context.Context, code, name string) (*Diagnosis, error) {
	if code = strings.TrimSpace(code); code != "" {
		d, err := s.repo.GetByCode(ctx, code)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, apierr.ErrNotFound) {
			return nil, err
		}
	}
	if key := textnorm.Normalize(name); key != "" {
		d, err := s.repo.GetBySearchKey(ctx, key)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, apierr.ErrNotFound) {
			return nil, err
		}
	}
	d := &Diagnosis{Name: strings.TrimSpace(name)}
	if code != "" {
		d.Code = &code
	}
	return d, nil
}

// -- Catalog learning --

// Upsert finds the entry matching the draft's normalized name, or its code,
// and records a use of it; otherwise it inserts the draft with usage_count=1.
func (s *Service) Upsert(ctx context.Context, draft *Diagnosis) (uuid.UUID, error) {
	if strings.TrimSpace(draft.Name) == "" {
		return uuid.Nil, apierr.Validation("name is required")
	}
	d := *draft
	d.ID = uuid.Nil
	d.Derive()
	now := s.now()

	var id uuid.UUID
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetBySearchKey(ctx, d.SearchKey)
		if errors.Is(err, apierr.ErrNotFound) && d.Code != nil {
			existing, err = s.repo.GetByCode(ctx, *d.Code)
		}
		switch {
		case err == nil:
			id = existing.ID
			return s.repo.IncrementUsage(ctx, existing.ID, now)
		case errors.Is(err, apierr.ErrNotFound):
			d.UsageCount = 1
			d.LastUsedAt = &now
			if err := s.repo.Create(ctx, &d); err != nil {
				return err
			}
			id = d.ID
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

// RecordUsage increments the usage of the diagnosis identified by an id, a
// code or a name. Names resolve by exact normalized match, then by prefix.
// Nothing resolving is not an error.
func (s *Service) RecordUsage(ctx context.Context, idOrName string) error {
	d, err := s.resolveUsage(ctx, idOrName)
	if err != nil || d == nil {
		return err
	}
	err = s.repo.IncrementUsage(ctx, d.ID, s.now())
	if errors.Is(err, apierr.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Service) resolveUsage(ctx context.Context, idOrName string) (*Diagnosis, error) {
	idOrName = strings.TrimSpace(idOrName)
	if idOrName == "" {
		return nil, nil
	}
	if id, err := uuid.Parse(idOrName); err == nil {
		return ignoreNotFound(s.repo.GetByID(ctx, id))
	}
	d, err := ignoreNotFound(s.repo.GetByCode(ctx, idOrName))
	if err != nil || d != nil {
		return d, err
	}

	key := textnorm.Normalize(idOrName)
	d, err = ignoreNotFound(s.repo.GetBySearchKey(ctx, key))
	if err != nil || d != nil {
		return d, err
	}
	matches, err := s.repo.FindByPrefix(ctx, key, 1)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return matches[0], nil
}

func ignoreNotFound(d *Diagnosis, err error) (*Diagnosis, error) {
	if errors.Is(err, apierr.ErrNotFound) {
		return nil, nil
	}
	return d, err
}

// -- CRUD --

func (s *Service) Create(ctx context.Context, d *Diagnosis) error {
	if strings.TrimSpace(d.Name) == "" {
		return apierr.Validation("name is required")
	}
	if d.UsageCount < 0 {
		return apierr.Validation("usage_count must not be negative")
	}
	d.ID = uuid.Nil
	d.Derive()
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.ensureUniqueKey(ctx, d.SearchKey, uuid.Nil); err != nil {
			return err
		}
		return s.repo.Create(ctx, d)
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Diagnosis, error) {
	return s.repo.GetByID(ctx, id)
}

// Update applies the editable fields of d to the stored entry, keeping usage
// statistics, and re-derives its search data.
func (s *Service) Update(ctx context.Context, d *Diagnosis) error {
	if strings.TrimSpace(d.Name) == "" {
		return apierr.Validation("name is required")
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, d.ID)
		if err != nil {
			return err
		}
		existing.Name = d.Name
		existing.Code = d.Code
		existing.Synonyms = d.Synonyms
		existing.Specialties = d.Specialties
		existing.SuggestedMedications = d.SuggestedMedications
		existing.IsCustom = d.IsCustom
		existing.Derive()
		if err := s.ensureUniqueKey(ctx, existing.SearchKey, existing.ID); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, existing); err != nil {
			return err
		}
		*d = *existing
		return nil
	})
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Diagnosis, int, error) {
	if !f.SortBy.Valid() {
		return nil, 0, apierr.Validation("invalid sort_by: %s", f.SortBy)
	}
	return s.repo.List(ctx, f, limit, offset)
}

// Seed inserts catalog entries whose normalized name is not present yet and
// returns how many were added.
func (s *Service) Seed(ctx context.Context, items []*Diagnosis) (int, error) {
	added := 0
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		for _, d := range items {
			if strings.TrimSpace(d.Name) == "" {
				continue
			}
			d.ID = uuid.Nil
			d.IsCustom = false
			d.Derive()
			_, err := s.repo.GetBySearchKey(ctx, d.SearchKey)
			if err == nil {
				continue
			}
			if !errors.Is(err, apierr.ErrNotFound) {
				return err
			}
			if err := s.repo.Create(ctx, d); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int("added", added).Int("submitted", len(items)).Msg("diagnosis catalog seeded")
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
		return apierr.Validation("diagnosis %q already exists", other.Name)
	}
	return nil
}
