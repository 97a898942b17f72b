package patient

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rxpad/rxpad/internal/platform/apierr"
	"github.com/rxpad/rxpad/internal/platform/db"
)

const maxAge = 150

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
		logger: logger.With().Str("service", "patient").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) validate(p *Patient) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return apierr.Validation("name is required")
	}
	if p.Age != nil && (*p.Age < 0 || *p.Age > maxAge) {
		return apierr.Validation("age must be between 0 and %d", maxAge)
	}
	if p.BirthDate != nil && p.BirthDate.After(s.now()) {
		return apierr.Validation("birth_date is in the future")
	}
	if p.Email != nil && strings.TrimSpace(*p.Email) != "" {
		if _, err := mail.ParseAddress(*p.Email); err != nil {
			return apierr.Validation("invalid email: %s", *p.Email)
		}
	}
	return nil
}

func (s *Service) withAge(p *Patient) *Patient {
	p.DisplayAge = p.CurrentAge(s.now())
	return p
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	if err := s.validate(p); err != nil {
		return err
	}
	p.ID = uuid.Nil
	p.AgeRecordedAt = nil
	if p.Age != nil {
		now := s.now()
		p.AgeRecordedAt = &now
	}
	p.derive()
	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	s.withAge(p)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withAge(p), nil
}

// Update replaces the editable fields. An unchanged stored age keeps its
// recording date; a new age is recorded now.
func (s *Service) Update(ctx context.Context, p *Patient) error {
	if err := s.validate(p); err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, p.ID)
		if err != nil {
			return err
		}
		switch {
		case p.Age == nil:
			p.AgeRecordedAt = nil
		case existing.Age != nil && *p.Age == *existing.Age:
			anchor := existing.ageAnchor()
			p.AgeRecordedAt = &anchor
		default:
			now := s.now()
			p.AgeRecordedAt = &now
		}
		p.CreatedAt = existing.CreatedAt
		p.derive()
		if err := s.repo.Update(ctx, p); err != nil {
			return err
		}
		s.withAge(p)
		return nil
	})
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	if !f.SortBy.Valid() {
		return nil, 0, apierr.Validation("invalid sort_by: %s", f.SortBy)
	}
	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, p := range items {
		s.withAge(p)
	}
	return items, total, nil
}

// Snapshot loads the patient and returns what a prescription issued now
// records about them.
func (s *Service) Snapshot(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return p.SnapshotAt(s.now()), nil
}
