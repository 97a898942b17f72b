package practice

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rxpad/rxpad/internal/platform/apierr"
	"github.com/rxpad/rxpad/internal/platform/db"
)

type Service struct {
	templates TemplateRepository
	config    ConfigRepository
	tx        db.Transactor
	logger    zerolog.Logger
}

func NewService(templates TemplateRepository, config ConfigRepository, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{
		templates: templates,
		config:    config,
		tx:        tx,
		logger:    logger.With().Str("service", "practice").Logger(),
	}
}

// -- Templates --

func validateTemplate(t *Template) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return apierr.Validation("name is required")
	}
	if t.PaperSize == "" {
		t.PaperSize = PaperA5
	}
	if !t.PaperSize.Valid() {
		return apierr.Validation("invalid paper_size: %s", t.PaperSize)
	}
	return nil
}

// CreateTemplate stores t. The first template becomes the default, and a
// template created as default takes the flag from the previous one.
func (s *Service) CreateTemplate(ctx context.Context, t *Template) error {
	if err := validateTemplate(t); err != nil {
		return err
	}
	t.ID = uuid.Nil
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		n, err := s.templates.Count(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			t.IsDefault = true
		}
		if err := s.templates.Create(ctx, t); err != nil {
			return err
		}
		if t.IsDefault {
			return s.templates.ClearDefault(ctx, t.ID)
		}
		return nil
	})
}

func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*Template, error) {
	return s.templates.GetByID(ctx, id)
}

// DefaultTemplate returns the default template, or ErrNotFound when there
// are no templates.
func (s *Service) DefaultTemplate(ctx context.Context) (*Template, error) {
	return s.templates.GetDefault(ctx)
}

func (s *Service) UpdateTemplate(ctx context.Context, t *Template) error {
	if err := validateTemplate(t); err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.templates.GetByID(ctx, t.ID)
		if err != nil {
			return err
		}
		// the default moves by SetDefault or by deleting it, never by clearing the flag
		if existing.IsDefault {
			t.IsDefault = true
		}
		t.CreatedAt = existing.CreatedAt
		if err := s.templates.Update(ctx, t); err != nil {
			return err
		}
		if t.IsDefault {
			return s.templates.ClearDefault(ctx, t.ID)
		}
		return nil
	})
}

// SetDefault makes id the only default template.
func (s *Service) SetDefault(ctx context.Context, id uuid.UUID) (*Template, error) {
	var out *Template
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := s.templates.GetByID(ctx, id)
		if err != nil {
			return err
		}
		t.IsDefault = true
		if err := s.templates.Update(ctx, t); err != nil {
			return err
		}
		out = t
		return s.templates.ClearDefault(ctx, id)
	})
	return out, err
}

// DeleteTemplate removes a template. Deleting the default promotes the most
// recently updated remaining template.
func (s *Service) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := s.templates.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.templates.Delete(ctx, id); err != nil {
			return err
		}
		if t.IsDefault {
			return s.templates.PromoteLatest(ctx)
		}
		return nil
	})
}

func (s *Service) ListTemplates(ctx context.Context, limit, offset int) ([]*Template, int, error) {
	return s.templates.List(ctx, limit, offset)
}

// -- MedicoConfig --

// Config returns the practitioner configuration, creating the row with a
// fresh anonymous id on first use.
func (s *Service) Config(ctx context.Context) (*MedicoConfig, error) {
	var out *MedicoConfig
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.config.Get(ctx)
		if err == nil {
			out = c
			return nil
		}
		if !errors.Is(err, apierr.ErrNotFound) {
			return err
		}
		c = &MedicoConfig{AnonymousID: uuid.NewString()}
		if err := s.config.Save(ctx, c); err != nil {
			return err
		}
		s.logger.Info().Str("anonymous_id", c.AnonymousID).Msg("medico config initialized")
		out = c
		return nil
	})
	return out, err
}

// UpdateConfig stores the editable fields of c. The anonymous id is never
// changed by an update.
func (s *Service) UpdateConfig(ctx context.Context, c *MedicoConfig) error {
	c.DoctorName = strings.TrimSpace(c.DoctorName)
	if c.DoctorName == "" {
		return apierr.Validation("doctor_name is required")
	}
	if c.Specialty != nil {
		spec := strings.TrimSpace(*c.Specialty)
		if spec == "" {
			c.Specialty = nil
		} else {
			c.Specialty = &spec
		}
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.Config(ctx)
		if err != nil {
			return err
		}
		c.AnonymousID = current.AnonymousID
		return s.config.Save(ctx, c)
	})
}

// Specialty returns the configured specialty, or "" when unset or when the
// config cannot be read.
func (s *Service) Specialty(ctx context.Context) string {
	c, err := s.Config(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("read medico specialty")
		return ""
	}
	return c.SpecialtyValue()
}

// AnonymousID returns the install's anonymous metrics identity.
func (s *Service) AnonymousID(ctx context.Context) (string, error) {
	c, err := s.Config(ctx)
	if err != nil {
		return "", err
	}
	return c.AnonymousID, nil
}
