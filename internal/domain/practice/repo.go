package practice

import (
	"context"

	"github.com/google/uuid"
)

type TemplateRepository interface {
	Create(ctx context.Context, t *Template) error
	GetByID(ctx context.Context, id uuid.UUID) (*Template, error)
	GetDefault(ctx context.Context) (*Template, error)
	Update(ctx context.Context, t *Template) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Template, int, error)
	Count(ctx context.Context) (int, error)
	// ClearDefault unsets the default flag on every template except keep.
	ClearDefault(ctx context.Context, keep uuid.UUID) error
	// PromoteLatest makes the most recently updated template the default.
	PromoteLatest(ctx context.Context) error
}

type ConfigRepository interface {
	// Get returns the config row, or an error wrapping apierr.ErrNotFound.
	Get(ctx context.Context) (*MedicoConfig, error)
	Save(ctx context.Context, c *MedicoConfig) error
}
