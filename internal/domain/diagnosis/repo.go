package diagnosis

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists diagnoses and their keyword index. Lookups of a
// missing row return an error wrapping apierr.ErrNotFound.
type Repository interface {
	Create(ctx context.Context, d *Diagnosis) error
	GetByID(ctx context.Context, id uuid.UUID) (*Diagnosis, error)
	GetBySearchKey(ctx context.Context, key string) (*Diagnosis, error)
	GetByCode(ctx context.Context, code string) (*Diagnosis, error)
	Update(ctx context.Context, d *Diagnosis) error
	Delete(ctx context.Context, id uuid.UUID) error
	IncrementUsage(ctx context.Context, id uuid.UUID, at time.Time) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Diagnosis, int, error)

	TopByUsage(ctx context.Context, limit int) ([]*Diagnosis, error)
	FindByPrefix(ctx context.Context, prefix string, limit int) ([]*Diagnosis, error)
	FindByKeywords(ctx context.Context, tokens []string, limit int) ([]*Diagnosis, error)
}
